package bgapi

import "fmt"

// A subset of sl_status_t codes returned by the Bluetooth stack.
const (
	StatusFail             = 0x0001
	StatusInvalidState     = 0x0002
	StatusNotReady         = 0x0003
	StatusBusy             = 0x0004
	StatusInProgress       = 0x0005
	StatusAbort            = 0x0006
	StatusTimeout          = 0x0007
	StatusNotFound         = 0x000C
	StatusInvalidParameter = 0x0021
	StatusInvalidHandle    = 0x0027
	StatusNoMoreResource   = 0x0019
	StatusNotSupported     = 0x000F
)

// StatusName returns a human-readable name for a status code.
func StatusName(code uint16) string {
	switch code {
	case StatusOK:
		return "ok"
	case StatusFail:
		return "fail"
	case StatusInvalidState:
		return "invalid state"
	case StatusNotReady:
		return "not ready"
	case StatusBusy:
		return "busy"
	case StatusInProgress:
		return "in progress"
	case StatusAbort:
		return "aborted"
	case StatusTimeout:
		return "timeout"
	case StatusNotFound:
		return "not found"
	case StatusInvalidParameter:
		return "invalid parameter"
	case StatusInvalidHandle:
		return "invalid handle"
	case StatusNoMoreResource:
		return "no more resource"
	case StatusNotSupported:
		return "not supported"
	default:
		return fmt.Sprintf("status 0x%04X", code)
	}
}
