package driver

import (
	"errors"
	"fmt"

	"github.com/chaz8081/gl-ble-driver/internal/bgapi"
)

// Error kinds returned by every driver operation. Use errors.Is to classify.
var (
	// ErrParameter reports malformed input or an address with no live connection.
	ErrParameter = errors.New("invalid parameter")

	// ErrProtocol reports that the module answered a command with a failure status.
	ErrProtocol = errors.New("module rejected command")

	// ErrEventMissing reports that the expected response or event did not
	// arrive before its deadline.
	ErrEventMissing = errors.New("expected event missing")

	// ErrInvoke reports an operation attempted in the wrong lifecycle state.
	ErrInvoke = errors.New("invalid invocation")

	// ErrUnknown covers transport and other unclassified failures.
	ErrUnknown = errors.New("unknown error")
)

// StatusError carries the status code of a rejected command.
type StatusError struct {
	Op     string
	Status uint16
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: %s (0x%04X)", e.Op, bgapi.StatusName(e.Status), e.Status)
}

// Is makes StatusError match ErrProtocol.
func (e *StatusError) Is(target error) bool { return target == ErrProtocol }

// CheckStatus converts a response status into a StatusError.
func CheckStatus(rsp *bgapi.Packet) error {
	status, err := bgapi.Result(rsp)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnknown, err)
	}
	if status != bgapi.StatusOK {
		return &StatusError{Op: rsp.ID.String(), Status: status}
	}
	return nil
}
