package driver

import (
	"fmt"
	"strings"

	"tinygo.org/x/bluetooth"
)

// ParseAddress accepts a radio address as "AA:BB:CC:DD:EE:FF" or as 12 plain
// hex digits, in either case. The returned MAC is in wire (little-endian) order.
func ParseAddress(s string) (bluetooth.MAC, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch {
	case len(s) == 12 && !strings.Contains(s, ":"):
	case len(s) == 17 && strings.Count(s, ":") == 5:
		for i := 2; i < len(s); i += 3 {
			if s[i] != ':' {
				return bluetooth.MAC{}, fmt.Errorf("%w: malformed address %q", ErrParameter, s)
			}
		}
	default:
		return bluetooth.MAC{}, fmt.Errorf("%w: malformed address %q", ErrParameter, s)
	}

	mac, err := bluetooth.ParseMAC(s)
	if err != nil {
		return bluetooth.MAC{}, fmt.Errorf("%w: address %q: %v", ErrParameter, s, err)
	}
	return mac, nil
}
