// Package driver holds the per-module runtime shared by every chip family:
// the event correlator, the connection table, the boot state, the watcher
// that delivers unsolicited events and the hard reset sequence.
package driver

import (
	"fmt"
	"log/slog"

	"github.com/chaz8081/gl-ble-driver/internal/transport"
)

// Core is one driver instance bound to one module link.
type Core struct {
	Link     transport.Link
	Events   *Correlator
	Devices  *DeviceTable
	State    *ModuleState
	Recovery *Recovery
	Log      *slog.Logger
}

// NewCore assembles the runtime around link. Nothing runs until Start.
func NewCore(link transport.Link, timing ResetTiming, log *slog.Logger) *Core {
	if log == nil {
		log = slog.Default()
	}
	state := NewModuleState()
	devices := NewDeviceTable(log)
	events := NewCorrelator(link, state, devices, log)
	return &Core{
		Link:     link,
		Events:   events,
		Devices:  devices,
		State:    state,
		Recovery: NewRecovery(events, state, link, timing, log),
		Log:      log,
	}
}

// Start begins reading from the link.
func (c *Core) Start() {
	c.Events.Start()
}

// Close releases the link and stops the correlator. Known connections are
// forgotten.
func (c *Core) Close() error {
	c.Events.halt()
	err := c.Link.Close()
	c.Events.Stop()
	c.Devices.DestroyAll()
	c.State.Set(false)
	if err != nil {
		return fmt.Errorf("%w: close link: %v", ErrUnknown, err)
	}
	return nil
}
