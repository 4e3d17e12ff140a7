// Package silabs drives Silicon Labs EFR32 network co-processors speaking
// BGAPI v3 over UART.
package silabs

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/gl-ble-driver/internal/bgapi"
	"github.com/chaz8081/gl-ble-driver/internal/ble"
	"github.com/chaz8081/gl-ble-driver/internal/driver"
)

// ChipName is the name the family registers under.
const ChipName = "silabs"

func init() {
	ble.RegisterChip(ChipName, func(core *driver.Core, opts ble.RadioOptions) ble.Radio {
		return New(core, opts)
	})
}

// Radio implements ble.Radio for one EFR32 module.
type Radio struct {
	core *driver.Core
	opts ble.RadioOptions
	log  *slog.Logger

	// calls admits one operation at a time; the module accepts a single
	// outstanding procedure.
	calls chan struct{}

	// Advertising set handle, created on first use. Guarded by calls.
	advHandle uint8
	advReady  bool
}

var _ ble.Radio = (*Radio)(nil)

// New returns a Radio on top of a started core. Zero timeouts and chunk
// size fall back to ble.DefaultRadioOptions; zero DFU delays are kept.
func New(core *driver.Core, opts ble.RadioOptions) *Radio {
	def := ble.DefaultRadioOptions()
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = def.CommandTimeout
	}
	if opts.RSSITimeout <= 0 {
		opts.RSSITimeout = def.RSSITimeout
	}
	if opts.DiscoveryTimeout <= 0 {
		opts.DiscoveryTimeout = def.DiscoveryTimeout
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	return &Radio{
		core:  core,
		opts:  opts,
		log:   core.Log,
		calls: make(chan struct{}, 1),
	}
}

// acquire takes the call lock. Waiting for it honours ctx.
func (r *Radio) acquire(ctx context.Context) (release func(), err error) {
	select {
	case r.calls <- struct{}{}:
		return func() { <-r.calls }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// lockedDevice resolves address and then takes the call lock, so a missing
// connection fails before anything else happens.
func (r *Radio) lockedDevice(ctx context.Context, address string) (driver.Device, func(), error) {
	dev, err := r.core.Devices.Lookup(address)
	if err != nil {
		return driver.Device{}, nil, err
	}
	release, err := r.acquire(ctx)
	if err != nil {
		return driver.Device{}, nil, err
	}
	return dev, release, nil
}

// command sends cmd and waits for its response, failing on a non-zero status.
func (r *Radio) command(ctx context.Context, cmd bgapi.Command) (*bgapi.Packet, error) {
	e, err := r.core.Events.Expect(cmd.ID)
	if err != nil {
		return nil, err
	}
	defer e.Release()

	if err := r.core.Events.Send(cmd.Frame); err != nil {
		return nil, err
	}
	rsp, err := e.Next(ctx, r.opts.CommandTimeout)
	if err != nil {
		return nil, err
	}
	if err := driver.CheckStatus(rsp); err != nil {
		return nil, err
	}
	return rsp, nil
}

// procedure sends a connection-scoped cmd, checks its response and then
// waits up to timeout for the terminal event.
func (r *Radio) procedure(ctx context.Context, conn uint8, cmd bgapi.Command, terminal bgapi.ID, timeout time.Duration) (*bgapi.Packet, error) {
	e, err := r.core.Events.ExpectConn(conn, cmd.ID, terminal)
	if err != nil {
		return nil, err
	}
	defer e.Release()

	if err := r.core.Events.Send(cmd.Frame); err != nil {
		return nil, err
	}
	rsp, err := e.Next(ctx, r.opts.CommandTimeout)
	if err != nil {
		return nil, err
	}
	if err := driver.CheckStatus(rsp); err != nil {
		return nil, err
	}
	return e.Next(ctx, timeout)
}

func (r *Radio) Enable(ctx context.Context, on bool) error {
	release, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	timing := r.core.Recovery.Timing()
	if !on {
		r.advReady = false
		return r.core.Events.Shutdown(ctx, timing.ShutdownWait)
	}
	if r.core.State.Booted() {
		return nil
	}
	if err := r.core.Link.PowerOn(); err != nil {
		return fmt.Errorf("%w: power on: %v", driver.ErrUnknown, err)
	}
	return r.core.State.Await(ctx, true, timing.BootWait)
}

func (r *Radio) HardReset(ctx context.Context) error {
	release, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	r.advReady = false
	return r.core.Recovery.HardReset(ctx)
}

func (r *Radio) SoftReset(ctx context.Context, mode uint8) error {
	if mode > 1 {
		return fmt.Errorf("%w: reset mode %d", driver.ErrParameter, mode)
	}
	release, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	r.advReady = false
	return r.core.Events.Send(bgapi.SystemReset(mode).Frame)
}

func (r *Radio) LocalAddress(ctx context.Context) (string, error) {
	release, err := r.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	rsp, err := r.command(ctx, bgapi.SystemGetIdentityAddress())
	if err != nil {
		return "", err
	}
	addr, _, err := bgapi.IdentityAddress(rsp)
	if err != nil {
		return "", fmt.Errorf("%w: %v", driver.ErrUnknown, err)
	}
	return bluetooth.MAC(addr).String(), nil
}

// SetPower asks for a maximum TX power. The module clamps it to what the
// hardware supports and the clamped value is returned.
func (r *Radio) SetPower(ctx context.Context, power int16) (int16, error) {
	release, err := r.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	rsp, err := r.command(ctx, bgapi.SystemSetTxPower(0, power))
	if err != nil {
		return 0, err
	}
	_, applied, err := bgapi.TxPower(rsp)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", driver.ErrUnknown, err)
	}
	if applied != power {
		r.log.Info("[BLE] tx power clamped", "requested", power, "applied", applied)
	}
	return applied, nil
}

// decodeHex turns a hex string into bytes, rejecting odd lengths and
// values longer than one BGAPI array.
func decodeHex(s string, allowEmpty bool) ([]byte, error) {
	if s == "" && !allowEmpty {
		return nil, fmt.Errorf("%w: empty value", driver.ErrParameter)
	}
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("%w: odd-length hex value", driver.ErrParameter)
	}
	if len(s)/2 > 0xFF {
		return nil, fmt.Errorf("%w: value is %d bytes, limit 255", driver.ErrParameter, len(s)/2)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", driver.ErrParameter, err)
	}
	return b, nil
}
