package silabs

import (
	"context"
	"fmt"

	"github.com/chaz8081/gl-ble-driver/internal/bgapi"
	"github.com/chaz8081/gl-ble-driver/internal/ble"
	"github.com/chaz8081/gl-ble-driver/internal/driver"
)

// Discovery configures and starts the scanner. The first rejected step
// aborts the rest.
func (r *Radio) Discovery(ctx context.Context, p ble.DiscoveryParams) error {
	release, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	for _, cmd := range []bgapi.Command{
		bgapi.ScannerSetTiming(p.Phys, p.Interval, p.Window),
		bgapi.ScannerSetMode(p.Phys, p.Type),
		bgapi.ScannerStart(p.Phys, p.Mode),
	} {
		if _, err := r.command(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (r *Radio) StopDiscovery(ctx context.Context) error {
	release, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	_, err = r.command(ctx, bgapi.ScannerStop())
	return err
}

// ensureAdvertisingSet creates the advertising set on first use. The handle
// survives failed calls so a retry does not allocate another set.
func (r *Radio) ensureAdvertisingSet(ctx context.Context) (uint8, error) {
	if r.advReady {
		return r.advHandle, nil
	}
	rsp, err := r.command(ctx, bgapi.AdvertiserCreateSet())
	if err != nil {
		return 0, err
	}
	h, err := bgapi.AdvertisingSet(rsp)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", driver.ErrUnknown, err)
	}
	r.advHandle, r.advReady = h, true
	return h, nil
}

func (r *Radio) Advertise(ctx context.Context, p ble.AdvertiseParams) error {
	if p.IntervalMin > p.IntervalMax {
		return fmt.Errorf("%w: interval min %d above max %d", driver.ErrParameter, p.IntervalMin, p.IntervalMax)
	}
	release, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	h, err := r.ensureAdvertisingSet(ctx)
	if err != nil {
		return err
	}
	for _, cmd := range []bgapi.Command{
		bgapi.AdvertiserSetPhy(h, p.Phys, p.Phys),
		bgapi.AdvertiserSetTiming(h, p.IntervalMin, p.IntervalMax, 0, 0),
		bgapi.AdvertiserStart(h, p.Discover, p.Connect),
	} {
		if _, err := r.command(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (r *Radio) SetAdvertisingData(ctx context.Context, packet uint8, hexData string) error {
	if packet != ble.AdvertisingPacket && packet != ble.ScanResponsePacket {
		return fmt.Errorf("%w: advertising packet type %d", driver.ErrParameter, packet)
	}
	data, err := decodeHex(hexData, true)
	if err != nil {
		return err
	}
	release, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	h, err := r.ensureAdvertisingSet(ctx)
	if err != nil {
		return err
	}
	cmd, err := bgapi.AdvertiserSetData(h, packet, data)
	if err != nil {
		return fmt.Errorf("%w: %v", driver.ErrParameter, err)
	}
	_, err = r.command(ctx, cmd)
	return err
}

// StopAdvertise stops and forgets the advertising set. Without one it
// does nothing.
func (r *Radio) StopAdvertise(ctx context.Context) error {
	release, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if !r.advReady {
		return nil
	}
	if _, err := r.command(ctx, bgapi.AdvertiserStop(r.advHandle)); err != nil {
		return err
	}
	r.advReady = false
	return nil
}

// Connect opens a connection and records the handle the module assigned.
// The opened event later arrives through Callbacks.OnConnectionOpened.
func (r *Radio) Connect(ctx context.Context, address string, addressType, phy uint8) error {
	mac, err := driver.ParseAddress(address)
	if err != nil {
		return err
	}
	release, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	rsp, err := r.command(ctx, bgapi.ConnectionOpen(mac, addressType, phy))
	if err != nil {
		return err
	}
	conn, err := bgapi.OpenedConnection(rsp)
	if err != nil {
		return fmt.Errorf("%w: %v", driver.ErrUnknown, err)
	}
	r.core.Devices.Add(mac, conn)
	r.log.Info("[BLE] connecting", "address", mac.String(), "handle", conn)
	return nil
}

func (r *Radio) Disconnect(ctx context.Context, address string) error {
	dev, release, err := r.lockedDevice(ctx, address)
	if err != nil {
		return err
	}
	defer release()

	if _, err := r.command(ctx, bgapi.ConnectionClose(dev.Handle)); err != nil {
		return err
	}
	r.core.Devices.Remove(dev.Address)
	return nil
}

func (r *Radio) RSSI(ctx context.Context, address string) (int8, error) {
	dev, release, err := r.lockedDevice(ctx, address)
	if err != nil {
		return 0, err
	}
	defer release()

	evt, err := r.procedure(ctx, dev.Handle, bgapi.ConnectionGetRSSI(dev.Handle), bgapi.EvtConnectionRSSI, r.opts.RSSITimeout)
	if err != nil {
		return 0, err
	}
	ev, err := bgapi.ParseConnectionRSSI(evt)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", driver.ErrUnknown, err)
	}
	return ev.RSSI, nil
}
