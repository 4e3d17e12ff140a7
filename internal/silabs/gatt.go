package silabs

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/chaz8081/gl-ble-driver/internal/bgapi"
	"github.com/chaz8081/gl-ble-driver/internal/ble"
	"github.com/chaz8081/gl-ble-driver/internal/driver"
)

// uuidString renders a wire-order UUID in conventional big-endian hex.
func uuidString(wire []byte) string {
	be := make([]byte, len(wire))
	for i, b := range wire {
		be[len(wire)-1-i] = b
	}
	return hex.EncodeToString(be)
}

// discover runs a GATT discovery procedure and returns the events captured
// for conn. The capture window is closed on every path, so nothing from a
// failed call leaks into the next one.
func (r *Radio) discover(ctx context.Context, conn uint8, cmd bgapi.Command, item bgapi.ID) ([]*bgapi.Packet, error) {
	if err := r.core.Events.OpenCapture(conn, item); err != nil {
		return nil, err
	}
	done, err := r.procedure(ctx, conn, cmd, bgapi.EvtGATTProcedureCompleted, r.opts.DiscoveryTimeout)
	captured := r.core.Events.CloseCapture()
	if err != nil {
		return nil, err
	}
	if err := procedureResult(cmd.ID, done); err != nil {
		return nil, err
	}
	return captured, nil
}

func procedureResult(op bgapi.ID, done *bgapi.Packet) error {
	ev, err := bgapi.ParseProcedureCompleted(done)
	if err != nil {
		return fmt.Errorf("%w: %v", driver.ErrUnknown, err)
	}
	if ev.Result != bgapi.StatusOK {
		return &driver.StatusError{Op: op.String(), Status: ev.Result}
	}
	return nil
}

func (r *Radio) Services(ctx context.Context, address string) ([]ble.Service, error) {
	dev, release, err := r.lockedDevice(ctx, address)
	if err != nil {
		return nil, err
	}
	defer release()

	packets, err := r.discover(ctx, dev.Handle, bgapi.GATTDiscoverPrimaryServices(dev.Handle), bgapi.EvtGATTService)
	if err != nil {
		return nil, err
	}

	services := make([]ble.Service, 0, len(packets))
	for _, p := range packets {
		ev, err := bgapi.ParseGATTService(p)
		if err != nil {
			r.log.Warn("[BLE] skipping malformed service", "error", err)
			continue
		}
		services = append(services, ble.Service{Handle: ev.Service, UUID: uuidString(ev.UUID)})
	}
	return services, nil
}

func (r *Radio) Characteristics(ctx context.Context, address string, service uint32) ([]ble.Characteristic, error) {
	dev, release, err := r.lockedDevice(ctx, address)
	if err != nil {
		return nil, err
	}
	defer release()

	packets, err := r.discover(ctx, dev.Handle, bgapi.GATTDiscoverCharacteristics(dev.Handle, service), bgapi.EvtGATTCharacteristic)
	if err != nil {
		return nil, err
	}

	chars := make([]ble.Characteristic, 0, len(packets))
	for _, p := range packets {
		ev, err := bgapi.ParseGATTCharacteristic(p)
		if err != nil {
			r.log.Warn("[BLE] skipping malformed characteristic", "error", err)
			continue
		}
		chars = append(chars, ble.Characteristic{
			Handle:     ev.Characteristic,
			Properties: ev.Properties,
			UUID:       uuidString(ev.UUID),
		})
	}
	return chars, nil
}

func (r *Radio) ReadChar(ctx context.Context, address string, char uint16) error {
	dev, release, err := r.lockedDevice(ctx, address)
	if err != nil {
		return err
	}
	defer release()

	_, err = r.command(ctx, bgapi.GATTReadCharacteristicValue(dev.Handle, char))
	return err
}

// WriteChar writes a hex-encoded value. Without a response the module
// reports how much it queued; zero bytes is a failure.
func (r *Radio) WriteChar(ctx context.Context, address string, char uint16, hexValue string, withResponse bool) error {
	value, err := decodeHex(hexValue, false)
	if err != nil {
		return err
	}
	dev, release, err := r.lockedDevice(ctx, address)
	if err != nil {
		return err
	}
	defer release()

	if withResponse {
		cmd, err := bgapi.GATTWriteCharacteristicValue(dev.Handle, char, value)
		if err != nil {
			return fmt.Errorf("%w: %v", driver.ErrParameter, err)
		}
		_, err = r.command(ctx, cmd)
		return err
	}

	cmd, err := bgapi.GATTWriteCharacteristicValueWithoutResponse(dev.Handle, char, value)
	if err != nil {
		return fmt.Errorf("%w: %v", driver.ErrParameter, err)
	}
	rsp, err := r.command(ctx, cmd)
	if err != nil {
		return err
	}
	sent, err := bgapi.SentLength(rsp)
	if err != nil {
		return fmt.Errorf("%w: %v", driver.ErrUnknown, err)
	}
	if sent == 0 {
		return fmt.Errorf("%w: module sent 0 of %d bytes", driver.ErrProtocol, len(value))
	}
	return nil
}

func (r *Radio) SetNotify(ctx context.Context, address string, char uint16, flags uint8) error {
	if flags > ble.IndicateEnable {
		return fmt.Errorf("%w: notification flags 0x%02X", driver.ErrParameter, flags)
	}
	dev, release, err := r.lockedDevice(ctx, address)
	if err != nil {
		return err
	}
	defer release()

	_, err = r.command(ctx, bgapi.GATTSetCharacteristicNotification(dev.Handle, char, flags))
	return err
}

func (r *Radio) SendNotify(ctx context.Context, address string, char uint16, hexValue string) error {
	value, err := decodeHex(hexValue, false)
	if err != nil {
		return err
	}
	dev, release, err := r.lockedDevice(ctx, address)
	if err != nil {
		return err
	}
	defer release()

	cmd, err := bgapi.GATTServerSendNotification(dev.Handle, char, value)
	if err != nil {
		return fmt.Errorf("%w: %v", driver.ErrParameter, err)
	}
	_, err = r.command(ctx, cmd)
	return err
}
