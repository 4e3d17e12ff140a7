package bgapi

import (
	"encoding/binary"
	"fmt"
)

// Command is an encoded request ready to be written to the link.
type Command struct {
	ID    ID
	Frame []byte
}

func newCommand(id ID, payload []byte) Command {
	return Command{ID: id, Frame: Encode(id, payload)}
}

// SystemReset reboots the module. Mode 0 boots the application, 1 the
// UART DFU bootloader. The module sends no response.
func SystemReset(mode uint8) Command {
	return newCommand(CmdSystemReset, []byte{mode})
}

// SystemGetIdentityAddress reads the module's public identity address.
func SystemGetIdentityAddress() Command {
	return newCommand(CmdSystemGetIdentityAddress, nil)
}

// SystemSetTxPower requests a TX power range in 0.1 dBm units.
func SystemSetTxPower(min, max int16) Command {
	p := make([]byte, 4)
	binary.LittleEndian.PutUint16(p[0:], uint16(min))
	binary.LittleEndian.PutUint16(p[2:], uint16(max))
	return newCommand(CmdSystemSetTxPower, p)
}

// ScannerSetTiming sets the scan interval and window, in 0.625 ms units,
// for the PHYs in the phys bitmask.
func ScannerSetTiming(phys uint8, interval, window uint16) Command {
	p := make([]byte, 5)
	p[0] = phys
	binary.LittleEndian.PutUint16(p[1:], interval)
	binary.LittleEndian.PutUint16(p[3:], window)
	return newCommand(CmdScannerSetTiming, p)
}

// ScannerSetMode selects passive (0) or active (1) scanning.
func ScannerSetMode(phys, mode uint8) Command {
	return newCommand(CmdScannerSetMode, []byte{phys, mode})
}

// ScannerStart begins scanning. Reports arrive as scanner_scan_report events.
func ScannerStart(phys, discoverMode uint8) Command {
	return newCommand(CmdScannerStart, []byte{phys, discoverMode})
}

// ScannerStop ends scanning.
func ScannerStop() Command {
	return newCommand(CmdScannerStop, nil)
}

// AdvertiserCreateSet allocates an advertising set. The response carries
// its handle.
func AdvertiserCreateSet() Command {
	return newCommand(CmdAdvertiserCreateSet, nil)
}

// AdvertiserSetPhy picks the primary and secondary advertising PHYs.
func AdvertiserSetPhy(handle, primary, secondary uint8) Command {
	return newCommand(CmdAdvertiserSetPhy, []byte{handle, primary, secondary})
}

// AdvertiserSetTiming sets the interval range in 0.625 ms units. A zero
// duration and maxEvents advertise until stopped.
func AdvertiserSetTiming(handle uint8, intervalMin, intervalMax uint32, duration uint16, maxEvents uint8) Command {
	p := make([]byte, 12)
	p[0] = handle
	binary.LittleEndian.PutUint32(p[1:], intervalMin)
	binary.LittleEndian.PutUint32(p[5:], intervalMax)
	binary.LittleEndian.PutUint16(p[9:], duration)
	p[11] = maxEvents
	return newCommand(CmdAdvertiserSetTiming, p)
}

// AdvertiserStart starts advertising with the given discoverable and
// connectable modes.
func AdvertiserStart(handle, discover, connect uint8) Command {
	return newCommand(CmdAdvertiserStart, []byte{handle, discover, connect})
}

// AdvertiserSetData sets advertising (packet 0) or scan response (packet 1) data.
func AdvertiserSetData(handle, packet uint8, data []byte) (Command, error) {
	if len(data) > 0xFF {
		return Command{}, fmt.Errorf("bgapi: advertising data too long: %d bytes", len(data))
	}
	p := append([]byte{handle, packet, byte(len(data))}, data...)
	return newCommand(CmdAdvertiserSetData, p), nil
}

// AdvertiserStop stops the advertising set.
func AdvertiserStop(handle uint8) Command {
	return newCommand(CmdAdvertiserStop, []byte{handle})
}

// ConnectionOpen starts a connection to a peer. addr is in wire
// (little-endian) order.
func ConnectionOpen(addr [6]byte, addrType, phy uint8) Command {
	p := make([]byte, 0, 8)
	p = append(p, addr[:]...)
	p = append(p, addrType, phy)
	return newCommand(CmdConnectionOpen, p)
}

// ConnectionClose disconnects. Completion is reported by
// connection_closed.
func ConnectionClose(conn uint8) Command {
	return newCommand(CmdConnectionClose, []byte{conn})
}

// ConnectionGetRSSI requests a connection_rssi event for conn.
func ConnectionGetRSSI(conn uint8) Command {
	return newCommand(CmdConnectionGetRSSI, []byte{conn})
}

// GATTDiscoverPrimaryServices starts service discovery. Each service
// arrives as gatt_service, then gatt_procedure_completed.
func GATTDiscoverPrimaryServices(conn uint8) Command {
	return newCommand(CmdGATTDiscoverPrimaryServices, []byte{conn})
}

// GATTDiscoverCharacteristics lists the characteristics of one service
// handle.
func GATTDiscoverCharacteristics(conn uint8, service uint32) Command {
	p := make([]byte, 5)
	p[0] = conn
	binary.LittleEndian.PutUint32(p[1:], service)
	return newCommand(CmdGATTDiscoverCharacteristics, p)
}

// GATTSetCharacteristicNotification writes the client configuration:
// 0 off, 1 notify, 2 indicate.
func GATTSetCharacteristicNotification(conn uint8, char uint16, flags uint8) Command {
	p := make([]byte, 4)
	p[0] = conn
	binary.LittleEndian.PutUint16(p[1:], char)
	p[3] = flags
	return newCommand(CmdGATTSetCharacteristicNotification, p)
}

// GATTReadCharacteristicValue reads a remote value. The value arrives as
// gatt_characteristic_value.
func GATTReadCharacteristicValue(conn uint8, char uint16) Command {
	p := make([]byte, 3)
	p[0] = conn
	binary.LittleEndian.PutUint16(p[1:], char)
	return newCommand(CmdGATTReadCharacteristicValue, p)
}

// GATTWriteCharacteristicValue writes a remote value and waits for the
// peer's acknowledgement.
func GATTWriteCharacteristicValue(conn uint8, char uint16, value []byte) (Command, error) {
	p, err := valuePayload(conn, char, value)
	if err != nil {
		return Command{}, err
	}
	return newCommand(CmdGATTWriteCharacteristicValue, p), nil
}

// GATTWriteCharacteristicValueWithoutResponse writes a remote value with
// no acknowledgement. The response reports how many bytes were sent.
func GATTWriteCharacteristicValueWithoutResponse(conn uint8, char uint16, value []byte) (Command, error) {
	p, err := valuePayload(conn, char, value)
	if err != nil {
		return Command{}, err
	}
	return newCommand(CmdGATTWriteCharacteristicValueWithoutRsp, p), nil
}

// GATTServerSendNotification pushes a local characteristic value to a
// subscribed peer.
func GATTServerSendNotification(conn uint8, char uint16, value []byte) (Command, error) {
	p, err := valuePayload(conn, char, value)
	if err != nil {
		return Command{}, err
	}
	return newCommand(CmdGATTServerSendNotification, p), nil
}

func valuePayload(conn uint8, char uint16, value []byte) ([]byte, error) {
	if len(value) > 0xFF {
		return nil, fmt.Errorf("bgapi: value too long: %d bytes", len(value))
	}
	p := make([]byte, 4, 4+len(value))
	p[0] = conn
	binary.LittleEndian.PutUint16(p[1:], char)
	p[3] = byte(len(value))
	return append(p, value...), nil
}

// DFUFlashSetAddress sets the flash offset for the next upload. The
// bootloader expects 0.
func DFUFlashSetAddress(addr uint32) Command {
	p := make([]byte, 4)
	binary.LittleEndian.PutUint32(p, addr)
	return newCommand(CmdDFUFlashSetAddress, p)
}

// DFUFlashUpload sends one block of the firmware image.
func DFUFlashUpload(data []byte) (Command, error) {
	if len(data) == 0 || len(data) > 0xFF {
		return Command{}, fmt.Errorf("bgapi: upload block must be 1-255 bytes, got %d", len(data))
	}
	p := append([]byte{byte(len(data))}, data...)
	return newCommand(CmdDFUFlashUpload, p), nil
}

// DFUFlashUploadFinish tells the bootloader the image is complete.
func DFUFlashUploadFinish() Command {
	return newCommand(CmdDFUFlashUploadFinish, nil)
}
