// Package bgapitest builds module-side BGAPI packets and provides a scripted
// fake co-processor for tests.
package bgapitest

import (
	"encoding/binary"

	"github.com/chaz8081/gl-ble-driver/internal/bgapi"
)

// Response encodes a response with the given status followed by extra payload bytes.
func Response(id bgapi.ID, status uint16, extra ...byte) []byte {
	p := make([]byte, 2, 2+len(extra))
	binary.LittleEndian.PutUint16(p, status)
	return bgapi.Encode(id, append(p, extra...))
}

// OK encodes a successful response with extra payload bytes.
func OK(id bgapi.ID, extra ...byte) []byte {
	return Response(id, bgapi.StatusOK, extra...)
}

func SystemBoot(major, minor uint16) []byte {
	p := make([]byte, 18)
	binary.LittleEndian.PutUint16(p[0:], major)
	binary.LittleEndian.PutUint16(p[2:], minor)
	return bgapi.Encode(bgapi.EvtSystemBoot, p)
}

func DFUBoot(version uint32) []byte {
	p := make([]byte, 4)
	binary.LittleEndian.PutUint32(p, version)
	return bgapi.Encode(bgapi.EvtDFUBoot, p)
}

func ConnectionOpened(addr [6]byte, conn uint8) []byte {
	p := make([]byte, 0, 11)
	p = append(p, addr[:]...)
	p = append(p, 0, 1, conn, 0xFF, 0xFF)
	return bgapi.Encode(bgapi.EvtConnectionOpened, p)
}

func ConnectionClosed(conn uint8, reason uint16) []byte {
	p := make([]byte, 3)
	binary.LittleEndian.PutUint16(p, reason)
	p[2] = conn
	return bgapi.Encode(bgapi.EvtConnectionClosed, p)
}

func ConnectionRSSI(conn uint8, rssi int8) []byte {
	return bgapi.Encode(bgapi.EvtConnectionRSSI, []byte{conn, 0, byte(rssi)})
}

func ScanReport(addr [6]byte, rssi int8, data []byte) []byte {
	p := make([]byte, 0, 18+len(data))
	p = append(p, 0)
	p = append(p, addr[:]...)
	p = append(p, 0, 0xFF, 1, 1, 0xFF, 0x7F, byte(rssi), 37, 0, 0, byte(len(data)))
	p = append(p, data...)
	return bgapi.Encode(bgapi.EvtScannerScanReport, p)
}

// Service encodes a gatt_service event; uuid is given in wire order.
func Service(conn uint8, handle uint32, uuid []byte) []byte {
	p := make([]byte, 6, 6+len(uuid))
	p[0] = conn
	binary.LittleEndian.PutUint32(p[1:], handle)
	p[5] = byte(len(uuid))
	return bgapi.Encode(bgapi.EvtGATTService, append(p, uuid...))
}

// Characteristic encodes a gatt_characteristic event; uuid is given in wire order.
func Characteristic(conn uint8, handle uint16, props uint8, uuid []byte) []byte {
	p := make([]byte, 5, 5+len(uuid))
	p[0] = conn
	binary.LittleEndian.PutUint16(p[1:], handle)
	p[3] = props
	p[4] = byte(len(uuid))
	return bgapi.Encode(bgapi.EvtGATTCharacteristic, append(p, uuid...))
}

func CharacteristicValue(conn uint8, char uint16, value []byte) []byte {
	p := make([]byte, 7, 7+len(value))
	p[0] = conn
	binary.LittleEndian.PutUint16(p[1:], char)
	p[3] = 0x1B
	p[6] = byte(len(value))
	return bgapi.Encode(bgapi.EvtGATTCharacteristicValue, append(p, value...))
}

func ProcedureCompleted(conn uint8, result uint16) []byte {
	p := make([]byte, 3)
	p[0] = conn
	binary.LittleEndian.PutUint16(p[1:], result)
	return bgapi.Encode(bgapi.EvtGATTProcedureCompleted, p)
}

func AttributeValue(conn uint8, attr uint16, value []byte) []byte {
	p := make([]byte, 7, 7+len(value))
	p[0] = conn
	binary.LittleEndian.PutUint16(p[1:], attr)
	p[3] = 0x12
	p[6] = byte(len(value))
	return bgapi.Encode(bgapi.EvtGATTServerAttributeValue, append(p, value...))
}

func CharacteristicStatus(conn uint8, char uint16, flags uint8, cfg uint16) []byte {
	p := make([]byte, 6)
	p[0] = conn
	binary.LittleEndian.PutUint16(p[1:], char)
	p[3] = flags
	binary.LittleEndian.PutUint16(p[4:], cfg)
	return bgapi.Encode(bgapi.EvtGATTServerCharacteristicStatus, p)
}
