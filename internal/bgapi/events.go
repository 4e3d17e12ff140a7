package bgapi

import (
	"encoding/binary"
	"fmt"
)

// StatusOK is the success result carried by every response.
const StatusOK = 0x0000

// reader walks a little-endian payload, latching the first short read.
type reader struct {
	id  ID
	b   []byte
	off int
	err error
}

func newReader(p *Packet, want ID) *reader {
	r := &reader{id: p.ID, b: p.Payload}
	if p.ID != want {
		r.err = fmt.Errorf("bgapi: expected %s, got %s", want, p.ID)
	}
	return r
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.b) {
		r.err = fmt.Errorf("bgapi: %s payload truncated: need %d bytes at offset %d, have %d",
			r.id, n, r.off, len(r.b))
		return nil
	}
	v := r.b[r.off : r.off+n]
	r.off += n
	return v
}

func (r *reader) u8() uint8 {
	if v := r.take(1); v != nil {
		return v[0]
	}
	return 0
}

func (r *reader) i8() int8 { return int8(r.u8()) }

func (r *reader) u16() uint16 {
	if v := r.take(2); v != nil {
		return binary.LittleEndian.Uint16(v)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if v := r.take(4); v != nil {
		return binary.LittleEndian.Uint32(v)
	}
	return 0
}

func (r *reader) addr() (a [6]byte) {
	if v := r.take(6); v != nil {
		copy(a[:], v)
	}
	return a
}

// array reads a uint8 length-prefixed byte array, copying it out.
func (r *reader) array() []byte {
	n := int(r.u8())
	v := r.take(n)
	if v == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, v)
	return out
}

// Result returns the status code that leads every response payload.
func Result(p *Packet) (uint16, error) {
	if p.ID.IsEvent() {
		return 0, fmt.Errorf("bgapi: %s is not a response", p.ID)
	}
	r := newReader(p, p.ID)
	status := r.u16()
	return status, r.err
}

// IdentityAddress parses the system_get_identity_address response.
func IdentityAddress(p *Packet) (addr [6]byte, addrType uint8, err error) {
	r := newReader(p, CmdSystemGetIdentityAddress)
	r.u16()
	addr = r.addr()
	addrType = r.u8()
	return addr, addrType, r.err
}

// TxPower parses the system_set_tx_power response into the power range the
// module actually applied.
func TxPower(p *Packet) (setMin, setMax int16, err error) {
	r := newReader(p, CmdSystemSetTxPower)
	r.u16()
	setMin = int16(r.u16())
	setMax = int16(r.u16())
	return setMin, setMax, r.err
}

// AdvertisingSet parses the advertiser_create_set response.
func AdvertisingSet(p *Packet) (uint8, error) {
	r := newReader(p, CmdAdvertiserCreateSet)
	r.u16()
	h := r.u8()
	return h, r.err
}

// OpenedConnection parses the connection_open response.
func OpenedConnection(p *Packet) (uint8, error) {
	r := newReader(p, CmdConnectionOpen)
	r.u16()
	c := r.u8()
	return c, r.err
}

// SentLength parses the write-without-response result.
func SentLength(p *Packet) (uint16, error) {
	r := newReader(p, CmdGATTWriteCharacteristicValueWithoutRsp)
	r.u16()
	n := r.u16()
	return n, r.err
}

// SystemBoot is sent when the application firmware has started.
type SystemBoot struct {
	Major, Minor, Patch, Build uint16
	Bootloader                 uint32
	HW                         uint16
	Hash                       uint32
}

// ParseSystemBoot decodes a system_boot event.
func ParseSystemBoot(p *Packet) (SystemBoot, error) {
	r := newReader(p, EvtSystemBoot)
	e := SystemBoot{
		Major:      r.u16(),
		Minor:      r.u16(),
		Patch:      r.u16(),
		Build:      r.u16(),
		Bootloader: r.u32(),
		HW:         r.u16(),
		Hash:       r.u32(),
	}
	return e, r.err
}

// DFUBoot is sent when the module enters the UART DFU bootloader.
type DFUBoot struct {
	Version uint32
}

// ParseDFUBoot decodes a dfu_boot event.
func ParseDFUBoot(p *Packet) (DFUBoot, error) {
	r := newReader(p, EvtDFUBoot)
	e := DFUBoot{Version: r.u32()}
	return e, r.err
}

// ConnectionOpened reports a new connection. Master is 1 when the module
// is the central.
type ConnectionOpened struct {
	Address     [6]byte
	AddressType uint8
	Master      uint8
	Connection  uint8
	Bonding     uint8
	Advertiser  uint8
}

// ParseConnectionOpened decodes a connection_opened event.
func ParseConnectionOpened(p *Packet) (ConnectionOpened, error) {
	r := newReader(p, EvtConnectionOpened)
	e := ConnectionOpened{
		Address:     r.addr(),
		AddressType: r.u8(),
		Master:      r.u8(),
		Connection:  r.u8(),
		Bonding:     r.u8(),
		Advertiser:  r.u8(),
	}
	return e, r.err
}

// ConnectionClosed reports a dropped connection with its HCI reason.
type ConnectionClosed struct {
	Reason     uint16
	Connection uint8
}

// ParseConnectionClosed decodes a connection_closed event.
func ParseConnectionClosed(p *Packet) (ConnectionClosed, error) {
	r := newReader(p, EvtConnectionClosed)
	e := ConnectionClosed{Reason: r.u16(), Connection: r.u8()}
	return e, r.err
}

// ConnectionRSSI carries a signal strength sample in dBm.
type ConnectionRSSI struct {
	Connection uint8
	Status     uint8
	RSSI       int8
}

// ParseConnectionRSSI decodes a connection_rssi event.
func ParseConnectionRSSI(p *Packet) (ConnectionRSSI, error) {
	r := newReader(p, EvtConnectionRSSI)
	e := ConnectionRSSI{Connection: r.u8(), Status: r.u8(), RSSI: r.i8()}
	return e, r.err
}

// ScanReport is one advertisement or scan response seen by the scanner.
type ScanReport struct {
	PacketType       uint8
	Address          [6]byte
	AddressType      uint8
	Bonding          uint8
	PrimaryPhy       uint8
	SecondaryPhy     uint8
	AdvSID           uint8
	TxPower          int8
	RSSI             int8
	Channel          uint8
	PeriodicInterval uint16
	Data             []byte
}

// ParseScanReport decodes a scanner_scan_report event.
func ParseScanReport(p *Packet) (ScanReport, error) {
	r := newReader(p, EvtScannerScanReport)
	e := ScanReport{
		PacketType:       r.u8(),
		Address:          r.addr(),
		AddressType:      r.u8(),
		Bonding:          r.u8(),
		PrimaryPhy:       r.u8(),
		SecondaryPhy:     r.u8(),
		AdvSID:           r.u8(),
		TxPower:          r.i8(),
		RSSI:             r.i8(),
		Channel:          r.u8(),
		PeriodicInterval: r.u16(),
	}
	e.Data = r.array()
	return e, r.err
}

// GATTService is one primary service found during discovery.
type GATTService struct {
	Connection uint8
	Service    uint32
	UUID       []byte // wire order (little-endian)
}

// ParseGATTService decodes a gatt_service event.
func ParseGATTService(p *Packet) (GATTService, error) {
	r := newReader(p, EvtGATTService)
	e := GATTService{Connection: r.u8(), Service: r.u32()}
	e.UUID = r.array()
	return e, r.err
}

// GATTCharacteristic is one characteristic found during discovery.
type GATTCharacteristic struct {
	Connection     uint8
	Characteristic uint16
	Properties     uint8
	UUID           []byte // wire order (little-endian)
}

// ParseGATTCharacteristic decodes a gatt_characteristic event.
func ParseGATTCharacteristic(p *Packet) (GATTCharacteristic, error) {
	r := newReader(p, EvtGATTCharacteristic)
	e := GATTCharacteristic{Connection: r.u8(), Characteristic: r.u16(), Properties: r.u8()}
	e.UUID = r.array()
	return e, r.err
}

// GATTCharacteristicValue is a remote value from a read, notification or
// indication.
type GATTCharacteristicValue struct {
	Connection     uint8
	Characteristic uint16
	ATTOpcode      uint8
	Offset         uint16
	Value          []byte
}

// ParseGATTCharacteristicValue decodes a gatt_characteristic_value event.
func ParseGATTCharacteristicValue(p *Packet) (GATTCharacteristicValue, error) {
	r := newReader(p, EvtGATTCharacteristicValue)
	e := GATTCharacteristicValue{
		Connection:     r.u8(),
		Characteristic: r.u16(),
		ATTOpcode:      r.u8(),
		Offset:         r.u16(),
	}
	e.Value = r.array()
	return e, r.err
}

// ProcedureCompleted ends a GATT client procedure. Result is a BGAPI
// status code.
type ProcedureCompleted struct {
	Connection uint8
	Result     uint16
}

// ParseProcedureCompleted decodes a gatt_procedure_completed event.
func ParseProcedureCompleted(p *Packet) (ProcedureCompleted, error) {
	r := newReader(p, EvtGATTProcedureCompleted)
	e := ProcedureCompleted{Connection: r.u8(), Result: r.u16()}
	return e, r.err
}

// AttributeValue reports a peer writing a local attribute.
type AttributeValue struct {
	Connection uint8
	Attribute  uint16
	ATTOpcode  uint8
	Offset     uint16
	Value      []byte
}

// ParseAttributeValue decodes a gatt_server_attribute_value event.
func ParseAttributeValue(p *Packet) (AttributeValue, error) {
	r := newReader(p, EvtGATTServerAttributeValue)
	e := AttributeValue{
		Connection: r.u8(),
		Attribute:  r.u16(),
		ATTOpcode:  r.u8(),
		Offset:     r.u16(),
	}
	e.Value = r.array()
	return e, r.err
}

// CharacteristicStatus reports a peer changing its client configuration
// or confirming an indication.
type CharacteristicStatus struct {
	Connection        uint8
	Characteristic    uint16
	StatusFlags       uint8
	ClientConfigFlags uint16
}

// ParseCharacteristicStatus decodes a gatt_server_characteristic_status
// event.
func ParseCharacteristicStatus(p *Packet) (CharacteristicStatus, error) {
	r := newReader(p, EvtGATTServerCharacteristicStatus)
	e := CharacteristicStatus{
		Connection:        r.u8(),
		Characteristic:    r.u16(),
		StatusFlags:       r.u8(),
		ClientConfigFlags: r.u16(),
	}
	return e, r.err
}
