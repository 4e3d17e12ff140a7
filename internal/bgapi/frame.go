// Package bgapi implements the Silicon Labs BGAPI v3 packet format spoken by
// EFR32 network co-processors over UART.
//
// Every packet starts with a 4-byte header:
//
//	byte 0: message type (0x20 command/response, 0xA0 event) | payload length bits 8-10
//	byte 1: payload length bits 0-7
//	byte 2: message class
//	byte 3: message method
//
// followed by a little-endian payload of at most MaxPayload bytes.
package bgapi

import (
	"bytes"
	"errors"
	"fmt"
)

const (
	// HeaderSize is the fixed BGAPI header length.
	HeaderSize = 4

	// MaxPayload is the largest payload the 11-bit length field can carry.
	MaxPayload = 0x7FF

	typeCommand = 0x20
	typeEvent   = 0xA0

	idMask = 0xFFFF00F8
)

var (
	// ErrPartial is returned by Framer.Next when more bytes are needed.
	ErrPartial = errors.New("bgapi: partial frame")

	// ErrMalformed is returned when the stream does not start with a valid header.
	// The framer has already skipped the offending byte.
	ErrMalformed = errors.New("bgapi: malformed frame")
)

// ID identifies a message: the header with the length bits masked off.
// Commands and their responses share an ID.
type ID uint32

func commandID(class, method byte) ID {
	return ID(typeCommand) | ID(class)<<16 | ID(method)<<24
}

func eventID(class, method byte) ID {
	return ID(typeEvent) | ID(class)<<16 | ID(method)<<24
}

// IsEvent reports whether the ID carries the event bit.
func (id ID) IsEvent() bool { return byte(id)&0x80 != 0 }

// Class returns the message class.
func (id ID) Class() byte { return byte(id >> 16) }

// Method returns the message method within its class.
func (id ID) Method() byte { return byte(id >> 24) }

func (id ID) String() string {
	if name, ok := names[id]; ok {
		return name
	}
	kind := "cmd"
	if id.IsEvent() {
		kind = "evt"
	}
	return fmt.Sprintf("%s(0x%02X,0x%02X)", kind, id.Class(), id.Method())
}

// Packet is one decoded BGAPI message.
type Packet struct {
	ID      ID
	Payload []byte
}

// Clone returns a deep copy of p.
func (p *Packet) Clone() *Packet {
	payload := make([]byte, len(p.Payload))
	copy(payload, p.Payload)
	return &Packet{ID: p.ID, Payload: payload}
}

// Connection returns the connection handle carried by connection-scoped
// events. ok is false for messages without one.
func (p *Packet) Connection() (conn uint8, ok bool) {
	off, scoped := connectionOffset[p.ID]
	if !scoped || len(p.Payload) <= off {
		return 0, false
	}
	return p.Payload[off], true
}

// Encode serializes a message with the given ID and payload.
func Encode(id ID, payload []byte) []byte {
	n := len(payload)
	frame := make([]byte, HeaderSize, HeaderSize+n)
	frame[0] = byte(id)&0xF8 | byte(n>>8)&0x07
	frame[1] = byte(n)
	frame[2] = id.Class()
	frame[3] = id.Method()
	return append(frame, payload...)
}

// Framer reassembles packets from an arbitrarily chunked byte stream.
// It is not safe for concurrent use.
type Framer struct {
	buf bytes.Buffer
}

// Push appends raw bytes received from the link.
func (f *Framer) Push(data []byte) {
	f.buf.Write(data)
}

// Buffered returns the number of bytes not yet consumed.
func (f *Framer) Buffered() int { return f.buf.Len() }

// Reset drops any partially received frame.
func (f *Framer) Reset() { f.buf.Reset() }

// Next extracts the next complete packet.
func (f *Framer) Next() (*Packet, error) {
	raw := f.buf.Bytes()
	if len(raw) < 1 {
		return nil, ErrPartial
	}
	if t := raw[0] & 0xF8; t != typeCommand && t != typeEvent {
		f.buf.Next(1)
		return nil, fmt.Errorf("%w: type byte 0x%02X", ErrMalformed, raw[0])
	}
	if len(raw) < HeaderSize {
		return nil, ErrPartial
	}

	n := int(raw[0]&0x07)<<8 | int(raw[1])
	if len(raw) < HeaderSize+n {
		return nil, ErrPartial
	}

	hdr := f.buf.Next(HeaderSize)
	id := ID(hdr[0]&0xF8) | ID(hdr[2])<<16 | ID(hdr[3])<<24
	payload := make([]byte, n)
	copy(payload, f.buf.Next(n))
	return &Packet{ID: id & idMask, Payload: payload}, nil
}
