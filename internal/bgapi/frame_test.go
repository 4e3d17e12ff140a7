package bgapi

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeHeader(t *testing.T) {
	frame := Encode(CmdGATTDiscoverPrimaryServices, []byte{0x03})
	want := []byte{0x20, 0x01, ClassGATT, 0x01, 0x03}
	if !bytes.Equal(frame, want) {
		t.Errorf("Encode() = % X, want % X", frame, want)
	}
}

func TestEncodeLongPayloadLength(t *testing.T) {
	payload := make([]byte, 0x1A5)
	frame := Encode(EvtScannerScanReport, payload)
	if frame[0] != 0xA1 || frame[1] != 0xA5 {
		t.Errorf("header = % X, want A1 A5", frame[:2])
	}
}

func TestFramerReassemblesSplitStream(t *testing.T) {
	var stream []byte
	stream = append(stream, Encode(EvtSystemBoot, make([]byte, 18))...)
	stream = append(stream, Encode(CmdScannerStart, []byte{0x00, 0x00})...)

	var f Framer
	var got []*Packet
	for i := 0; i < len(stream); i++ {
		f.Push(stream[i : i+1])
		for {
			p, err := f.Next()
			if errors.Is(err, ErrPartial) {
				break
			}
			if err != nil {
				t.Fatalf("Next() error = %v", err)
			}
			got = append(got, p)
		}
	}

	if len(got) != 2 {
		t.Fatalf("decoded %d packets, want 2", len(got))
	}
	if got[0].ID != EvtSystemBoot || len(got[0].Payload) != 18 {
		t.Errorf("packet 0 = %s/%d bytes, want evt_system_boot/18", got[0].ID, len(got[0].Payload))
	}
	if got[1].ID != CmdScannerStart {
		t.Errorf("packet 1 = %s, want scanner_start", got[1].ID)
	}
	if f.Buffered() != 0 {
		t.Errorf("Buffered() = %d after full decode, want 0", f.Buffered())
	}
}

func TestFramerResyncsOnGarbage(t *testing.T) {
	var f Framer
	f.Push([]byte{0x00, 0x55})
	f.Push(Encode(EvtConnectionRSSI, []byte{1, 0, 0xC4}))

	malformed := 0
	for {
		p, err := f.Next()
		if errors.Is(err, ErrMalformed) {
			malformed++
			continue
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if p.ID != EvtConnectionRSSI {
			t.Fatalf("ID = %s, want evt_connection_rssi", p.ID)
		}
		break
	}
	if malformed != 2 {
		t.Errorf("malformed count = %d, want 2", malformed)
	}
}

func TestPacketConnection(t *testing.T) {
	tests := []struct {
		name   string
		packet *Packet
		want   uint8
		ok     bool
	}{
		{"service", &Packet{ID: EvtGATTService, Payload: []byte{4, 0, 0, 0, 0, 0}}, 4, true},
		{"closed", &Packet{ID: EvtConnectionClosed, Payload: []byte{0x13, 0x02, 9}}, 9, true},
		{"boot", &Packet{ID: EvtSystemBoot, Payload: make([]byte, 18)}, 0, false},
		{"truncated", &Packet{ID: EvtConnectionClosed, Payload: []byte{0x13}}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.packet.Connection()
			if got != tt.want || ok != tt.ok {
				t.Errorf("Connection() = %d, %v; want %d, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestResultAndTruncation(t *testing.T) {
	status, err := Result(&Packet{ID: CmdScannerStop, Payload: []byte{0x02, 0x00}})
	if err != nil || status != StatusInvalidState {
		t.Errorf("Result() = 0x%04X, %v; want 0x0002, nil", status, err)
	}

	if _, err := ParseConnectionRSSI(&Packet{ID: EvtConnectionRSSI, Payload: []byte{1}}); err == nil {
		t.Error("ParseConnectionRSSI() on truncated payload should fail")
	}

	if _, err := ParseConnectionRSSI(&Packet{ID: EvtGATTService, Payload: []byte{1, 0, 0}}); err == nil {
		t.Error("ParseConnectionRSSI() on wrong ID should fail")
	}
}

func TestParseGATTService(t *testing.T) {
	p := &Packet{ID: EvtGATTService, Payload: []byte{1, 0x10, 0, 0, 0, 2, 0x00, 0x18}}
	svc, err := ParseGATTService(p)
	if err != nil {
		t.Fatalf("ParseGATTService() error = %v", err)
	}
	if svc.Connection != 1 || svc.Service != 0x10 || !bytes.Equal(svc.UUID, []byte{0x00, 0x18}) {
		t.Errorf("ParseGATTService() = %+v", svc)
	}
}

func TestIDString(t *testing.T) {
	if got := EvtGATTProcedureCompleted.String(); got != "evt_gatt_procedure_completed" {
		t.Errorf("String() = %q", got)
	}
	if got := commandID(0x33, 0x44).String(); got != "cmd(0x33,0x44)" {
		t.Errorf("String() = %q", got)
	}
}
