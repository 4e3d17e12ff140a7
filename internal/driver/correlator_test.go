package driver

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chaz8081/gl-ble-driver/internal/bgapi"
	"github.com/chaz8081/gl-ble-driver/internal/bgapi/bgapitest"
)

// fastTiming keeps reset tests well under a second.
var fastTiming = ResetTiming{
	Attempts:     3,
	ShutdownWait: 200 * time.Millisecond,
	PowerOnDelay: time.Millisecond,
	BootWait:     100 * time.Millisecond,
}

func startCore(t *testing.T) (*Core, *bgapitest.Module) {
	t.Helper()
	m := bgapitest.NewModule()
	c := NewCore(m, fastTiming, nil)
	c.Start()
	t.Cleanup(func() { _ = c.Close() })
	return c, m
}

type fed struct {
	packet *bgapi.Packet
	peer   *Device
}

// recordingSink collects unsolicited packets.
type recordingSink struct {
	ch chan fed
}

func newRecordingSink() *recordingSink {
	return &recordingSink{ch: make(chan fed, 128)}
}

func (s *recordingSink) Feed(p *bgapi.Packet, peer *Device) {
	s.ch <- fed{packet: p, peer: peer}
}

func (s *recordingSink) next(t *testing.T) fed {
	t.Helper()
	select {
	case f := <-s.ch:
		return f
	case <-time.After(time.Second):
		t.Fatal("no unsolicited packet within 1s")
		return fed{}
	}
}

func TestWaitReturnsEventBeforeDeadline(t *testing.T) {
	c, m := startCore(t)

	go func() {
		for !c.Events.Pending() {
			time.Sleep(time.Millisecond)
		}
		m.Emit(bgapitest.ConnectionRSSI(1, -60))
	}()

	p, err := c.Events.Wait(context.Background(), bgapi.EvtConnectionRSSI, time.Second)
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	ev, err := bgapi.ParseConnectionRSSI(p)
	if err != nil || ev.RSSI != -60 {
		t.Errorf("RSSI = %d, %v; want -60", ev.RSSI, err)
	}
	if c.Events.Pending() {
		t.Error("expectation still registered after Wait returned")
	}
}

func TestWaitTimeoutClearsSlotAndForwardsLateEvent(t *testing.T) {
	c, m := startCore(t)
	sink := newRecordingSink()
	c.Events.Subscribe(sink)

	start := time.Now()
	_, err := c.Events.Wait(context.Background(), bgapi.EvtConnectionRSSI, 50*time.Millisecond)
	if !errors.Is(err, ErrEventMissing) {
		t.Fatalf("Wait() error = %v, want ErrEventMissing", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Wait() returned after %v, before its deadline", elapsed)
	}
	if c.Events.Pending() {
		t.Error("expectation still registered after timeout")
	}

	m.Emit(bgapitest.ConnectionRSSI(1, -70))
	if got := sink.next(t); got.packet.ID != bgapi.EvtConnectionRSSI {
		t.Errorf("late packet = %s, want evt_connection_rssi", got.packet.ID)
	}
}

func TestExpectRejectsSecondRegistration(t *testing.T) {
	c, _ := startCore(t)

	e, err := c.Events.Expect(bgapi.CmdScannerStop)
	if err != nil {
		t.Fatalf("Expect() error = %v", err)
	}
	if _, err := c.Events.Expect(bgapi.CmdScannerStart); !errors.Is(err, ErrInvoke) {
		t.Errorf("second Expect() error = %v, want ErrInvoke", err)
	}
	e.Release()
	e.Release()

	e2, err := c.Events.Expect(bgapi.CmdScannerStart)
	if err != nil {
		t.Fatalf("Expect() after Release error = %v", err)
	}
	e2.Release()
}

func TestExpectSequenceFiltersConnection(t *testing.T) {
	c, m := startCore(t)
	sink := newRecordingSink()
	c.Events.Subscribe(sink)

	m.Handle(bgapi.CmdGATTDiscoverPrimaryServices, func(*bgapi.Packet) [][]byte {
		return [][]byte{
			bgapitest.OK(bgapi.CmdGATTDiscoverPrimaryServices),
			bgapitest.ProcedureCompleted(2, 0),
			bgapitest.ProcedureCompleted(1, 0),
		}
	})

	cmd := bgapi.GATTDiscoverPrimaryServices(1)
	e, err := c.Events.ExpectConn(1, cmd.ID, bgapi.EvtGATTProcedureCompleted)
	if err != nil {
		t.Fatalf("ExpectConn() error = %v", err)
	}
	defer e.Release()

	if err := c.Events.Send(cmd.Frame); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	rsp, err := e.Next(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Next() response error = %v", err)
	}
	if err := CheckStatus(rsp); err != nil {
		t.Fatalf("CheckStatus() = %v", err)
	}

	done, err := e.Next(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Next() completion error = %v", err)
	}
	if conn, _ := done.Connection(); conn != 1 {
		t.Errorf("completion connection = %d, want 1", conn)
	}

	other := sink.next(t)
	if conn, _ := other.packet.Connection(); other.packet.ID != bgapi.EvtGATTProcedureCompleted || conn != 2 {
		t.Errorf("forwarded %s on connection %d, want completion on 2", other.packet.ID, conn)
	}
}

func TestCaptureWindow(t *testing.T) {
	c, m := startCore(t)
	sink := newRecordingSink()
	c.Events.Subscribe(sink)

	if err := c.Events.OpenCapture(1, bgapi.EvtGATTService); err != nil {
		t.Fatalf("OpenCapture() error = %v", err)
	}
	if err := c.Events.OpenCapture(1, bgapi.EvtGATTService); !errors.Is(err, ErrInvoke) {
		t.Errorf("second OpenCapture() error = %v, want ErrInvoke", err)
	}

	e, err := c.Events.ExpectConn(1, bgapi.EvtGATTProcedureCompleted)
	if err != nil {
		t.Fatalf("ExpectConn() error = %v", err)
	}
	defer e.Release()

	m.Emit(
		bgapitest.Service(1, 0x10, []byte{0x00, 0x18}),
		bgapitest.Service(2, 0x20, []byte{0x01, 0x18}),
		bgapitest.Service(1, 0x30, []byte{0x0F, 0x18}),
		bgapitest.ProcedureCompleted(1, 0),
	)

	if _, err := e.Next(context.Background(), time.Second); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if n := c.Events.CaptureLen(); n != 2 {
		t.Errorf("CaptureLen() = %d, want 2", n)
	}

	got := c.Events.CloseCapture()
	if len(got) != 2 {
		t.Fatalf("CloseCapture() returned %d packets, want 2", len(got))
	}
	if c.Events.CaptureLen() != 0 {
		t.Error("CaptureLen() not zero after CloseCapture")
	}

	if f := sink.next(t); f.packet.ID != bgapi.EvtGATTService {
		t.Errorf("forwarded %s, want the other connection's service", f.packet.ID)
	}
}

func TestCaptureWindowIsBounded(t *testing.T) {
	c, m := startCore(t)
	if err := c.Events.OpenCapture(1, bgapi.EvtGATTService); err != nil {
		t.Fatalf("OpenCapture() error = %v", err)
	}

	e, err := c.Events.Expect(bgapi.EvtGATTProcedureCompleted)
	if err != nil {
		t.Fatalf("Expect() error = %v", err)
	}
	defer e.Release()

	for i := 0; i < MaxCapture+5; i++ {
		m.Emit(bgapitest.Service(1, uint32(i), []byte{0x00, 0x18}))
	}
	m.Emit(bgapitest.ProcedureCompleted(1, 0))

	if _, err := e.Next(context.Background(), time.Second); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if got := len(c.Events.CloseCapture()); got != MaxCapture {
		t.Errorf("captured %d packets, want %d", got, MaxCapture)
	}
}

func TestBootEventsDriveModuleState(t *testing.T) {
	c, m := startCore(t)

	m.Emit(bgapitest.SystemBoot(7, 1))
	if err := c.State.Await(context.Background(), true, time.Second); err != nil {
		t.Fatalf("Await(true) error = %v", err)
	}

	m.Emit(bgapitest.DFUBoot(0x01000000))
	if err := c.State.Await(context.Background(), false, time.Second); err != nil {
		t.Fatalf("Await(false) error = %v", err)
	}
}

func TestConnectionClosedRemovesDevice(t *testing.T) {
	c, m := startCore(t)
	sink := newRecordingSink()
	c.Events.Subscribe(sink)

	mac := mustMAC(t, "11:22:33:44:55:66")
	c.Devices.Add(mac, 3)

	m.Emit(bgapitest.ConnectionClosed(3, 0x13))
	f := sink.next(t)
	if f.packet.ID != bgapi.EvtConnectionClosed {
		t.Fatalf("forwarded %s, want evt_connection_closed", f.packet.ID)
	}
	if f.peer == nil || f.peer.Address != mac {
		t.Errorf("peer = %+v, want %v", f.peer, mac)
	}
	if c.Devices.Len() != 0 {
		t.Errorf("Devices.Len() = %d after close event, want 0", c.Devices.Len())
	}
}

func TestFramesSplitAcrossReads(t *testing.T) {
	c, m := startCore(t)

	e, err := c.Events.Expect(bgapi.EvtConnectionRSSI)
	if err != nil {
		t.Fatalf("Expect() error = %v", err)
	}
	defer e.Release()

	frame := bgapitest.ConnectionRSSI(4, -42)
	m.Emit([]byte{0x00}, frame[:3], frame[3:5], frame[5:])

	p, err := e.Next(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if conn, _ := p.Connection(); conn != 4 {
		t.Errorf("connection = %d, want 4", conn)
	}
}

func TestShutdownPowersOffAndClearsBoot(t *testing.T) {
	c, m := startCore(t)

	m.Emit(bgapitest.SystemBoot(7, 1))
	if err := c.State.Await(context.Background(), true, time.Second); err != nil {
		t.Fatalf("Await(true) error = %v", err)
	}

	if err := c.Events.Shutdown(context.Background(), time.Second); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if c.State.Booted() {
		t.Error("Booted() = true after Shutdown")
	}
	if m.PowerOffs() != 1 {
		t.Errorf("PowerOffs() = %d, want 1", m.PowerOffs())
	}
}

func TestWaitHonoursContext(t *testing.T) {
	c, _ := startCore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Events.Wait(ctx, bgapi.EvtSystemBoot, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
	if c.Events.Pending() {
		t.Error("expectation still registered after cancel")
	}
}

func TestReadErrorFailsCommandsAndWaits(t *testing.T) {
	c, m := startCore(t)
	if err := c.Events.Err(); err != nil {
		t.Fatalf("Err() = %v before any failure", err)
	}

	e, err := c.Events.Expect(bgapi.EvtSystemBoot)
	if err != nil {
		t.Fatalf("Expect() error = %v", err)
	}
	defer e.Release()

	m.Fail(errors.New("device unplugged"))

	start := time.Now()
	if _, err := e.Next(context.Background(), 5*time.Second); !errors.Is(err, ErrUnknown) {
		t.Fatalf("Next() error = %v, want ErrUnknown", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Next() waited for its timeout instead of failing on the dead link")
	}
	if err := c.Events.Send(bgapi.Encode(bgapi.CmdSystemGetIdentityAddress, nil)); !errors.Is(err, ErrUnknown) {
		t.Errorf("Send() error = %v, want ErrUnknown", err)
	}
	if err := c.Events.Err(); err == nil || !strings.Contains(err.Error(), "device unplugged") {
		t.Errorf("Err() = %v, want the link error", err)
	}
}
