package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/gl-ble-driver/internal/bgapi"
	"github.com/chaz8081/gl-ble-driver/internal/transport"
)

// MaxCapture bounds the number of packets a capture window accumulates.
const MaxCapture = 64

const readBufferSize = 512

// Sink receives packets nobody was waiting for. peer is the connection the
// packet belongs to, if the table knew it; for a closed connection it is the
// entry that was just removed.
type Sink interface {
	Feed(p *bgapi.Packet, peer *Device)
}

type shutdownRequest struct {
	done chan struct{}
}

type capture struct {
	conn    uint8
	ids     map[bgapi.ID]bool
	packets []*bgapi.Packet
	dropped int
}

func (w *capture) accepts(p *bgapi.Packet) bool {
	if !w.ids[p.ID] {
		return false
	}
	conn, ok := p.Connection()
	return ok && conn == w.conn
}

// Correlator is the sole reader of the link. It decodes the byte stream and
// routes every packet to the capture window, the pending expectation or the
// subscribed sink, in that order.
type Correlator struct {
	link    transport.Link
	state   *ModuleState
	devices *DeviceTable
	log     *slog.Logger

	framer  bgapi.Framer
	writeMu sync.Mutex

	mu      sync.Mutex
	pending *Expectation
	capture *capture
	sink    Sink

	chunks  chan []byte
	control chan shutdownRequest
	stop    chan struct{}
	wg      sync.WaitGroup

	// failed is closed once the reader hits a link error; readErr is
	// written before that and read only after it.
	failed  chan struct{}
	readErr error

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewCorrelator wires a correlator to its link and shared state.
// Call Start to begin reading.
func NewCorrelator(link transport.Link, state *ModuleState, devices *DeviceTable, log *slog.Logger) *Correlator {
	if log == nil {
		log = slog.Default()
	}
	return &Correlator{
		link:    link,
		state:   state,
		devices: devices,
		log:     log,
		chunks:  make(chan []byte, 64),
		control: make(chan shutdownRequest),
		stop:    make(chan struct{}),
		failed:  make(chan struct{}),
	}
}

// Start launches the reader and dispatch goroutines.
func (c *Correlator) Start() {
	c.startOnce.Do(func() {
		c.wg.Add(2)
		go c.readLoop()
		go c.dispatchLoop()
	})
}

// Stop ends the dispatch goroutine and waits for both goroutines. The reader
// only returns once the link's Read does, so the link must be closed too.
func (c *Correlator) Stop() {
	c.halt()
	c.wg.Wait()
}

func (c *Correlator) halt() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Correlator) readLoop() {
	defer c.wg.Done()

	buf := make([]byte, readBufferSize)
	for {
		n, err := c.link.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case c.chunks <- chunk:
			case <-c.stop:
				return
			}
		}
		if err == nil || errors.Is(err, io.EOF) {
			// The serial port reports a read timeout as EOF.
			select {
			case <-c.stop:
				return
			default:
				continue
			}
		}
		select {
		case <-c.stop:
		default:
			c.log.Error("[BLE] link read failed, receiver stopped", "error", err)
			c.readErr = err
			close(c.failed)
		}
		return
	}
}

// Err returns the link error that stopped the reader, or nil while it is
// still running. Once set, every command and wait fails with it.
func (c *Correlator) Err() error {
	select {
	case <-c.failed:
		return fmt.Errorf("%w: link: %v", ErrUnknown, c.readErr)
	default:
		return nil
	}
}

// Failed is closed when the reader stops on a link error.
func (c *Correlator) Failed() <-chan struct{} {
	return c.failed
}

func (c *Correlator) dispatchLoop() {
	defer c.wg.Done()

	for {
		select {
		case chunk := <-c.chunks:
			c.framer.Push(chunk)
			c.drain()
		case req := <-c.control:
			if err := c.link.PowerOff(); err != nil {
				c.log.Warn("[BLE] power off failed", "error", err)
			}
			c.framer.Reset()
			c.state.Set(false)
			close(req.done)
		case <-c.stop:
			return
		}
	}
}

func (c *Correlator) drain() {
	for {
		p, err := c.framer.Next()
		if errors.Is(err, bgapi.ErrPartial) {
			return
		}
		if err != nil {
			c.log.Debug("[BLE] skipping byte", "error", err)
			continue
		}
		c.dispatch(p)
	}
}

func (c *Correlator) dispatch(p *bgapi.Packet) {
	var peer *Device

	switch p.ID {
	case bgapi.EvtSystemBoot:
		c.state.Set(true)
	case bgapi.EvtDFUBoot:
		c.state.Set(false)
	case bgapi.EvtConnectionClosed:
		if ev, err := bgapi.ParseConnectionClosed(p); err == nil {
			if d, ok := c.devices.RemoveHandle(ev.Connection); ok {
				c.log.Info("[BLE] connection closed", "address", d.Address.String(),
					"handle", ev.Connection, "reason", fmt.Sprintf("0x%04X", ev.Reason))
				peer = &d
			}
		}
	}

	c.mu.Lock()
	if w := c.capture; w != nil && w.accepts(p) {
		if len(w.packets) < MaxCapture {
			w.packets = append(w.packets, p)
		} else {
			w.dropped++
		}
		c.mu.Unlock()
		return
	}
	if e := c.pending; e != nil && e.matches(p) {
		e.deliver(p)
		c.mu.Unlock()
		return
	}
	sink := c.sink
	c.mu.Unlock()

	if sink == nil {
		return
	}
	if conn, ok := p.Connection(); ok && peer == nil {
		if d, found := c.devices.ByHandle(conn); found {
			peer = &d
		}
	}
	sink.Feed(p, peer)
}

// Send writes one encoded frame to the link.
func (c *Correlator) Send(frame []byte) error {
	if err := c.Err(); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.link.Write(frame); err != nil {
		return fmt.Errorf("%w: write: %v", ErrUnknown, err)
	}
	return nil
}

// Subscribe attaches the sink for unsolicited packets.
func (c *Correlator) Subscribe(s Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = s
}

// Unsubscribe detaches the sink. Unsolicited packets are dropped afterwards.
func (c *Correlator) Unsubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sink = nil
}

// Expect registers the single pending expectation for the given IDs, in
// order. Register before sending the command that triggers them.
func (c *Correlator) Expect(ids ...bgapi.ID) (*Expectation, error) {
	return c.expect(false, 0, ids)
}

// ExpectConn is Expect restricted to events of one connection. Responses
// carry no connection and always match.
func (c *Correlator) ExpectConn(conn uint8, ids ...bgapi.ID) (*Expectation, error) {
	return c.expect(true, conn, ids)
}

func (c *Correlator) expect(scoped bool, conn uint8, ids []bgapi.ID) (*Expectation, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no packet to expect", ErrParameter)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending != nil {
		return nil, fmt.Errorf("%w: waiting for %s already", ErrInvoke, c.pending.ids[0])
	}
	e := &Expectation{
		c:      c,
		scoped: scoped,
		conn:   conn,
		ids:    append([]bgapi.ID(nil), ids...),
		ch:     make(chan *bgapi.Packet, len(ids)),
	}
	c.pending = e
	return e, nil
}

// Pending reports whether an expectation is registered.
func (c *Correlator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Wait registers an expectation for id and blocks for it.
func (c *Correlator) Wait(ctx context.Context, id bgapi.ID, timeout time.Duration) (*bgapi.Packet, error) {
	e, err := c.Expect(id)
	if err != nil {
		return nil, err
	}
	defer e.Release()
	return e.Next(ctx, timeout)
}

// OpenCapture starts collecting the given event IDs for one connection.
func (c *Correlator) OpenCapture(conn uint8, ids ...bgapi.ID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture != nil {
		return fmt.Errorf("%w: capture window already open", ErrInvoke)
	}
	w := &capture{conn: conn, ids: make(map[bgapi.ID]bool, len(ids))}
	for _, id := range ids {
		w.ids[id] = true
	}
	c.capture = w
	return nil
}

// CloseCapture ends the window and returns what it collected.
func (c *Correlator) CloseCapture() []*bgapi.Packet {
	c.mu.Lock()
	w := c.capture
	c.capture = nil
	c.mu.Unlock()

	if w == nil {
		return nil
	}
	if w.dropped > 0 {
		c.log.Warn("[BLE] capture window full, entries dropped", "kept", len(w.packets), "dropped", w.dropped)
	}
	return w.packets
}

// CaptureLen returns the number of packets held by the open window.
func (c *Correlator) CaptureLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capture == nil {
		return 0
	}
	return len(c.capture.packets)
}

// Shutdown asks the dispatch loop to power the module off, discard any
// partial frame and clear the boot flag. It returns once that is done.
func (c *Correlator) Shutdown(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	req := shutdownRequest{done: make(chan struct{})}
	select {
	case c.control <- req:
	case <-timer.C:
		return fmt.Errorf("%w: shutdown not acknowledged", ErrEventMissing)
	case <-c.stop:
		return fmt.Errorf("%w: correlator stopped", ErrInvoke)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: shutdown not acknowledged", ErrEventMissing)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Expectation is a registered wait for an ordered sequence of packets.
type Expectation struct {
	c      *Correlator
	scoped bool
	conn   uint8
	ids    []bgapi.ID
	ch     chan *bgapi.Packet

	matched int // guarded by c.mu
	read    int // owned by the waiter
}

func (e *Expectation) matches(p *bgapi.Packet) bool {
	if e.matched >= len(e.ids) || p.ID != e.ids[e.matched] {
		return false
	}
	if e.scoped {
		if conn, ok := p.Connection(); ok && conn != e.conn {
			return false
		}
	}
	return true
}

func (e *Expectation) deliver(p *bgapi.Packet) {
	e.matched++
	e.ch <- p
}

// Next returns the next expected packet. On timeout it returns
// ErrEventMissing; a late packet is then treated as unsolicited once the
// expectation is released. A dead link fails it with ErrUnknown.
func (e *Expectation) Next(ctx context.Context, timeout time.Duration) (*bgapi.Packet, error) {
	if e.read >= len(e.ids) {
		return nil, fmt.Errorf("%w: all expected packets consumed", ErrInvoke)
	}
	want := e.ids[e.read]

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case p := <-e.ch:
		e.read++
		return p, nil
	case <-e.c.failed:
		select {
		case p := <-e.ch:
			e.read++
			return p, nil
		default:
			return nil, e.c.Err()
		}
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s not received within %s", ErrEventMissing, want, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release clears the expectation slot. It is safe to call more than once.
func (e *Expectation) Release() {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if e.c.pending == e {
		e.c.pending = nil
	}
}
