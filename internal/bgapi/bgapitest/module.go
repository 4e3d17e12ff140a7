package bgapitest

import (
	"errors"
	"io"
	"sync"

	"github.com/chaz8081/gl-ble-driver/internal/bgapi"
)

// Handler produces the frames the module sends back for one command.
type Handler func(cmd *bgapi.Packet) [][]byte

// Module is a scripted co-processor. It satisfies transport.Link: commands
// written by the host are decoded and answered by the registered handlers,
// and unsolicited frames can be injected with Emit.
//
// Commands without a handler are answered with a bare success response,
// except system_reset which the real module never answers.
type Module struct {
	mu       sync.Mutex
	framer   bgapi.Framer
	handlers map[bgapi.ID]Handler
	commands []*bgapi.Packet
	powerOn  int
	powerOff int
	closed   bool

	// OnPowerOn returns the frames emitted after the n-th (1-based) power on.
	// The default emits a system boot event every time.
	OnPowerOn func(n int) [][]byte

	out     chan []byte
	fail    chan error
	pending []byte
	done    chan struct{}
}

// NewModule returns a module that boots whenever it is powered on.
func NewModule() *Module {
	return &Module{
		handlers: make(map[bgapi.ID]Handler),
		OnPowerOn: func(int) [][]byte {
			return [][]byte{SystemBoot(7, 0)}
		},
		out:  make(chan []byte, 256),
		fail: make(chan error, 1),
		done: make(chan struct{}),
	}
}

// Handle registers the reply script for a command ID.
func (m *Module) Handle(id bgapi.ID, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[id] = h
}

// Reply registers fixed frames as the answer to a command ID.
func (m *Module) Reply(id bgapi.ID, frames ...[]byte) {
	m.Handle(id, func(*bgapi.Packet) [][]byte { return frames })
}

// Emit queues frames for the host to read.
func (m *Module) Emit(frames ...[]byte) {
	for _, f := range frames {
		select {
		case m.out <- f:
		case <-m.done:
			return
		}
	}
}

// Fail makes the next blocking Read return err, as a UART that was
// unplugged would.
func (m *Module) Fail(err error) {
	select {
	case m.fail <- err:
	default:
	}
}

func (m *Module) Read(p []byte) (int, error) {
	if len(m.pending) == 0 {
		select {
		case chunk := <-m.out:
			m.pending = chunk
		case err := <-m.fail:
			return 0, err
		case <-m.done:
			return 0, io.ErrClosedPipe
		}
	}
	n := copy(p, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

func (m *Module) Write(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	m.framer.Push(p)
	var replies [][]byte
	for {
		cmd, err := m.framer.Next()
		if errors.Is(err, bgapi.ErrPartial) {
			break
		}
		if err != nil {
			continue
		}
		m.commands = append(m.commands, cmd)
		if h, ok := m.handlers[cmd.ID]; ok {
			replies = append(replies, h(cmd)...)
		} else if cmd.ID != bgapi.CmdSystemReset {
			replies = append(replies, OK(cmd.ID))
		}
	}
	m.mu.Unlock()

	m.Emit(replies...)
	return len(p), nil
}

func (m *Module) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *Module) PowerOn() error {
	m.mu.Lock()
	m.powerOn++
	n := m.powerOn
	hook := m.OnPowerOn
	m.mu.Unlock()

	if hook != nil {
		m.Emit(hook(n)...)
	}
	return nil
}

func (m *Module) PowerOff() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.powerOff++
	return nil
}

// PowerOns returns how many times the module was powered on.
func (m *Module) PowerOns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.powerOn
}

// PowerOffs returns how many times the module was powered off.
func (m *Module) PowerOffs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.powerOff
}

// Commands returns every command received so far.
func (m *Module) Commands() []*bgapi.Packet {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*bgapi.Packet, len(m.commands))
	copy(out, m.commands)
	return out
}

// Count returns how many commands with the given ID were received.
func (m *Module) Count(id bgapi.ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.commands {
		if c.ID == id {
			n++
		}
	}
	return n
}
