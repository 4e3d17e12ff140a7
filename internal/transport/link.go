// Package transport owns the physical link to the radio module: the UART
// carrying BGAPI traffic and the line that powers or resets the chip.
package transport

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// PowerLine switches the module's power/reset control independently of
// data traffic.
type PowerLine interface {
	PowerOn() error
	PowerOff() error
}

// Link is the byte stream to the module plus its power control. Read is
// only ever called by a single goroutine.
type Link interface {
	io.ReadWriteCloser
	PowerLine
}

// SerialConfig describes the UART the module is attached to.
type SerialConfig struct {
	Port        string
	Baud        int
	ReadTimeout time.Duration
}

// Serial is a Link backed by a UART.
type Serial struct {
	port *serial.Port
	PowerLine
}

// OpenSerial opens the UART. A nil power line means the module cannot be
// power cycled from the host.
func OpenSerial(cfg SerialConfig, power PowerLine) (*Serial, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("transport: serial port must not be empty")
	}
	if power == nil {
		power = NopLine{}
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", cfg.Port, err)
	}
	return &Serial{port: port, PowerLine: power}, nil
}

// Read returns io.EOF when the read timeout elapses without data; callers
// treat that as "nothing yet".
func (s *Serial) Read(p []byte) (int, error) { return s.port.Read(p) }

func (s *Serial) Write(p []byte) (int, error) {
	n, err := s.port.Write(p)
	if err != nil {
		return n, fmt.Errorf("transport: write: %w", err)
	}
	return n, nil
}

// Flush discards data buffered by the UART driver.
func (s *Serial) Flush() error { return s.port.Flush() }

func (s *Serial) Close() error { return s.port.Close() }
