package transport

import (
	"fmt"
	"os"
	"os/exec"
)

// GPIOLine drives the module's reset pin through a sysfs GPIO value file,
// e.g. /sys/class/gpio/gpio1/value.
type GPIOLine struct {
	Path      string
	ActiveLow bool
}

// PowerOn releases the module from reset.
func (g GPIOLine) PowerOn() error { return g.write(true) }

// PowerOff holds the module in reset.
func (g GPIOLine) PowerOff() error { return g.write(false) }

func (g GPIOLine) write(on bool) error {
	level := on != g.ActiveLow
	v := []byte("0")
	if level {
		v = []byte("1")
	}
	if err := os.WriteFile(g.Path, v, 0); err != nil {
		return fmt.Errorf("transport: gpio %s: %w", g.Path, err)
	}
	return nil
}

// CommandLine runs shell commands to switch the module, for boards where
// the reset line is wrapped by a vendor script.
type CommandLine struct {
	On  string
	Off string
}

// PowerOn runs the On command.
func (c CommandLine) PowerOn() error { return run(c.On) }

// PowerOff runs the Off command.
func (c CommandLine) PowerOff() error { return run(c.Off) }

func run(command string) error {
	if command == "" {
		return nil
	}
	out, err := exec.Command("/bin/sh", "-c", command).CombinedOutput()
	if err != nil {
		return fmt.Errorf("transport: %q: %w (%s)", command, err, out)
	}
	return nil
}

// NopLine is used when the host has no control over the module's power.
type NopLine struct{}

func (NopLine) PowerOn() error  { return nil }
func (NopLine) PowerOff() error { return nil }
