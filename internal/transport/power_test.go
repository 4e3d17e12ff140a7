package transport

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGPIOLineLevels(t *testing.T) {
	tests := []struct {
		name      string
		activeLow bool
		on        string
		off       string
	}{
		{"active high", false, "1", "0"},
		{"active low", true, "0", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "value")
			if err := os.WriteFile(path, nil, 0644); err != nil {
				t.Fatalf("failed to create value file: %v", err)
			}
			line := GPIOLine{Path: path, ActiveLow: tt.activeLow}

			if err := line.PowerOn(); err != nil {
				t.Fatalf("PowerOn() error = %v", err)
			}
			if got, _ := os.ReadFile(path); string(got) != tt.on {
				t.Errorf("after PowerOn value = %q, want %q", got, tt.on)
			}

			if err := line.PowerOff(); err != nil {
				t.Fatalf("PowerOff() error = %v", err)
			}
			if got, _ := os.ReadFile(path); string(got) != tt.off {
				t.Errorf("after PowerOff value = %q, want %q", got, tt.off)
			}
		})
	}
}

func TestGPIOLineMissingFile(t *testing.T) {
	line := GPIOLine{Path: filepath.Join(t.TempDir(), "missing", "value")}
	if err := line.PowerOn(); err == nil {
		t.Error("PowerOn() on missing gpio should fail")
	}
}

func TestCommandLine(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "powered")
	line := CommandLine{On: "touch " + marker, Off: "rm " + marker}

	if err := line.PowerOn(); err != nil {
		t.Fatalf("PowerOn() error = %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("PowerOn() did not run command: %v", err)
	}
	if err := line.PowerOff(); err != nil {
		t.Fatalf("PowerOff() error = %v", err)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Errorf("PowerOff() did not run command, stat err = %v", err)
	}

	if err := (CommandLine{On: "exit 3"}).PowerOn(); err == nil {
		t.Error("failing command should return an error")
	}
	if err := (CommandLine{}).PowerOff(); err != nil {
		t.Errorf("empty command should be a no-op, got %v", err)
	}
}

func TestOpenSerialRejectsEmptyPort(t *testing.T) {
	if _, err := OpenSerial(SerialConfig{Baud: 115200}, nil); err == nil {
		t.Error("OpenSerial() with empty port should fail")
	}
}
