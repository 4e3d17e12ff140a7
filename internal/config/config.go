package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/gl-ble-driver/internal/ble"
	"github.com/chaz8081/gl-ble-driver/internal/driver"
	"github.com/chaz8081/gl-ble-driver/internal/firmware"
	"github.com/chaz8081/gl-ble-driver/internal/transport"
)

// Config holds all driver configuration.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Power    PowerConfig    `yaml:"power"`
	Chip     string         `yaml:"chip"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Reset    ResetConfig    `yaml:"reset"`
	DFU      DFUConfig      `yaml:"dfu"`
	LogLevel string         `yaml:"log_level"`
}

// SerialConfig holds the UART the module is wired to.
type SerialConfig struct {
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// PowerConfig selects how the module's reset line is driven: a sysfs GPIO
// value file, a pair of shell commands, or nothing.
type PowerConfig struct {
	GPIO       string `yaml:"gpio,omitempty"`
	ActiveLow  bool   `yaml:"active_low,omitempty"`
	OnCommand  string `yaml:"on_command,omitempty"`
	OffCommand string `yaml:"off_command,omitempty"`
}

// TimeoutsConfig holds per-operation waits.
type TimeoutsConfig struct {
	Command   time.Duration `yaml:"command"`
	RSSI      time.Duration `yaml:"rssi"`
	Discovery time.Duration `yaml:"discovery"`
}

// ResetConfig holds the hard reset sequence timing.
type ResetConfig struct {
	Attempts     int           `yaml:"attempts"`
	ShutdownWait time.Duration `yaml:"shutdown_wait"`
	PowerOnDelay time.Duration `yaml:"power_on_delay"`
	BootWait     time.Duration `yaml:"boot_wait"`
}

// DFUConfig holds firmware upload pacing.
type DFUConfig struct {
	ChunkSize   int           `yaml:"chunk_size"`
	ChunkDelay  time.Duration `yaml:"chunk_delay"`
	EnterDelay  time.Duration `yaml:"enter_delay"`
	FinishDelay time.Duration `yaml:"finish_delay"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gl-ble-driver")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with the values the GL.iNet boards ship with.
func Default() *Config {
	reset := driver.DefaultResetTiming()
	radio := ble.DefaultRadioOptions()
	return &Config{
		Serial: SerialConfig{
			Port:        "/dev/ttyS0",
			Baud:        115200,
			ReadTimeout: 100 * time.Millisecond,
		},
		Chip: ble.DefaultChip,
		Timeouts: TimeoutsConfig{
			Command:   radio.CommandTimeout,
			RSSI:      radio.RSSITimeout,
			Discovery: radio.DiscoveryTimeout,
		},
		Reset: ResetConfig{
			Attempts:     reset.Attempts,
			ShutdownWait: reset.ShutdownWait,
			PowerOnDelay: reset.PowerOnDelay,
			BootWait:     reset.BootWait,
		},
		DFU: DFUConfig{
			ChunkSize:   radio.ChunkSize,
			ChunkDelay:  radio.ChunkDelay,
			EnterDelay:  radio.EnterDelay,
			FinishDelay: radio.FinishDelay,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in the serial port and power paths is expanded
// to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Serial.Port = expandTilde(cfg.Serial.Port)
	cfg.Power.GPIO = expandTilde(cfg.Power.GPIO)

	return cfg, nil
}

// WriteDefault writes the default config to DefaultConfigPath. If a file
// already exists there it is left alone and the returned path is empty.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("checking config file: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	header := "# gl-ble-driver configuration\n# Durations use Go syntax: 300ms, 2s, 1m.\n\n"

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(header), data...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Serial.Port == "" {
		return fmt.Errorf("serial.port must not be empty")
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be > 0")
	}

	if c.Power.GPIO != "" && (c.Power.OnCommand != "" || c.Power.OffCommand != "") {
		return fmt.Errorf("power: configure either gpio or on_command/off_command, not both")
	}
	if (c.Power.OnCommand == "") != (c.Power.OffCommand == "") {
		return fmt.Errorf("power: on_command and off_command must be set together")
	}

	known := false
	for _, name := range ble.Chips() {
		if name == c.Chip {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("chip must be one of %s, got %q", strings.Join(ble.Chips(), ", "), c.Chip)
	}

	if c.Reset.Attempts < 1 {
		return fmt.Errorf("reset.attempts must be >= 1")
	}

	if c.DFU.ChunkSize < 1 || c.DFU.ChunkSize > firmware.MaxChunk {
		return fmt.Errorf("dfu.chunk_size must be between 1 and %d, got %d", firmware.MaxChunk, c.DFU.ChunkSize)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// ParseLogLevel maps a log_level value to a slog level. Unknown values
// fall back to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ResetTiming returns the hard reset timing for the driver core.
func (c *Config) ResetTiming() driver.ResetTiming {
	return driver.ResetTiming{
		Attempts:     c.Reset.Attempts,
		ShutdownWait: c.Reset.ShutdownWait,
		PowerOnDelay: c.Reset.PowerOnDelay,
		BootWait:     c.Reset.BootWait,
	}
}

// RadioOptions returns the per-operation waits for the chip radio.
func (c *Config) RadioOptions() ble.RadioOptions {
	return ble.RadioOptions{
		CommandTimeout:   c.Timeouts.Command,
		RSSITimeout:      c.Timeouts.RSSI,
		DiscoveryTimeout: c.Timeouts.Discovery,
		ChunkSize:        c.DFU.ChunkSize,
		ChunkDelay:       c.DFU.ChunkDelay,
		EnterDelay:       c.DFU.EnterDelay,
		FinishDelay:      c.DFU.FinishDelay,
	}
}

// SerialLink returns the UART settings.
func (c *Config) SerialLink() transport.SerialConfig {
	return transport.SerialConfig{
		Port:        c.Serial.Port,
		Baud:        c.Serial.Baud,
		ReadTimeout: c.Serial.ReadTimeout,
	}
}

// PowerLine returns the configured power control, or nil when the module
// cannot be power cycled from the host.
func (c *Config) PowerLine() transport.PowerLine {
	switch {
	case c.Power.GPIO != "":
		return transport.GPIOLine{Path: c.Power.GPIO, ActiveLow: c.Power.ActiveLow}
	case c.Power.OnCommand != "":
		return transport.CommandLine{On: c.Power.OnCommand, Off: c.Power.OffCommand}
	default:
		return nil
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
