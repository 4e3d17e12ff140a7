package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/gl-ble-driver/internal/ble"
	"github.com/chaz8081/gl-ble-driver/internal/config"
	"github.com/chaz8081/gl-ble-driver/internal/driver"
	"github.com/chaz8081/gl-ble-driver/internal/transport"

	_ "github.com/chaz8081/gl-ble-driver/internal/silabs"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/gl-ble-driver/config.yaml)")
	writeConfig := flag.Bool("write-config", false, "write the default config file and exit")
	scan := flag.Bool("scan", false, "start a passive scan and log advertisements")
	dfu := flag.String("dfu", "", "flash this .gbl image and exit")
	flag.Parse()

	if *writeConfig {
		path, err := config.WriteDefault()
		if err != nil {
			fatal("write config", err)
		}
		if path == "" {
			fmt.Println("Config already exists at", config.DefaultConfigPath())
			return
		}
		fmt.Println("Wrote", path)
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("config", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal("config validation", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.LogLevel)}))
	slog.SetDefault(log)

	printBanner(cfg)

	mgr := ble.NewManager(func() (transport.Link, error) {
		s, err := transport.OpenSerial(cfg.SerialLink(), cfg.PowerLine())
		if err != nil {
			return nil, err
		}
		return s, nil
	}, ble.ManagerOptions{
		Chip:  cfg.Chip,
		Reset: cfg.ResetTiming(),
		Radio: cfg.RadioOptions(),
		Log:   log,
	})
	if err := mgr.Subscribe(loggingCallbacks(log)); err != nil {
		fatal("subscribe", err)
	}

	// Signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("[BLE] initializing module", "port", cfg.Serial.Port)
	start := time.Now()
	if err := mgr.Init(ctx); err != nil {
		fatal("init", err)
	}
	log.Info("[BLE] module ready", "elapsed", time.Since(start).Round(time.Millisecond))

	if addr, err := mgr.LocalAddress(ctx); err == nil {
		log.Info("[BLE] identity address", "address", addr)
	} else {
		log.Warn("[BLE] reading identity address failed", "error", err)
	}

	if *dfu != "" {
		err := upload(ctx, mgr, *dfu, log)
		shutdown(mgr, log)
		if err != nil {
			os.Exit(1)
		}
		return
	}

	if *scan {
		if err := mgr.Discovery(ctx, ble.DefaultDiscoveryParams()); err != nil {
			log.Error("[BLE] starting scan failed", "error", err)
		} else {
			log.Info("[BLE] scanning")
		}
	}

	log.Info("Ready! Ctrl+C to quit.")
	<-ctx.Done()
	log.Info("Shutting down...")
	shutdown(mgr, log)
	log.Info("Goodbye!")
}

func upload(ctx context.Context, mgr *ble.Manager, path string, log *slog.Logger) error {
	report, err := mgr.UploadFirmware(ctx, path, func(p ble.Progress) {
		if p.Chunk == p.Chunks || p.Chunk%64 == 0 {
			log.Info("[DFU] progress", "sent", p.Sent, "total", p.Total)
		}
	})
	if err != nil {
		log.Error("[DFU] upload failed", "error", err)
		return err
	}
	fmt.Printf("Flashed %s: %d bytes in %d chunks (%d rejected), blake2b %s\n",
		path, report.Bytes, report.Chunks, report.FailedChunks, report.Digest)
	return nil
}

func shutdown(mgr *ble.Manager, log *slog.Logger) {
	if err := mgr.Unsubscribe(); err != nil {
		log.Warn("[BLE] unsubscribe failed", "error", err)
	}
	if err := mgr.Destroy(); err != nil {
		log.Warn("[BLE] destroy failed", "error", err)
	}
}

// loggingCallbacks logs every unsolicited event.
func loggingCallbacks(log *slog.Logger) *ble.Callbacks {
	return &ble.Callbacks{
		OnSystemBoot: func(e driver.Boot) {
			log.Info("[BLE] module booted", "version", e.Version, "bootloader", e.Bootloader, "hw", e.HW)
		},
		OnConnectionOpened: func(e driver.Connected) {
			log.Info("[BLE] connection opened", "address", e.Address, "handle", e.Handle, "central", e.Central)
		},
		OnConnectionClosed: func(e driver.Disconnected) {
			log.Info("[BLE] connection closed", "address", e.Address, "handle", e.Handle, "reason", fmt.Sprintf("0x%04X", e.Reason))
		},
		OnScanReport: func(e driver.Advertisement) {
			log.Debug("[BLE] advertisement", "address", e.Address, "rssi", e.RSSI, "data", e.Data)
		},
		OnRSSI: func(e driver.RSSIUpdate) {
			log.Debug("[BLE] rssi", "address", e.Address, "rssi", e.RSSI)
		},
		OnRemoteValue: func(e driver.RemoteValue) {
			log.Info("[BLE] remote value", "address", e.Address, "characteristic", e.Characteristic, "value", e.Value)
		},
		OnLocalWrite: func(e driver.LocalWrite) {
			log.Info("[BLE] local write", "address", e.Address, "attribute", e.Attribute, "value", e.Value)
		},
		OnCharacteristicStatus: func(e driver.CharacteristicStatus) {
			log.Debug("[BLE] characteristic status", "address", e.Address, "characteristic", e.Characteristic,
				"flags", e.StatusFlags, "client_config", e.ClientConfigFlags)
		},
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		slog.Info("Config loaded", "path", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	slog.Info("No config file found, using defaults")
	return config.Default(), nil
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	power := "none"
	switch {
	case cfg.Power.GPIO != "":
		power = "gpio " + cfg.Power.GPIO
	case cfg.Power.OnCommand != "":
		power = "command"
	}
	fmt.Println("=== gl-ble-driver ===")
	fmt.Printf("  Chip:    %s\n", cfg.Chip)
	fmt.Printf("  Serial:  %s @ %d baud\n", cfg.Serial.Port, cfg.Serial.Baud)
	fmt.Printf("  Power:   %s\n", power)
	fmt.Printf("  Reset:   %d attempts, %s boot wait\n", cfg.Reset.Attempts, cfg.Reset.BootWait)
	fmt.Printf("  Log:     %s\n", cfg.LogLevel)
	fmt.Println("=====================")
}

func fatal(what string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}
