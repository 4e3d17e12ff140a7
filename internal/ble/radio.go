// Package ble exposes a BLE radio module as a synchronous API. A chip
// family plugs in by implementing Radio and registering a factory; the
// Manager owns the driver lifecycle around it.
package ble

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chaz8081/gl-ble-driver/internal/driver"
)

// Callbacks receive unsolicited module events. See driver.Callbacks.
type Callbacks = driver.Callbacks

// DiscoveryParams configures a scan.
type DiscoveryParams struct {
	Phys     uint8  // 1 = 1M, 4 = coded, 5 = both
	Interval uint16 // 0.625 ms units
	Window   uint16 // 0.625 ms units
	Type     uint8  // 0 passive, 1 active
	Mode     uint8  // 0 limited, 1 generic, 2 observation
}

// DefaultDiscoveryParams returns a passive generic scan on the 1M PHY.
func DefaultDiscoveryParams() DiscoveryParams {
	return DiscoveryParams{Phys: 1, Interval: 16, Window: 16, Type: 0, Mode: 1}
}

// AdvertiseParams configures legacy advertising.
type AdvertiseParams struct {
	Phys        uint8
	IntervalMin uint32 // 0.625 ms units
	IntervalMax uint32
	Discover    uint8 // 0 non-discoverable, 1 limited, 2 general, 3 broadcast, 4 user data
	Connect     uint8 // 0 non-connectable, 2 connectable scannable, 3 scannable
}

// DefaultAdvertiseParams returns connectable general advertising at 100 ms.
func DefaultAdvertiseParams() AdvertiseParams {
	return AdvertiseParams{Phys: 1, IntervalMin: 160, IntervalMax: 160, Discover: 2, Connect: 2}
}

// Advertising data packet kinds.
const (
	AdvertisingPacket  uint8 = 0
	ScanResponsePacket uint8 = 1
)

// Service is one discovered primary service. UUID is big-endian hex.
type Service struct {
	Handle uint32
	UUID   string
}

// Characteristic is one discovered characteristic. UUID is big-endian hex.
type Characteristic struct {
	Handle     uint16
	Properties uint8
	UUID       string
}

// Notification flags for SetNotify.
const (
	NotifyDisable  uint8 = 0
	NotifyEnable   uint8 = 1
	IndicateEnable uint8 = 2
)

// Progress reports a firmware upload in flight.
type Progress struct {
	Chunk  int // 1-based index of the chunk just sent
	Chunks int
	Sent   int // bytes handed to the module so far
	Total  int
}

// UploadReport summarizes a finished firmware upload.
type UploadReport struct {
	Bytes        int
	Chunks       int
	FailedChunks int
	Digest       string // blake2b-256 of the image, hex
}

// Radio is the capability set of a radio module family. Address arguments
// take "AA:BB:CC:DD:EE:FF" or 12 plain hex digits. Calls are serialized per
// module; ctx bounds only the waiting, never a command already sent.
type Radio interface {
	// Enable powers the module on and waits for boot, or shuts it down.
	Enable(ctx context.Context, on bool) error
	// HardReset power-cycles the module until it boots.
	HardReset(ctx context.Context) error
	// LocalAddress returns the module's identity address.
	LocalAddress(ctx context.Context) (string, error)
	// SetPower requests a TX power in 0.1 dBm and returns what the module applied.
	SetPower(ctx context.Context, power int16) (int16, error)

	Discovery(ctx context.Context, p DiscoveryParams) error
	StopDiscovery(ctx context.Context) error

	Advertise(ctx context.Context, p AdvertiseParams) error
	// SetAdvertisingData sets advertising or scan response data from hex.
	SetAdvertisingData(ctx context.Context, packet uint8, hexData string) error
	StopAdvertise(ctx context.Context) error

	Connect(ctx context.Context, address string, addressType, phy uint8) error
	Disconnect(ctx context.Context, address string) error
	RSSI(ctx context.Context, address string) (int8, error)

	Services(ctx context.Context, address string) ([]Service, error)
	Characteristics(ctx context.Context, address string, service uint32) ([]Characteristic, error)
	// ReadChar requests a read; the value arrives through Callbacks.OnRemoteValue.
	ReadChar(ctx context.Context, address string, char uint16) error
	WriteChar(ctx context.Context, address string, char uint16, hexValue string, withResponse bool) error
	SetNotify(ctx context.Context, address string, char uint16, flags uint8) error
	// SendNotify pushes a local characteristic value to a connected peer.
	SendNotify(ctx context.Context, address string, char uint16, hexValue string) error

	// SoftReset reboots the module; mode 0 is the application, 1 the bootloader.
	SoftReset(ctx context.Context, mode uint8) error
	UploadFirmware(ctx context.Context, path string, progress func(Progress)) (UploadReport, error)
}

// RadioOptions tunes the per-operation waits of a Radio.
type RadioOptions struct {
	CommandTimeout   time.Duration
	RSSITimeout      time.Duration
	DiscoveryTimeout time.Duration

	ChunkSize   int
	ChunkDelay  time.Duration
	EnterDelay  time.Duration // after rebooting into the bootloader, and after setting the address
	FinishDelay time.Duration // before and after the finish command
}

// DefaultRadioOptions returns the waits the module firmware is known to need.
func DefaultRadioOptions() RadioOptions {
	return RadioOptions{
		CommandTimeout:   time.Second,
		RSSITimeout:      300 * time.Millisecond,
		DiscoveryTimeout: 600 * time.Millisecond,
		ChunkSize:        128,
		ChunkDelay:       50 * time.Millisecond,
		EnterDelay:       time.Second,
		FinishDelay:      2 * time.Second,
	}
}

// Factory builds the Radio of a chip family on top of a running core.
type Factory func(core *driver.Core, opts RadioOptions) Radio

var (
	chipsMu sync.RWMutex
	chips   = make(map[string]Factory)
)

// RegisterChip makes a chip family available to the Manager by name.
// Registering the same name twice replaces the earlier factory.
func RegisterChip(name string, f Factory) {
	chipsMu.Lock()
	defer chipsMu.Unlock()
	chips[name] = f
}

// Chips returns the registered chip family names, sorted.
func Chips() []string {
	chipsMu.RLock()
	defer chipsMu.RUnlock()
	names := make([]string, 0, len(chips))
	for name := range chips {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupChip(name string) (Factory, error) {
	chipsMu.RLock()
	defer chipsMu.RUnlock()
	f, ok := chips[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown chip %q", driver.ErrParameter, name)
	}
	return f, nil
}
