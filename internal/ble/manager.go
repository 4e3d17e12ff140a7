package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chaz8081/gl-ble-driver/internal/driver"
	"github.com/chaz8081/gl-ble-driver/internal/transport"
)

// DefaultChip is the chip family used when ManagerOptions.Chip is empty.
const DefaultChip = "silabs"

// Dialer opens the link to the module. It is called on every Init.
type Dialer func() (transport.Link, error)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Chip  string
	Reset driver.ResetTiming
	Radio RadioOptions
	Log   *slog.Logger
}

// Manager owns one driver instance: it opens the link, starts the event
// loop, brings the module up and routes unsolicited events to the
// subscribed callbacks. Every Radio operation is available on the Manager
// once Init has succeeded.
//
// Callbacks may call back into the Manager, including Unsubscribe and
// Destroy.
type Manager struct {
	dial Dialer
	opts ManagerOptions
	log  *slog.Logger

	mu      sync.Mutex
	core    *driver.Core
	radio   Radio
	booting *driver.Core // set while Init waits for the module
	cbs     *Callbacks
	watcher *driver.Watcher
}

var _ Radio = (*Manager)(nil)

// NewManager creates a Manager. Nothing is opened until Init.
func NewManager(dial Dialer, opts ManagerOptions) *Manager {
	if opts.Chip == "" {
		opts.Chip = DefaultChip
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Manager{dial: dial, opts: opts, log: opts.Log}
}

// Init opens the link and hard resets the module. On failure everything
// opened so far is released and the Manager can be initialized again.
// The Manager stays usable while the reset runs; operations other than
// Subscribe and Unsubscribe report ErrInvoke until it completes.
func (m *Manager) Init(ctx context.Context) error {
	core, radio, err := m.open()
	if err != nil {
		return err
	}

	if err := radio.HardReset(ctx); err != nil {
		m.mu.Lock()
		w := m.detach(core)
		m.booting = nil
		m.mu.Unlock()

		stopWatcher(w)
		if cerr := core.Close(); cerr != nil {
			m.log.Warn("[BLE] closing link after failed init", "error", cerr)
		}
		return fmt.Errorf("ble: init: %w", err)
	}

	m.mu.Lock()
	m.booting = nil
	m.core, m.radio = core, radio
	m.mu.Unlock()
	m.log.Info("[BLE] driver initialized", "chip", m.opts.Chip, "connections", core.Devices.Len())
	return nil
}

// open builds and starts the core under mu and marks it as booting.
func (m *Manager) open() (*driver.Core, Radio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.core != nil {
		return nil, nil, fmt.Errorf("%w: already initialized", driver.ErrInvoke)
	}
	if m.booting != nil {
		return nil, nil, fmt.Errorf("%w: initialization in progress", driver.ErrInvoke)
	}
	factory, err := lookupChip(m.opts.Chip)
	if err != nil {
		return nil, nil, err
	}
	link, err := m.dial()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open link: %v", driver.ErrUnknown, err)
	}
	if f, ok := link.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			m.log.Warn("[BLE] flushing link failed", "error", err)
		}
	}

	core := driver.NewCore(link, m.opts.Reset, m.log)
	core.Start()
	radio := factory(core, m.opts.Radio)
	if m.cbs != nil {
		m.attach(core)
	}
	m.booting = core
	return core, radio, nil
}

// Destroy shuts the driver down and forgets every connection. Callbacks
// stay subscribed for the next Init.
func (m *Manager) Destroy() error {
	m.mu.Lock()
	if m.core == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: not initialized", driver.ErrInvoke)
	}
	core := m.core
	w := m.detach(core)
	m.core, m.radio = nil, nil
	m.mu.Unlock()

	stopWatcher(w)
	err := core.Close()
	m.log.Info("[BLE] driver destroyed")
	return err
}

// Initialized reports whether Init has succeeded and Destroy has not run.
func (m *Manager) Initialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.core != nil
}

// Subscribe registers the callbacks for unsolicited events. It may be
// called before Init; delivery starts once the driver is running.
func (m *Manager) Subscribe(cbs *Callbacks) error {
	if cbs == nil {
		return fmt.Errorf("%w: nil callbacks", driver.ErrParameter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cbs != nil {
		return fmt.Errorf("%w: already subscribed", driver.ErrInvoke)
	}
	c := *cbs
	m.cbs = &c
	if core := m.live(); core != nil {
		m.attach(core)
	}
	return nil
}

// Unsubscribe stops event delivery. Events already queued are dropped.
func (m *Manager) Unsubscribe() error {
	m.mu.Lock()
	var w *driver.Watcher
	if core := m.live(); core != nil {
		w = m.detach(core)
	}
	m.cbs = nil
	m.mu.Unlock()

	stopWatcher(w)
	return nil
}

// live returns the running core, including one still booting. Caller
// holds mu.
func (m *Manager) live() *driver.Core {
	if m.core != nil {
		return m.core
	}
	return m.booting
}

// attach starts a watcher for the subscribed callbacks. Caller holds mu.
func (m *Manager) attach(core *driver.Core) {
	w := driver.NewWatcher(*m.cbs, m.log)
	w.Start()
	core.Events.Subscribe(w)
	m.watcher = w
}

// detach unhooks the current watcher, if any, and returns it for the
// caller to stop once mu is released. Caller holds mu.
func (m *Manager) detach(core *driver.Core) *driver.Watcher {
	w := m.watcher
	if w == nil {
		return nil
	}
	core.Events.Unsubscribe()
	m.watcher = nil
	return w
}

func stopWatcher(w *driver.Watcher) {
	if w != nil {
		w.Stop()
	}
}

func (m *Manager) current() (Radio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.radio == nil {
		return nil, fmt.Errorf("%w: not initialized", driver.ErrInvoke)
	}
	return m.radio, nil
}

func (m *Manager) Enable(ctx context.Context, on bool) error {
	r, err := m.current()
	if err != nil {
		return err
	}
	return r.Enable(ctx, on)
}

func (m *Manager) HardReset(ctx context.Context) error {
	r, err := m.current()
	if err != nil {
		return err
	}
	return r.HardReset(ctx)
}

func (m *Manager) LocalAddress(ctx context.Context) (string, error) {
	r, err := m.current()
	if err != nil {
		return "", err
	}
	return r.LocalAddress(ctx)
}

func (m *Manager) SetPower(ctx context.Context, power int16) (int16, error) {
	r, err := m.current()
	if err != nil {
		return 0, err
	}
	return r.SetPower(ctx, power)
}

func (m *Manager) Discovery(ctx context.Context, p DiscoveryParams) error {
	r, err := m.current()
	if err != nil {
		return err
	}
	return r.Discovery(ctx, p)
}

func (m *Manager) StopDiscovery(ctx context.Context) error {
	r, err := m.current()
	if err != nil {
		return err
	}
	return r.StopDiscovery(ctx)
}

func (m *Manager) Advertise(ctx context.Context, p AdvertiseParams) error {
	r, err := m.current()
	if err != nil {
		return err
	}
	return r.Advertise(ctx, p)
}

func (m *Manager) SetAdvertisingData(ctx context.Context, packet uint8, hexData string) error {
	r, err := m.current()
	if err != nil {
		return err
	}
	return r.SetAdvertisingData(ctx, packet, hexData)
}

func (m *Manager) StopAdvertise(ctx context.Context) error {
	r, err := m.current()
	if err != nil {
		return err
	}
	return r.StopAdvertise(ctx)
}

func (m *Manager) Connect(ctx context.Context, address string, addressType, phy uint8) error {
	r, err := m.current()
	if err != nil {
		return err
	}
	return r.Connect(ctx, address, addressType, phy)
}

func (m *Manager) Disconnect(ctx context.Context, address string) error {
	r, err := m.current()
	if err != nil {
		return err
	}
	return r.Disconnect(ctx, address)
}

func (m *Manager) RSSI(ctx context.Context, address string) (int8, error) {
	r, err := m.current()
	if err != nil {
		return 0, err
	}
	return r.RSSI(ctx, address)
}

func (m *Manager) Services(ctx context.Context, address string) ([]Service, error) {
	r, err := m.current()
	if err != nil {
		return nil, err
	}
	return r.Services(ctx, address)
}

func (m *Manager) Characteristics(ctx context.Context, address string, service uint32) ([]Characteristic, error) {
	r, err := m.current()
	if err != nil {
		return nil, err
	}
	return r.Characteristics(ctx, address, service)
}

func (m *Manager) ReadChar(ctx context.Context, address string, char uint16) error {
	r, err := m.current()
	if err != nil {
		return err
	}
	return r.ReadChar(ctx, address, char)
}

func (m *Manager) WriteChar(ctx context.Context, address string, char uint16, hexValue string, withResponse bool) error {
	r, err := m.current()
	if err != nil {
		return err
	}
	return r.WriteChar(ctx, address, char, hexValue, withResponse)
}

func (m *Manager) SetNotify(ctx context.Context, address string, char uint16, flags uint8) error {
	r, err := m.current()
	if err != nil {
		return err
	}
	return r.SetNotify(ctx, address, char, flags)
}

func (m *Manager) SendNotify(ctx context.Context, address string, char uint16, hexValue string) error {
	r, err := m.current()
	if err != nil {
		return err
	}
	return r.SendNotify(ctx, address, char, hexValue)
}

func (m *Manager) SoftReset(ctx context.Context, mode uint8) error {
	r, err := m.current()
	if err != nil {
		return err
	}
	return r.SoftReset(ctx, mode)
}

func (m *Manager) UploadFirmware(ctx context.Context, path string, progress func(Progress)) (UploadReport, error) {
	r, err := m.current()
	if err != nil {
		return UploadReport{}, err
	}
	return r.UploadFirmware(ctx, path, progress)
}

// Connections returns the connections the driver currently tracks, ordered
// by handle. It is empty when the driver is not initialized.
func (m *Manager) Connections() []driver.Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.core == nil {
		return nil
	}
	return m.core.Devices.List()
}
