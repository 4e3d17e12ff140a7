package driver

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// Device is a live connection: a peer address bound to the handle the
// module assigned when the connection was opened.
type Device struct {
	Address   bluetooth.MAC
	Handle    uint8
	CreatedAt time.Time
}

// DeviceTable maps radio addresses to connection handles. It is shared by
// callers issuing commands and the correlator removing closed connections.
type DeviceTable struct {
	mu     sync.Mutex
	byAddr map[bluetooth.MAC]Device
	log    *slog.Logger
	now    func() time.Time
}

// NewDeviceTable returns an empty table.
func NewDeviceTable(log *slog.Logger) *DeviceTable {
	if log == nil {
		log = slog.Default()
	}
	return &DeviceTable{
		byAddr: make(map[bluetooth.MAC]Device),
		log:    log,
		now:    time.Now,
	}
}

// Add records a connection. An existing entry for the same address is
// replaced. If another address still holds the handle, the module has
// already reused it, so that stale entry is dropped.
func (t *DeviceTable) Add(addr bluetooth.MAC, handle uint8) Device {
	t.mu.Lock()
	defer t.mu.Unlock()

	for a, d := range t.byAddr {
		if d.Handle == handle && a != addr {
			t.log.Warn("[BLE] connection handle reused, dropping stale device",
				"handle", handle, "stale", a.String(), "address", addr.String())
			delete(t.byAddr, a)
		}
	}

	d := Device{Address: addr, Handle: handle, CreatedAt: t.now()}
	t.byAddr[addr] = d
	return d
}

// Get returns the live connection for addr.
func (t *DeviceTable) Get(addr bluetooth.MAC) (Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, ok := t.byAddr[addr]
	if !ok {
		return Device{}, fmt.Errorf("%w: device %s not connected", ErrParameter, addr.String())
	}
	return d, nil
}

// Lookup parses a string address and returns its live connection.
func (t *DeviceTable) Lookup(address string) (Device, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return Device{}, err
	}
	return t.Get(addr)
}

// Remove deletes the entry for addr and reports whether one existed.
func (t *DeviceTable) Remove(addr bluetooth.MAC) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.byAddr[addr]
	delete(t.byAddr, addr)
	return ok
}

// ByHandle returns the connection holding handle.
func (t *DeviceTable) ByHandle(handle uint8) (Device, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, d := range t.byAddr {
		if d.Handle == handle {
			return d, true
		}
	}
	return Device{}, false
}

// RemoveHandle deletes the entry holding handle and returns it.
func (t *DeviceTable) RemoveHandle(handle uint8) (Device, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for a, d := range t.byAddr {
		if d.Handle == handle {
			delete(t.byAddr, a)
			return d, true
		}
	}
	return Device{}, false
}

// DestroyAll forgets every connection.
func (t *DeviceTable) DestroyAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byAddr = make(map[bluetooth.MAC]Device)
}

// Len returns the number of live connections.
func (t *DeviceTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byAddr)
}

// List returns the live connections ordered by handle.
func (t *DeviceTable) List() []Device {
	t.mu.Lock()
	out := make([]Device, 0, len(t.byAddr))
	for _, d := range t.byAddr {
		out = append(out, d)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}
