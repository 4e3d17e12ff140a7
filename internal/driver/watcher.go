package driver

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/golang-collections/go-datastructures/queue"
	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/gl-ble-driver/internal/bgapi"
)

// Boot reports that the module application started.
type Boot struct {
	Version    string
	Bootloader uint32
	HW         uint16
}

// Connected reports a connection opened by either side.
type Connected struct {
	Address     string
	AddressType uint8
	Handle      uint8
	Central     bool
	Bonding     uint8
}

// Disconnected reports a closed connection. Address is empty when the
// handle was not in the connection table.
type Disconnected struct {
	Address string
	Handle  uint8
	Reason  uint16
}

// Advertisement is one scanner report.
type Advertisement struct {
	Address     string
	AddressType uint8
	PacketType  uint8
	RSSI        int8
	TxPower     int8
	Channel     uint8
	Data        []byte
}

// RSSIUpdate is an unsolicited signal strength report.
type RSSIUpdate struct {
	Address string
	Handle  uint8
	RSSI    int8
}

// RemoteValue is a characteristic value pushed by a peer, usually a
// notification or indication.
type RemoteValue struct {
	Address        string
	Handle         uint8
	Characteristic uint16
	Opcode         uint8
	Offset         uint16
	Value          []byte
}

// LocalWrite is a peer writing to a local GATT attribute.
type LocalWrite struct {
	Address   string
	Handle    uint8
	Attribute uint16
	Opcode    uint8
	Offset    uint16
	Value     []byte
}

// CharacteristicStatus reports a peer changing its client configuration or
// confirming an indication.
type CharacteristicStatus struct {
	Address           string
	Handle            uint8
	Characteristic    uint16
	StatusFlags       uint8
	ClientConfigFlags uint16
}

// Callbacks receive unsolicited events on the watcher goroutine. Handlers
// must not block for long; nil handlers are skipped.
type Callbacks struct {
	OnSystemBoot           func(Boot)
	OnConnectionOpened     func(Connected)
	OnConnectionClosed     func(Disconnected)
	OnScanReport           func(Advertisement)
	OnRSSI                 func(RSSIUpdate)
	OnRemoteValue          func(RemoteValue)
	OnLocalWrite           func(LocalWrite)
	OnCharacteristicStatus func(CharacteristicStatus)
}

type notice struct {
	packet *bgapi.Packet
	peer   *Device
}

// Watcher drains unsolicited packets on its own goroutine and hands them
// to the registered callbacks.
type Watcher struct {
	cbs   Callbacks
	log   *slog.Logger
	queue *queue.Queue

	startOnce  sync.Once
	stopOnce   sync.Once
	started    chan struct{}
	done       chan struct{}
	delivering atomic.Bool
}

// NewWatcher returns a stopped watcher for cbs.
func NewWatcher(cbs Callbacks, log *slog.Logger) *Watcher {
	if log == nil {
		log = slog.Default()
	}
	return &Watcher{
		cbs:     cbs,
		log:     log,
		queue:   queue.New(32),
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the delivery goroutine.
func (w *Watcher) Start() {
	w.startOnce.Do(func() {
		close(w.started)
		go w.run()
	})
}

// Stop discards undelivered packets and waits for the goroutine to exit.
// While a callback is running, Stop only prevents further deliveries and
// returns at once, so a callback may stop its own watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.queue.Dispose()
	})
	select {
	case <-w.started:
		if w.delivering.Load() {
			return
		}
		<-w.done
	default:
	}
}

// Feed queues a packet for delivery. It never blocks the caller.
func (w *Watcher) Feed(p *bgapi.Packet, peer *Device) {
	if w.queue.Disposed() {
		return
	}
	if err := w.queue.Put(notice{packet: p, peer: peer}); err != nil {
		w.log.Debug("[BLE] watcher stopped, dropping event", "id", p.ID.String())
	}
}

// Backlog returns the number of packets not yet delivered.
func (w *Watcher) Backlog() int {
	return int(w.queue.Len())
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		items, err := w.queue.Get(1)
		if err != nil {
			return
		}
		for _, item := range items {
			if n, ok := item.(notice); ok {
				w.delivering.Store(true)
				w.deliver(n)
				w.delivering.Store(false)
			}
		}
	}
}

func (w *Watcher) deliver(n notice) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("[BLE] event callback panicked", "id", n.packet.ID.String(), "panic", r)
		}
	}()

	if err := w.dispatch(n); err != nil {
		w.log.Warn("[BLE] dropping undecodable event", "error", err)
	}
}

func (w *Watcher) dispatch(n notice) error {
	p := n.packet
	peer := ""
	if n.peer != nil {
		peer = n.peer.Address.String()
	}

	switch p.ID {
	case bgapi.EvtSystemBoot:
		if w.cbs.OnSystemBoot == nil {
			return nil
		}
		ev, err := bgapi.ParseSystemBoot(p)
		if err != nil {
			return err
		}
		w.cbs.OnSystemBoot(Boot{
			Version:    fmt.Sprintf("%d.%d.%d-%d", ev.Major, ev.Minor, ev.Patch, ev.Build),
			Bootloader: ev.Bootloader,
			HW:         ev.HW,
		})

	case bgapi.EvtConnectionOpened:
		if w.cbs.OnConnectionOpened == nil {
			return nil
		}
		ev, err := bgapi.ParseConnectionOpened(p)
		if err != nil {
			return err
		}
		w.cbs.OnConnectionOpened(Connected{
			Address:     bluetooth.MAC(ev.Address).String(),
			AddressType: ev.AddressType,
			Handle:      ev.Connection,
			Central:     ev.Master == 1,
			Bonding:     ev.Bonding,
		})

	case bgapi.EvtConnectionClosed:
		if w.cbs.OnConnectionClosed == nil {
			return nil
		}
		ev, err := bgapi.ParseConnectionClosed(p)
		if err != nil {
			return err
		}
		w.cbs.OnConnectionClosed(Disconnected{Address: peer, Handle: ev.Connection, Reason: ev.Reason})

	case bgapi.EvtScannerScanReport:
		if w.cbs.OnScanReport == nil {
			return nil
		}
		ev, err := bgapi.ParseScanReport(p)
		if err != nil {
			return err
		}
		w.cbs.OnScanReport(Advertisement{
			Address:     bluetooth.MAC(ev.Address).String(),
			AddressType: ev.AddressType,
			PacketType:  ev.PacketType,
			RSSI:        ev.RSSI,
			TxPower:     ev.TxPower,
			Channel:     ev.Channel,
			Data:        ev.Data,
		})

	case bgapi.EvtConnectionRSSI:
		if w.cbs.OnRSSI == nil {
			return nil
		}
		ev, err := bgapi.ParseConnectionRSSI(p)
		if err != nil {
			return err
		}
		w.cbs.OnRSSI(RSSIUpdate{Address: peer, Handle: ev.Connection, RSSI: ev.RSSI})

	case bgapi.EvtGATTCharacteristicValue:
		if w.cbs.OnRemoteValue == nil {
			return nil
		}
		ev, err := bgapi.ParseGATTCharacteristicValue(p)
		if err != nil {
			return err
		}
		w.cbs.OnRemoteValue(RemoteValue{
			Address:        peer,
			Handle:         ev.Connection,
			Characteristic: ev.Characteristic,
			Opcode:         ev.ATTOpcode,
			Offset:         ev.Offset,
			Value:          ev.Value,
		})

	case bgapi.EvtGATTServerAttributeValue:
		if w.cbs.OnLocalWrite == nil {
			return nil
		}
		ev, err := bgapi.ParseAttributeValue(p)
		if err != nil {
			return err
		}
		w.cbs.OnLocalWrite(LocalWrite{
			Address:   peer,
			Handle:    ev.Connection,
			Attribute: ev.Attribute,
			Opcode:    ev.ATTOpcode,
			Offset:    ev.Offset,
			Value:     ev.Value,
		})

	case bgapi.EvtGATTServerCharacteristicStatus:
		if w.cbs.OnCharacteristicStatus == nil {
			return nil
		}
		ev, err := bgapi.ParseCharacteristicStatus(p)
		if err != nil {
			return err
		}
		w.cbs.OnCharacteristicStatus(CharacteristicStatus{
			Address:           peer,
			Handle:            ev.Connection,
			Characteristic:    ev.Characteristic,
			StatusFlags:       ev.StatusFlags,
			ClientConfigFlags: ev.ClientConfigFlags,
		})

	default:
		w.log.Debug("[BLE] unhandled event", "id", p.ID.String())
	}
	return nil
}
