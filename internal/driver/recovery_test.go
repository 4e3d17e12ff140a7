package driver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/gl-ble-driver/internal/bgapi/bgapitest"
)

type transitions struct {
	mu    sync.Mutex
	steps []ResetState
	last  int
}

func (r *transitions) observe(s ResetState, attempt int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, s)
	r.last = attempt
}

func (r *transitions) count(s ResetState) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, step := range r.steps {
		if step == s {
			n++
		}
	}
	return n
}

func TestHardResetNeverBoots(t *testing.T) {
	c, m := startCore(t)
	m.OnPowerOn = func(int) [][]byte { return nil }

	var tr transitions
	c.Recovery.Observe = tr.observe

	err := c.Recovery.HardReset(context.Background())
	if !errors.Is(err, ErrUnknown) {
		t.Fatalf("HardReset() error = %v, want ErrUnknown", err)
	}
	if m.PowerOns() != 3 {
		t.Errorf("PowerOns() = %d, want 3", m.PowerOns())
	}
	if m.PowerOffs() != 3 {
		t.Errorf("PowerOffs() = %d, want 3", m.PowerOffs())
	}
	if n := tr.count(ResetAwaitingShutdown); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
	if n := tr.count(ResetFailed); n != 1 {
		t.Errorf("failed transitions = %d, want 1", n)
	}
	if c.State.Booted() {
		t.Error("Booted() = true after failed reset")
	}
}

func TestHardResetBootsOnSecondAttempt(t *testing.T) {
	c, m := startCore(t)
	m.OnPowerOn = func(n int) [][]byte {
		if n == 2 {
			return [][]byte{bgapitest.SystemBoot(7, 1)}
		}
		return nil
	}

	var tr transitions
	c.Recovery.Observe = tr.observe

	if err := c.Recovery.HardReset(context.Background()); err != nil {
		t.Fatalf("HardReset() error = %v", err)
	}
	if m.PowerOns() != 2 {
		t.Errorf("PowerOns() = %d, want 2", m.PowerOns())
	}
	if tr.count(ResetReady) != 1 || tr.last != 2 {
		t.Errorf("ready transitions = %d at attempt %d, want 1 at 2", tr.count(ResetReady), tr.last)
	}
	if !c.State.Booted() {
		t.Error("Booted() = false after successful reset")
	}
}

func TestHardResetFirstAttempt(t *testing.T) {
	c, m := startCore(t)

	var tr transitions
	c.Recovery.Observe = tr.observe

	if err := c.Recovery.HardReset(context.Background()); err != nil {
		t.Fatalf("HardReset() error = %v", err)
	}
	want := []ResetState{ResetIdle, ResetAwaitingShutdown, ResetPoweredOff, ResetAwaitingBoot, ResetReady}
	if len(tr.steps) != len(want) {
		t.Fatalf("transitions = %v, want %v", tr.steps, want)
	}
	for i := range want {
		if tr.steps[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, tr.steps[i], want[i])
		}
	}
	if m.PowerOns() != 1 {
		t.Errorf("PowerOns() = %d, want 1", m.PowerOns())
	}
}

func TestHardResetCancelled(t *testing.T) {
	c, m := startCore(t)
	m.OnPowerOn = func(int) [][]byte { return nil }

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := c.Recovery.HardReset(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("HardReset() error = %v, want context.DeadlineExceeded", err)
	}
	if m.PowerOns() > 1 {
		t.Errorf("PowerOns() = %d after cancel, want at most 1", m.PowerOns())
	}
}

func TestNewRecoveryDefaults(t *testing.T) {
	r := NewRecovery(nil, NewModuleState(), nil, ResetTiming{}, nil)
	if got := r.Timing(); got.Attempts != 3 || got.ShutdownWait != 3*time.Second || got.BootWait != 30*time.Second {
		t.Errorf("Timing() = %+v, want defaults", got)
	}
}

func TestResetStateString(t *testing.T) {
	if got := ResetAwaitingBoot.String(); got != "awaiting-boot" {
		t.Errorf("String() = %q", got)
	}
	if got := ResetState(42).String(); got != "ResetState(42)" {
		t.Errorf("String() = %q", got)
	}
}

func TestHardResetStopsOnDeadLink(t *testing.T) {
	c, m := startCore(t)
	m.OnPowerOn = func(int) [][]byte {
		m.Fail(errors.New("device unplugged"))
		return nil
	}
	timing := fastTiming
	timing.BootWait = 5 * time.Second

	var tr transitions
	rec := NewRecovery(c.Events, c.State, m, timing, nil)
	rec.Observe = tr.observe

	start := time.Now()
	if err := rec.HardReset(context.Background()); !errors.Is(err, ErrUnknown) {
		t.Fatalf("HardReset() error = %v, want ErrUnknown", err)
	}
	if time.Since(start) > time.Second {
		t.Error("HardReset() waited out the boot timeout on a dead link")
	}
	if m.PowerOns() != 1 {
		t.Errorf("PowerOns() = %d, want 1", m.PowerOns())
	}
	if n := tr.count(ResetFailed); n != 1 {
		t.Errorf("failed transitions = %d, want 1", n)
	}

	// Further resets give up before touching the module.
	if err := rec.HardReset(context.Background()); !errors.Is(err, ErrUnknown) {
		t.Errorf("second HardReset() error = %v, want ErrUnknown", err)
	}
	if m.PowerOns() != 1 {
		t.Errorf("PowerOns() = %d after second reset, want 1", m.PowerOns())
	}
}
