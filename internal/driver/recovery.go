package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chaz8081/gl-ble-driver/internal/transport"
)

// ResetState is a step of the hard reset sequence.
type ResetState int

const (
	ResetIdle ResetState = iota
	ResetAwaitingShutdown
	ResetPoweredOff
	ResetAwaitingBoot
	ResetReady
	ResetFailed
)

func (s ResetState) String() string {
	switch s {
	case ResetIdle:
		return "idle"
	case ResetAwaitingShutdown:
		return "awaiting-shutdown"
	case ResetPoweredOff:
		return "powered-off"
	case ResetAwaitingBoot:
		return "awaiting-boot"
	case ResetReady:
		return "ready"
	case ResetFailed:
		return "failed"
	default:
		return fmt.Sprintf("ResetState(%d)", int(s))
	}
}

// ResetTiming bounds each phase of a hard reset.
type ResetTiming struct {
	Attempts     int
	ShutdownWait time.Duration
	PowerOnDelay time.Duration
	BootWait     time.Duration
}

// DefaultResetTiming matches the module's physical start-up behaviour.
func DefaultResetTiming() ResetTiming {
	return ResetTiming{
		Attempts:     3,
		ShutdownWait: 3 * time.Second,
		PowerOnDelay: 300 * time.Millisecond,
		BootWait:     30 * time.Second,
	}
}

// Recovery power-cycles the module until it reports a boot.
type Recovery struct {
	events *Correlator
	state  *ModuleState
	power  transport.PowerLine
	timing ResetTiming
	log    *slog.Logger

	// Observe, if set, is called on every state transition with the
	// 1-based attempt number.
	Observe func(state ResetState, attempt int)
}

// NewRecovery returns a recovery driver using the given timing.
// Zero fields in timing fall back to the defaults.
func NewRecovery(events *Correlator, state *ModuleState, power transport.PowerLine, timing ResetTiming, log *slog.Logger) *Recovery {
	def := DefaultResetTiming()
	if timing.Attempts <= 0 {
		timing.Attempts = def.Attempts
	}
	if timing.ShutdownWait <= 0 {
		timing.ShutdownWait = def.ShutdownWait
	}
	if timing.PowerOnDelay < 0 {
		timing.PowerOnDelay = 0
	}
	if timing.BootWait <= 0 {
		timing.BootWait = def.BootWait
	}
	if log == nil {
		log = slog.Default()
	}
	return &Recovery{events: events, state: state, power: power, timing: timing, log: log}
}

// Timing returns the effective timing.
func (r *Recovery) Timing() ResetTiming { return r.timing }

func (r *Recovery) enter(s ResetState, attempt int) {
	r.log.Debug("[RESET] state", "state", s.String(), "attempt", attempt)
	if r.Observe != nil {
		r.Observe(s, attempt)
	}
}

// HardReset powers the module off and on until it boots, up to the
// configured number of attempts. Context cancellation or a dead link ends
// it early.
func (r *Recovery) HardReset(ctx context.Context) error {
	r.enter(ResetIdle, 0)
	if err := r.events.Err(); err != nil {
		r.enter(ResetFailed, 0)
		return err
	}

	for attempt := 1; attempt <= r.timing.Attempts; attempt++ {
		err := r.attempt(ctx, attempt)
		if err == nil {
			r.enter(ResetReady, attempt)
			r.log.Info("[RESET] module booted", "attempt", attempt)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			r.enter(ResetFailed, attempt)
			return ctxErr
		}
		if linkErr := r.events.Err(); linkErr != nil {
			r.enter(ResetFailed, attempt)
			return linkErr
		}
		r.log.Warn("[RESET] attempt failed", "attempt", attempt, "of", r.timing.Attempts, "error", err)
	}

	r.enter(ResetFailed, r.timing.Attempts)
	return fmt.Errorf("%w: module did not boot after %d attempts", ErrUnknown, r.timing.Attempts)
}

func (r *Recovery) attempt(ctx context.Context, n int) error {
	r.enter(ResetAwaitingShutdown, n)
	if err := r.events.Shutdown(ctx, r.timing.ShutdownWait); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if r.state.Booted() {
		return errors.New("module still reports booted after shutdown")
	}

	r.enter(ResetPoweredOff, n)
	if err := sleep(ctx, r.timing.PowerOnDelay); err != nil {
		return err
	}
	if err := r.power.PowerOn(); err != nil {
		return fmt.Errorf("power on: %w", err)
	}

	r.enter(ResetAwaitingBoot, n)
	bootCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.events.Failed():
			cancel()
		case <-bootCtx.Done():
		}
	}()
	if err := r.state.Await(bootCtx, true, r.timing.BootWait); err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	return nil
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
