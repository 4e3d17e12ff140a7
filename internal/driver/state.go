package driver

import (
	"context"
	"sync"
	"time"
)

// ModuleState tracks whether the module has reported a successful boot.
// Only the correlator's dispatch loop sets it; readers block on changes
// instead of polling.
type ModuleState struct {
	mu      sync.Mutex
	booted  bool
	changed chan struct{}
}

// NewModuleState returns a state with the module not booted.
func NewModuleState() *ModuleState {
	return &ModuleState{changed: make(chan struct{})}
}

// Booted reports the current flag.
func (s *ModuleState) Booted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.booted
}

// Set updates the flag and wakes every waiter if it changed.
func (s *ModuleState) Set(booted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.booted == booted {
		return
	}
	s.booted = booted
	close(s.changed)
	s.changed = make(chan struct{})
}

// Await blocks until the flag equals want. It returns ErrEventMissing once
// timeout elapses, or the context error if ctx ends first.
func (s *ModuleState) Await(ctx context.Context, want bool, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		s.mu.Lock()
		booted, changed := s.booted, s.changed
		s.mu.Unlock()

		if booted == want {
			return nil
		}

		select {
		case <-changed:
		case <-timer.C:
			return ErrEventMissing
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
