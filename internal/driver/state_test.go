package driver

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestModuleStateAwait(t *testing.T) {
	s := NewModuleState()

	if err := s.Await(context.Background(), false, time.Millisecond); err != nil {
		t.Errorf("Await(false) on fresh state error = %v", err)
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Set(true)
	}()
	if err := s.Await(context.Background(), true, time.Second); err != nil {
		t.Fatalf("Await(true) error = %v", err)
	}

	if err := s.Await(context.Background(), false, 20*time.Millisecond); !errors.Is(err, ErrEventMissing) {
		t.Errorf("Await(false) error = %v, want ErrEventMissing", err)
	}
}

func TestModuleStateSetIsIdempotent(t *testing.T) {
	s := NewModuleState()
	s.Set(true)
	s.Set(true)
	if !s.Booted() {
		t.Fatal("Booted() = false after Set(true)")
	}
	s.Set(false)
	if s.Booted() {
		t.Error("Booted() = true after Set(false)")
	}
}
