package reservoir

import (
	"testing"

	"github.com/squaredose/doser/controller"
)

func TestGetDefaultsToNeverLow(t *testing.T) {
	m, err := NewManager(controller.NewMemStore())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	s, err := m.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.IsLow() {
		t.Fatal("an unconfigured reservoir should never report low")
	}
}

func TestConfigureAndConsume(t *testing.T) {
	m, err := NewManager(controller.NewMemStore())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := m.Configure(1, 500, 50); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	s, err := m.Consume(1, 200)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if s.RemainingML != 300 {
		t.Fatalf("expected 300 mL remaining, got %v", s.RemainingML)
	}
	if s.IsLow() {
		t.Fatal("300 mL remaining should not be low with a 50 mL threshold")
	}

	s, err = m.Consume(1, 260)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if s.RemainingML != 40 {
		t.Fatalf("expected 40 mL remaining, got %v", s.RemainingML)
	}
	if !s.IsLow() {
		t.Fatal("40 mL remaining should be low with a 50 mL threshold")
	}
}

func TestConsumeNeverGoesNegative(t *testing.T) {
	m, err := NewManager(controller.NewMemStore())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if _, err := m.Configure(2, 10, 5); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	s, err := m.Consume(2, 1000)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if s.RemainingML != 0 {
		t.Fatalf("expected remaining volume floored at 0, got %v", s.RemainingML)
	}
}

func TestConsumeIsNoopWithoutConfiguration(t *testing.T) {
	m, err := NewManager(controller.NewMemStore())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	s, err := m.Consume(3, 100)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if s.RemainingML != 0 || s.StartVolumeML != 0 {
		t.Fatalf("expected no-op state for unconfigured head, got %+v", s)
	}
}
