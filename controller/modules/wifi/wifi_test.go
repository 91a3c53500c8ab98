package wifi

import (
	"testing"
	"time"

	"github.com/squaredose/doser/controller"
)

func newTestSupervisor(t *testing.T, radio *SimRadio) (*Supervisor, *controller.FakeClock) {
	t.Helper()
	store := controller.NewMemStore()
	clock := controller.NewFakeClock(1735689600)
	s, err := New(store, clock, radio, [6]byte{1, 2, 3, 4, 5, 6}, func(string, ...any) {})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, clock
}

func TestAPSSIDDerivedFromHardwareID(t *testing.T) {
	s, _ := newTestSupervisor(t, NewSimRadio())
	if s.APSSID() != "SquareDose-010203040506" {
		t.Fatalf("unexpected AP SSID: %q", s.APSSID())
	}
}

func TestBootWithNoCredentialsStartsAP(t *testing.T) {
	s, _ := newTestSupervisor(t, NewSimRadio())
	if err := s.Boot(); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	if s.CurrentMode() != ModeAP {
		t.Fatalf("expected AP mode, got %v", s.CurrentMode())
	}
}

func TestSetCredentialsConnectsSTA(t *testing.T) {
	radio := NewSimRadio()
	radio.AddNetwork("home", "secret")
	s, _ := newTestSupervisor(t, radio)

	if err := s.SetCredentials("home", "secret"); err != nil {
		t.Fatalf("SetCredentials: %v", err)
	}
	if s.CurrentMode() != ModeSTA {
		t.Fatalf("expected STA mode, got %v", s.CurrentMode())
	}
	if s.LocalIP() != "10.0.0.42" {
		t.Fatalf("unexpected local IP: %q", s.LocalIP())
	}
	if !s.IsConnected() {
		t.Fatal("expected IsConnected true")
	}
}

func TestSetCredentialsFallsBackToAPOnAuthFailure(t *testing.T) {
	s, _ := newTestSupervisor(t, NewSimRadio())
	if err := s.SetCredentials("ghost-network", "wrong"); err == nil {
		t.Fatal("expected WiFiTransientError for unreachable network")
	}
	if s.CurrentMode() != ModeAP {
		t.Fatalf("expected fallback to AP mode, got %v", s.CurrentMode())
	}
}

func TestTickStaysSTAWithinRetryWindowAfterDrop(t *testing.T) {
	radio := NewSimRadio()
	radio.AddNetwork("home", "secret")
	s, clock := newTestSupervisor(t, radio)

	if err := s.SetCredentials("home", "secret"); err != nil {
		t.Fatalf("SetCredentials: %v", err)
	}
	radio.RemoveNetwork("home")
	radio.Drop()

	s.Tick()
	if s.CurrentMode() != ModeSTA {
		t.Fatalf("expected mode to remain STA immediately after a drop, got %v", s.CurrentMode())
	}

	clock.AdvanceMono(30 * time.Second)
	s.Tick()
	if s.CurrentMode() != ModeSTA {
		t.Fatalf("expected mode to remain STA within the retry window, got %v", s.CurrentMode())
	}
}

func TestTickReconnectsSTAWithinRetryWindow(t *testing.T) {
	radio := NewSimRadio()
	radio.AddNetwork("home", "secret")
	s, clock := newTestSupervisor(t, radio)

	if err := s.SetCredentials("home", "secret"); err != nil {
		t.Fatalf("SetCredentials: %v", err)
	}
	radio.RemoveNetwork("home")
	radio.Drop()

	s.Tick()
	if s.CurrentMode() != ModeSTA {
		t.Fatalf("expected mode to remain STA after a drop, got %v", s.CurrentMode())
	}

	clock.AdvanceMono(10 * time.Second)
	radio.AddNetwork("home", "secret")
	s.Tick()
	if s.CurrentMode() != ModeSTA {
		t.Fatalf("expected reconnect to STA once the network is reachable again, got %v", s.CurrentMode())
	}
	if s.LocalIP() != "10.0.0.42" {
		t.Fatalf("unexpected local IP after reconnect: %q", s.LocalIP())
	}
}

func TestTickFallsBackAfterSTADropsAndRetryWindowPasses(t *testing.T) {
	radio := NewSimRadio()
	radio.AddNetwork("home", "secret")
	s, clock := newTestSupervisor(t, radio)

	if err := s.SetCredentials("home", "secret"); err != nil {
		t.Fatalf("SetCredentials: %v", err)
	}
	radio.RemoveNetwork("home")
	radio.Drop()

	s.Tick()
	if s.CurrentMode() != ModeSTA {
		t.Fatalf("expected mode to remain STA immediately after a drop, got %v", s.CurrentMode())
	}

	clock.AdvanceMono(StaFailToAPAfter + time.Second)
	s.Tick()
	if s.CurrentMode() != ModeAP {
		t.Fatalf("expected fallback to AP once the retry window elapses, got %v", s.CurrentMode())
	}

	clock.AdvanceMono(StaRetryInterval)
	radio.AddNetwork("home", "secret")
	s.Tick()
	if s.CurrentMode() != ModeSTA {
		t.Fatalf("expected reconnect to STA once back in AP's own retry cadence, got %v", s.CurrentMode())
	}
}

func TestClearCredentialsReturnsToAP(t *testing.T) {
	radio := NewSimRadio()
	radio.AddNetwork("home", "secret")
	s, _ := newTestSupervisor(t, radio)
	if err := s.SetCredentials("home", "secret"); err != nil {
		t.Fatalf("SetCredentials: %v", err)
	}
	if err := s.ClearCredentials(); err != nil {
		t.Fatalf("ClearCredentials: %v", err)
	}
	if s.CurrentMode() != ModeAP {
		t.Fatalf("expected AP mode after ClearCredentials, got %v", s.CurrentMode())
	}
}
