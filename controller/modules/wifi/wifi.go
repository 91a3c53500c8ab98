// Package wifi supervises the device's network mode — it starts in
// AP (access point) mode so an operator can reach the setup UI, and
// transitions to STA (station) mode once credentials for a real
// network are provided.
package wifi

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/squaredose/doser/controller"
)

type Mode int

const (
	ModeAP Mode = iota
	ModeSTA
	ModeTransitioning
)

func (m Mode) String() string {
	switch m {
	case ModeAP:
		return "ap"
	case ModeSTA:
		return "sta"
	case ModeTransitioning:
		return "transitioning"
	default:
		return "unknown"
	}
}

const (
	StaConnectTimeout  = 20 * time.Second
	StaRetryInterval   = 60 * time.Second
	StaFailToAPAfter   = 60 * time.Second
	KeepAliveCadence   = 10 * time.Second
)

const credentialNamespace = "wifi_config"
const credentialKey = "credentials"

// Radio is the hardware control surface the supervisor drives.
// SimRadio is the only implementation in this repository; both the
// tests and cmd/squaredosed use it.
type Radio interface {
	StartAP(ssid, password string) error
	ConnectSTA(ssid, password string, timeout time.Duration) (ip string, err error)
	Disconnect() error
	IsConnected() bool
}

type credentials struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

// Supervisor runs the AP/STA/Transitioning state machine. One mutex
// guards all mutable state; the keep-alive loop (controller/tasks)
// calls Tick on KeepAliveCadence.
type Supervisor struct {
	mu           sync.Mutex
	store        controller.Store
	clock        controller.Clock
	radio        Radio
	logger       logFunc
	hardwareID   [6]byte
	apSSID       string
	mode         Mode
	staSSID      string
	localIP      string
	staFailSince int64 // monotonic millis, meaningful only while staFailing
	staFailing   bool
	lastAttempt  int64 // monotonic millis
}

type logFunc func(msg string, args ...any)

func New(store controller.Store, clock controller.Clock, radio Radio, hardwareID [6]byte, logger logFunc) (*Supervisor, error) {
	if err := store.CreateBucket(credentialNamespace); err != nil {
		return nil, controller.NewPersistenceError("create bucket", err)
	}
	s := &Supervisor{
		store:      store,
		clock:      clock,
		radio:      radio,
		logger:     logger,
		hardwareID: hardwareID,
		apSSID:     generateAPSSID(hardwareID),
		mode:       ModeAP,
	}
	return s, nil
}

// generateAPSSID reproduces wifi_manager's "SquareDose-<HEXID>" scheme,
// upper-cased, derived from the device's hardware identifier.
func generateAPSSID(hardwareID [6]byte) string {
	return fmt.Sprintf("SquareDose-%s", upperHex(hardwareID[:]))
}

func upperHex(b []byte) string {
	s := hex.EncodeToString(b)
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'f' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// fingerprintPassword returns a short blake2b digest of password for
// logging, so credentials are never written to logs in the clear.
func fingerprintPassword(password string) string {
	sum := blake2b.Sum256([]byte(password))
	return hex.EncodeToString(sum[:6])
}

// Boot loads any persisted credentials and starts AP or attempts STA
// accordingly, matching wifi_manager's startup sequence.
func (s *Supervisor) Boot() error {
	s.mu.Lock()
	creds, ok, err := s.loadCredentials()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if !ok {
		return s.switchToAP()
	}
	return s.attemptSTA(creds.SSID, creds.Password)
}

func (s *Supervisor) loadCredentials() (credentials, bool, error) {
	raw, ok, err := s.store.GetBytes(credentialNamespace, credentialKey)
	if err != nil {
		return credentials{}, false, controller.NewPersistenceError("load credentials", err)
	}
	if !ok {
		return credentials{}, false, nil
	}
	var c credentials
	if err := decodeCredentials(raw, &c); err != nil {
		return credentials{}, false, controller.NewPersistenceError("decode credentials", err)
	}
	return c, true, nil
}

// SetCredentials persists ssid/password and switches into STA mode —
// the response-then-background-switch handler pattern lives in
// controller/api, this just does the switch itself.
func (s *Supervisor) SetCredentials(ssid, password string) error {
	if ssid == "" {
		return controller.NewValidationError("ssid must not be empty")
	}
	raw, err := encodeCredentials(credentials{SSID: ssid, Password: password})
	if err != nil {
		return controller.NewPersistenceError("encode credentials", err)
	}
	if err := s.store.PutBytes(credentialNamespace, credentialKey, raw); err != nil {
		return controller.NewPersistenceError("save credentials", err)
	}
	s.logger("wifi credentials updated", "ssid", ssid, "password_fingerprint", fingerprintPassword(password))
	return s.attemptSTA(ssid, password)
}

// ClearCredentials wipes stored credentials and returns to AP mode.
func (s *Supervisor) ClearCredentials() error {
	if err := s.store.Delete(credentialNamespace, credentialKey); err != nil {
		return controller.NewPersistenceError("clear credentials", err)
	}
	return s.switchToAP()
}

func (s *Supervisor) switchToAP() error {
	s.mu.Lock()
	s.mode = ModeTransitioning
	ssid := s.apSSID
	s.mu.Unlock()

	if err := s.radio.StartAP(ssid, ""); err != nil {
		return controller.NewWiFiTransientError("start AP: %v", err)
	}

	s.mu.Lock()
	s.mode = ModeAP
	s.localIP = ""
	s.staFailSince = 0
	s.staFailing = false
	s.mu.Unlock()
	return nil
}

func (s *Supervisor) attemptSTA(ssid, password string) error {
	s.mu.Lock()
	s.mode = ModeTransitioning
	s.staSSID = ssid
	s.lastAttempt = s.clock.MonotonicMillis()
	s.mu.Unlock()

	ip, err := s.radio.ConnectSTA(ssid, password, StaConnectTimeout)
	if err != nil {
		s.mu.Lock()
		s.mode = ModeAP
		if !s.staFailing {
			s.staFailing = true
			s.staFailSince = s.clock.MonotonicMillis()
		}
		s.mu.Unlock()
		if startErr := s.radio.StartAP(s.apSSID, ""); startErr != nil {
			return controller.NewWiFiTransientError("fallback to AP failed: %v", startErr)
		}
		return controller.NewWiFiTransientError("connect STA %q: %v", ssid, err)
	}

	s.mu.Lock()
	s.mode = ModeSTA
	s.localIP = ip
	s.staFailSince = 0
	s.staFailing = false
	s.mu.Unlock()
	return nil
}

// hasElapsed reports whether duration has passed since startMillis,
// using unsigned subtraction so a monotonic-clock value near its
// rollover point never produces a spurious negative — wifi_manager's
// hasElapsed.
func hasElapsed(nowMillis, startMillis int64, duration time.Duration) bool {
	return uint64(nowMillis-startMillis) >= uint64(duration.Milliseconds())
}

// Tick runs one keep-alive pass: if in STA mode, verifies the radio is
// still connected; if it has been failing to reconnect for longer than
// StaFailToAPAfter, falls back to AP. Called on KeepAliveCadence.
func (s *Supervisor) Tick() {
	s.mu.Lock()
	mode := s.mode
	ssid := s.staSSID
	lastAttempt := s.lastAttempt
	failSince := s.staFailSince
	failing := s.staFailing
	now := s.clock.MonotonicMillis()
	s.mu.Unlock()

	switch mode {
	case ModeSTA:
		if s.radio.IsConnected() {
			return
		}
		s.mu.Lock()
		if !s.staFailing {
			s.staFailing = true
			s.staFailSince = now
			s.logger("wifi STA connection dropped, attempting reconnect", "ssid", ssid)
		}
		failSince := s.staFailSince
		s.mu.Unlock()

		if hasElapsed(now, failSince, StaFailToAPAfter) {
			s.mu.Lock()
			s.mode = ModeAP
			s.lastAttempt = now
			s.mu.Unlock()
			if err := s.radio.Disconnect(); err != nil {
				s.logger("wifi disconnect before AP fallback failed", "error", err)
			}
			if err := s.radio.StartAP(s.apSSID, ""); err != nil {
				s.logger("wifi AP fallback failed to start", "error", err)
			}
			s.logger("wifi STA reconnect window elapsed, fell back to AP", "ssid", ssid)
			return
		}

		creds, ok, err := func() (credentials, bool, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.loadCredentials()
		}()
		if err != nil || !ok {
			return
		}
		ip, connErr := s.radio.ConnectSTA(creds.SSID, creds.Password, StaConnectTimeout)
		if connErr != nil {
			s.logger("wifi STA reconnect attempt failed, still within retry window", "ssid", ssid, "error", connErr)
			return
		}
		s.mu.Lock()
		s.mode = ModeSTA
		s.localIP = ip
		s.staFailSince = 0
		s.staFailing = false
		s.mu.Unlock()
		s.logger("wifi STA reconnected", "ssid", ssid)
	case ModeAP:
		if !failing {
			return
		}
		if hasElapsed(now, failSince, StaFailToAPAfter) && hasElapsed(now, lastAttempt, StaRetryInterval) {
			creds, ok, err := func() (credentials, bool, error) {
				s.mu.Lock()
				defer s.mu.Unlock()
				return s.loadCredentials()
			}()
			if err == nil && ok {
				_ = s.attemptSTA(creds.SSID, creds.Password)
			}
		}
	case ModeTransitioning:
		// a Boot/SetCredentials/ClearCredentials call owns this
		// transition; the keep-alive loop leaves it alone.
	}
}

// CurrentMode, LocalIP, APSSID, IsConnected are the read-only status
// surface /api/wifi/status renders.
func (s *Supervisor) CurrentMode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Supervisor) LocalIP() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localIP
}

func (s *Supervisor) APSSID() string {
	return s.apSSID
}

func (s *Supervisor) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode == ModeSTA
}

// randomHardwareID returns a random 6-byte identifier. Nothing in this
// repository calls it; cmd/squaredosed persists its own random
// identifier instead.
func randomHardwareID() [6]byte {
	var id [6]byte
	_, _ = rand.Read(id[:])
	return id
}
