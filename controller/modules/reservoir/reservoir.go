// Package reservoir tracks how much reagent remains in each head's
// supply container, decrementing as doses are logged and flagging a
// head low once its remaining volume drops under a configured
// threshold.
package reservoir

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/squaredose/doser/controller"
)

const HeadCount = 4

// State is one head's persisted reservoir bookkeeping.
type State struct {
	Head           int     `json:"head"`
	StartVolumeML  float64 `json:"startVolumeMl"`
	RemainingML    float64 `json:"remainingMl"`
	LowThresholdML float64 `json:"lowThresholdMl"`
}

// IsLow reports whether a configured reservoir (StartVolumeML > 0) has
// dropped to or below its threshold. An unconfigured reservoir is
// never low.
func (s State) IsLow() bool {
	return s.StartVolumeML > 0 && s.RemainingML <= s.LowThresholdML
}

func namespaceFor(head int) string {
	return fmt.Sprintf("reservoir%d", head)
}

const key = "state"

// Manager is the single-mutex entry point for reservoir bookkeeping.
// One bucket per head, same layout as every other per-head module.
type Manager struct {
	mu    sync.Mutex
	store controller.Store
}

func NewManager(store controller.Store) (*Manager, error) {
	for head := 0; head < HeadCount; head++ {
		if err := store.CreateBucket(namespaceFor(head)); err != nil {
			return nil, controller.NewPersistenceError("create bucket", err)
		}
	}
	return &Manager{store: store}, nil
}

// Get returns head's reservoir state, defaulting to an empty
// zero-threshold reservoir (never low) if nothing has been configured
// yet — a fresh install shouldn't nag about a low reservoir nobody
// has set up.
func (m *Manager) Get(head int) (State, error) {
	if head < 0 || head >= HeadCount {
		return State{}, controller.NewValidationError("head %d out of range", head)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok, err := m.store.GetBytes(namespaceFor(head), key)
	if err != nil {
		return State{}, controller.NewPersistenceError("load reservoir", err)
	}
	if !ok {
		return State{Head: head}, nil
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}, controller.NewPersistenceError("decode reservoir", err)
	}
	return s, nil
}

// Configure sets a head's starting volume and low-volume threshold and
// resets RemainingML to StartVolumeML — called when the operator
// refills or swaps a reagent container.
func (m *Manager) Configure(head int, startVolumeMl, lowThresholdMl float64) (State, error) {
	if head < 0 || head >= HeadCount {
		return State{}, controller.NewValidationError("head %d out of range", head)
	}
	if startVolumeMl < 0 {
		return State{}, controller.NewValidationError("startVolumeMl must be non-negative")
	}
	if lowThresholdMl < 0 {
		return State{}, controller.NewValidationError("lowThresholdMl must be non-negative")
	}
	s := State{Head: head, StartVolumeML: startVolumeMl, RemainingML: startVolumeMl, LowThresholdML: lowThresholdMl}
	if err := m.persist(s); err != nil {
		return State{}, err
	}
	return s, nil
}

// Consume subtracts volumeMl from head's remaining reagent, floored at
// zero — called once per logged dose (scheduled or ad-hoc) so the
// reservoir tracks actual dispensed volume, not nominal request
// volume. A head with no configured reservoir (StartVolumeML == 0) is
// left untouched: consumption tracking is opt-in per head.
func (m *Manager) Consume(head int, volumeMl float64) (State, error) {
	if head < 0 || head >= HeadCount {
		return State{}, controller.NewValidationError("head %d out of range", head)
	}
	m.mu.Lock()
	raw, ok, err := m.store.GetBytes(namespaceFor(head), key)
	m.mu.Unlock()
	if err != nil {
		return State{}, controller.NewPersistenceError("load reservoir", err)
	}
	if !ok {
		return State{Head: head}, nil
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}, controller.NewPersistenceError("decode reservoir", err)
	}
	if s.StartVolumeML == 0 {
		return s, nil
	}
	s.RemainingML -= volumeMl
	if s.RemainingML < 0 {
		s.RemainingML = 0
	}
	if err := m.persist(s); err != nil {
		return State{}, err
	}
	return s, nil
}

// ConsumeOnly is Consume with the state discarded, for callers (like
// schedule.Manager) that only need the side effect through a narrow
// interface.
func (m *Manager) ConsumeOnly(head int, volumeMl float64) error {
	_, err := m.Consume(head, volumeMl)
	return err
}

func (m *Manager) persist(s State) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return controller.NewPersistenceError("encode reservoir", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.PutBytes(namespaceFor(s.Head), key, raw); err != nil {
		return controller.NewPersistenceError("save reservoir", err)
	}
	return nil
}

// All returns every head's current reservoir state.
func (m *Manager) All() ([HeadCount]State, error) {
	var out [HeadCount]State
	for head := 0; head < HeadCount; head++ {
		s, err := m.Get(head)
		if err != nil {
			return out, err
		}
		out[head] = s
	}
	return out, nil
}
