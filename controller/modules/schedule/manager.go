package schedule

import (
	"log/slog"
	"sync"

	"github.com/squaredose/doser/controller"
)

// Dispenser is the subset of dosinghead.Head that Manager needs. A
// narrow local interface avoids an import cycle back into
// controller/modules/dosinghead, which never needs to know about
// schedules. dosinghead.Head.DispenseML satisfies this directly.
type Dispenser interface {
	DispenseML(volumeMl float64) (estimatedVolumeMl float64, err error)
}

// DoseLogger is the subset of doselog.Manager that Manager needs.
// Wired in after construction via SetLogManager to break what would
// otherwise be a cyclic package dependency between schedule and
// doselog.
type DoseLogger interface {
	LogScheduledDose(head int, volumeMl float64, wallSeconds int64) error
}

// ReservoirConsumer is the subset of reservoir.Manager that Manager
// needs. Wired in the same way as DoseLogger, via
// SetReservoirManager — optional, since not every deployment tracks
// reagent remaining.
type ReservoirConsumer interface {
	ConsumeOnly(head int, volumeMl float64) error
}

// Manager caches one Schedule per head and drives the scheduler tick.
// A single mutex guards the cache; it is always released before a
// blocking Dispense call so Get/Set/All/Delete callers are never
// stalled behind a dose — ScheduleManager::checkAndExecute's
// copy-under-lock/release/dispense/relock sequence.
type Manager struct {
	mu      sync.Mutex
	store   *Store
	heads   [4]Dispenser
	cache   [4]*Schedule
	clock      controller.Clock
	logger     *slog.Logger
	doseLog    DoseLogger
	reservoirs ReservoirConsumer
}

func NewManager(store *Store, heads [4]Dispenser, clock controller.Clock, logger *slog.Logger) (*Manager, error) {
	m := &Manager{store: store, heads: heads, clock: clock, logger: logger}
	for head := 0; head < 4; head++ {
		sched, err := store.Get(head)
		if err != nil {
			continue
		}
		m.cache[head] = &sched
	}
	return m, nil
}

// SetLogManager wires the dose logger after construction.
func (m *Manager) SetLogManager(l DoseLogger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.doseLog = l
}

// SetReservoirManager wires reagent-remaining tracking after
// construction. Optional: a Manager with no reservoirs set simply
// skips the consumption step.
func (m *Manager) SetReservoirManager(r ReservoirConsumer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservoirs = r
}

// Set validates, persists, and caches a schedule for sched.Head.
func (m *Manager) Set(sched Schedule) (Schedule, error) {
	if err := sched.validate(); err != nil {
		return Schedule{}, err
	}
	sched.recomputeDerived()
	now := m.clock.WallSeconds()
	m.mu.Lock()
	existing := m.cache[sched.Head]
	if existing != nil {
		sched.LastExecutionTime = existing.LastExecutionTime
		sched.ExecutionCount = existing.ExecutionCount
		sched.CreatedAt = existing.CreatedAt
	} else {
		sched.CreatedAt = now
	}
	sched.UpdatedAt = now
	m.mu.Unlock()

	if err := m.store.Put(sched); err != nil {
		return Schedule{}, err
	}

	m.mu.Lock()
	m.cache[sched.Head] = &sched
	m.mu.Unlock()
	return sched, nil
}

// Get returns the cached schedule for head, or false if none is set.
func (m *Manager) Get(head int) (Schedule, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if head < 0 || head > 3 || m.cache[head] == nil {
		return Schedule{}, false
	}
	return *m.cache[head], true
}

// All returns every head's schedule snapshot, in head order; absent
// heads are omitted.
func (m *Manager) All() []Schedule {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Schedule, 0, 4)
	for _, s := range m.cache {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// Delete removes head's schedule from both the store and the cache.
func (m *Manager) Delete(head int) error {
	if err := m.store.Delete(head); err != nil {
		return err
	}
	m.mu.Lock()
	m.cache[head] = nil
	m.mu.Unlock()
	return nil
}

// CheckAndExecute scans every head for a due schedule and dispenses
// it. Called once per scheduler tick (controller/tasks). Heads are
// checked one after another, so a due head waits for the dispense of
// any earlier head in the same tick to finish. The schedule mutex is
// released while Dispense runs so other callers of the Manager are
// not blocked by the dose.
func (m *Manager) CheckAndExecute(wallNow int64) {
	for head := 0; head < 4; head++ {
		m.mu.Lock()
		sched := m.cache[head]
		if sched == nil || !sched.shouldExecute(wallNow) {
			m.mu.Unlock()
			continue
		}
		snapshot := *sched
		dispenser := m.heads[head]
		m.mu.Unlock()

		m.executeSchedule(head, snapshot, dispenser, wallNow)
	}
}

func (m *Manager) executeSchedule(head int, snapshot Schedule, dispenser Dispenser, wallNow int64) {
	estimatedVolumeMl, err := dispenser.DispenseML(snapshot.PerDoseVolumeML)
	if err != nil {
		m.logger.Error("scheduled dose failed", "head", head, "error", err)
		return
	}

	m.mu.Lock()
	if current := m.cache[head]; current != nil {
		current.LastExecutionTime = wallNow
		current.ExecutionCount++
		current.UpdatedAt = wallNow
		persisted := *current
		m.mu.Unlock()
		if err := m.store.Put(persisted); err != nil {
			m.logger.Error("persist schedule execution failed", "head", head, "error", err)
		}
	} else {
		m.mu.Unlock()
	}

	m.mu.Lock()
	logger := m.doseLog
	reservoirs := m.reservoirs
	m.mu.Unlock()
	if logger != nil {
		if err := logger.LogScheduledDose(head, estimatedVolumeMl, wallNow); err != nil {
			m.logger.Error("log scheduled dose failed", "head", head, "error", err)
		}
	}
	if reservoirs != nil {
		if err := reservoirs.ConsumeOnly(head, estimatedVolumeMl); err != nil {
			m.logger.Error("reservoir consume failed", "head", head, "error", err)
		}
	}
}
