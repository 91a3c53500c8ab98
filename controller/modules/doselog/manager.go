package doselog

import (
	"sync"

	"github.com/squaredose/doser/controller"
)

// Manager is the single-mutex entry point the rest of the module uses
// for logging and summarizing doses — schedule.Manager holds one via
// the DoseLogger interface, and the API layer holds one directly for
// ad-hoc doses and dashboard reads.
type Manager struct {
	mu    sync.Mutex
	store *Store
	clock controller.Clock
}

func NewManager(store *Store, clock controller.Clock) *Manager {
	return &Manager{store: store, clock: clock}
}

// LogScheduledDose records volumeMl dispensed by a schedule tick.
// Matches DosingLogManager::logDoseInternal's unsynced-clock guard: if
// wallSeconds predates 2020, the call is silently dropped rather than
// erroring, since the timestamp is meaningless.
func (m *Manager) LogScheduledDose(head int, volumeMl float64, wallSeconds int64) error {
	return m.log(head, volumeMl, 0, wallSeconds)
}

// LogAdhocDose records volumeMl dispensed by an operator-triggered
// dose (the /api/dose endpoint), under the same unsynced-clock guard.
func (m *Manager) LogAdhocDose(head int, volumeMl float64, wallSeconds int64) error {
	return m.log(head, 0, volumeMl, wallSeconds)
}

func (m *Manager) log(head int, scheduledDelta, adhocDelta float64, wallSeconds int64) error {
	if !controller.WallSynced(wallSeconds) {
		return nil
	}
	if err := validateHead(head); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Merge(head, wallSeconds, scheduledDelta, adhocDelta)
}

// HourlyLogs returns head's stored entries within [startWall, endWall).
func (m *Manager) HourlyLogs(head int, startWall, endWall int64) ([]HourlyEntry, error) {
	if err := validateHead(head); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Range(head, startWall, endWall)
}

// DailySummary is the aggregate the dashboard endpoints render: volume
// dosed so far today against the schedule's daily target, if one is
// set.
type DailySummary struct {
	Head                int     `json:"head"`
	ScheduledVolumeML    float64 `json:"scheduledVolumeMl"`
	AdhocVolumeML        float64 `json:"adhocVolumeMl"`
	TotalVolumeML        float64 `json:"totalVolumeMl"`
	DailyTargetVolumeML  float64 `json:"dailyTargetVolumeMl,omitempty"`
	PercentComplete      float64 `json:"percentComplete,omitempty"`
}

// DailySummary sums head's scheduled and ad-hoc volume over
// [startOfDay, startOfDay+86400), matching
// DosingLogManager::getDailySummary. dailyTargetMl is zero when the
// caller has no schedule to compare against (PercentComplete is then
// left at zero).
func (m *Manager) DailySummary(head int, wallNow int64, dailyTargetMl float64) (DailySummary, error) {
	if err := validateHead(head); err != nil {
		return DailySummary{}, err
	}
	startOfDay := roundToDay(wallNow)
	entries, err := m.HourlyLogs(head, startOfDay, startOfDay+86400)
	if err != nil {
		return DailySummary{}, err
	}
	summary := DailySummary{Head: head, DailyTargetVolumeML: dailyTargetMl}
	for _, e := range entries {
		summary.ScheduledVolumeML += e.ScheduledVolume
		summary.AdhocVolumeML += e.AdhocVolume
	}
	summary.TotalVolumeML = summary.ScheduledVolumeML + summary.AdhocVolumeML
	if dailyTargetMl > 0 {
		summary.PercentComplete = summary.ScheduledVolumeML / dailyTargetMl * 100.0
	}
	return summary, nil
}

func roundToDay(wallSeconds int64) int64 {
	return wallSeconds - (wallSeconds % 86400)
}

// Prune discards entries older than LogRetentionHours — run daily by
// the log-retention cron task.
func (m *Manager) Prune(wallNow int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Prune(wallNow)
}

// ClearAll wipes all logged history.
func (m *Manager) ClearAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.ClearAll()
}

// Count returns how many hourly entries are currently stored.
func (m *Manager) Count() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Count()
}
