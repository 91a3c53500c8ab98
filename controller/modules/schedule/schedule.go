// Package schedule implements interval-only dosing schedules — one per
// head, stored and cached by ScheduleManager. Only interval-based
// recurrence is supported; there is no one-shot or fixed-time-of-day
// variant.
package schedule

import (
	"fmt"

	"github.com/squaredose/doser/controller"
)

const (
	MinDosesPerDay      = 1
	MaxDosesPerDay      = 1440
	MinDailyTargetML    = 0.1
	MaxDailyTargetML    = 10000.0
	MaxPerDoseVolumeML  = 1000.0
	SecondsPerDay       = 86400
)

// Schedule is the persisted and cached record for one head's recurring
// dose. PerDoseVolumeML and IntervalSeconds are derived fields,
// recomputed whenever DosesPerDay or DailyTargetVolumeML changes —
// never trust a stored derived field without recomputing it first.
type Schedule struct {
	Head                int     `json:"head"`
	Enabled             bool    `json:"enabled"`
	DosesPerDay         int     `json:"dosesPerDay"`
	DailyTargetVolumeML float64 `json:"dailyTargetVolumeMl"`
	PerDoseVolumeML     float64 `json:"perDoseVolumeMl"`
	IntervalSeconds     int64   `json:"intervalSeconds"`
	LastExecutionTime   int64   `json:"lastExecutionTime"`
	ExecutionCount      int64   `json:"executionCount"`
	CreatedAt           int64   `json:"createdAt"`
	UpdatedAt           int64   `json:"updatedAt"`
}

// recomputeDerived fills PerDoseVolumeML and IntervalSeconds from
// DosesPerDay and DailyTargetVolumeML, matching Schedule's derived
// field recomputation in the original.
func (s *Schedule) recomputeDerived() {
	s.IntervalSeconds = SecondsPerDay / int64(s.DosesPerDay)
	s.PerDoseVolumeML = s.DailyTargetVolumeML / float64(s.DosesPerDay)
}

// validate checks the ranges a schedule's inputs must fall within. It
// does not check PerDoseVolumeML/IntervalSeconds directly since those
// are always derived, never user-supplied.
func (s *Schedule) validate() error {
	if s.Head < 0 || s.Head > 3 {
		return controller.NewValidationError("head %d out of range [0,3]", s.Head)
	}
	if s.DosesPerDay < MinDosesPerDay || s.DosesPerDay > MaxDosesPerDay {
		return controller.NewValidationError(
			"dosesPerDay %d out of range [%d, %d]", s.DosesPerDay, MinDosesPerDay, MaxDosesPerDay)
	}
	if s.DailyTargetVolumeML < MinDailyTargetML || s.DailyTargetVolumeML > MaxDailyTargetML {
		return controller.NewValidationError(
			"dailyTargetVolumeMl %.3f out of range [%.1f, %.1f]",
			s.DailyTargetVolumeML, MinDailyTargetML, MaxDailyTargetML)
	}
	perDose := s.DailyTargetVolumeML / float64(s.DosesPerDay)
	if perDose <= 0 || perDose > MaxPerDoseVolumeML {
		return controller.NewValidationError(
			"derived per-dose volume %.3f out of range (0, %.1f]", perDose, MaxPerDoseVolumeML)
	}
	return nil
}

// shouldExecute reports whether the schedule is due at wallNow,
// matching Schedule::should_execute: never-yet-run schedules are
// always due, otherwise the full interval must have elapsed.
func (s *Schedule) shouldExecute(wallNow int64) bool {
	if !s.Enabled {
		return false
	}
	if s.LastExecutionTime == 0 {
		return true
	}
	return wallNow-s.LastExecutionTime >= s.IntervalSeconds
}

func namespaceFor(head int) string {
	return fmt.Sprintf("schedule%d", head)
}
