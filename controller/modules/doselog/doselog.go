// Package doselog stores and summarizes hourly dosing history.
package doselog

import (
	"fmt"

	"github.com/squaredose/doser/controller"
)

// BaseTime is the epoch hour-logging is indexed from: 2025-01-01
// 00:00:00 UTC, matching the original's BASE_TIME constant.
const BaseTime int64 = 1735689600

// LogRetentionHours is how long hourly entries are kept before Prune
// discards them — 14 days, matching LOG_RETENTION_HOURS.
const LogRetentionHours int64 = 336

const Namespace = "dosingLogs"

// HourlyEntry accumulates volume dispensed by one head during one
// hour, split by trigger so dashboards can distinguish scheduled
// dosing from ad-hoc operator requests.
type HourlyEntry struct {
	Head            int     `json:"head"`
	HourOffset      int64   `json:"hourOffset"`
	ScheduledVolume float64 `json:"scheduledVolumeMl"`
	AdhocVolume     float64 `json:"adhocVolumeMl"`
	DoseCount       int     `json:"doseCount"`
}

// roundToHour truncates wallSeconds down to the start of its hour.
func roundToHour(wallSeconds int64) int64 {
	return wallSeconds - (wallSeconds % 3600)
}

// hourOffset converts wallSeconds into an hour index relative to
// BaseTime — the same scheme DosingLogStore::getLogKey uses to keep
// keys short and lexicographically sortable isn't required here since
// bbolt iterates in byte order of the offset's decimal string, which
// this package never relies on for ordering.
func hourOffset(wallSeconds int64) int64 {
	return roundToHour(wallSeconds-BaseTime) / 3600
}

// logKey reproduces DosingLogStore::getLogKey's "h<offset>_<head>"
// scheme.
func logKey(head int, offset int64) string {
	return fmt.Sprintf("h%d_%d", offset, head)
}

func validateHead(head int) error {
	if head < 0 || head > 3 {
		return controller.NewValidationError("head %d out of range [0,3]", head)
	}
	return nil
}
