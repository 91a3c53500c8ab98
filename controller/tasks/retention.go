package tasks

import (
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/squaredose/doser/controller"
)

// Pruner is the subset of doselog.Manager the retention job needs.
type Pruner interface {
	Prune(wallNow int64) (removed int, err error)
}

// retentionSpec runs once a day at 03:00 local time.
const retentionSpec = "0 3 * * *"

// StartLogRetention registers and starts a daily prune job against
// pruner. The returned *cron.Cron should be stopped by the caller at
// shutdown.
func StartLogRetention(clock controller.Clock, logger *slog.Logger, pruner Pruner) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(retentionSpec, func() {
		wallNow := clock.WallSeconds()
		if !controller.WallSynced(wallNow) {
			return
		}
		removed, err := pruner.Prune(wallNow)
		if err != nil {
			logger.Error("log retention prune failed", "error", err)
			return
		}
		logger.Info("log retention prune complete", "removed", removed)
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
