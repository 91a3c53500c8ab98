// Package tasks runs the long-lived background work the composition
// root starts once at boot: the scheduler tick and the Wi-Fi
// keep-alive loop, supervised by an errgroup so a panic or unexpected
// return in either one brings the other down instead of leaving a
// half-dead process running.
package tasks

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/squaredose/doser/controller"
)

const schedulerTickInterval = 1 * time.Second

// Scheduler is the subset of schedule.Manager the scheduler tick
// needs.
type Scheduler interface {
	CheckAndExecute(wallNow int64)
}

// WiFiTicker is the subset of wifi.Supervisor the keep-alive loop
// needs.
type WiFiTicker interface {
	Tick()
}

// Fabric owns the group of supervised background goroutines. Run
// blocks until ctx is cancelled or one of the tasks returns an error.
type Fabric struct {
	clock     controller.Clock
	logger    *slog.Logger
	scheduler Scheduler
	wifi      WiFiTicker
	keepAlive time.Duration
}

func New(clock controller.Clock, logger *slog.Logger, scheduler Scheduler, wifiSupervisor WiFiTicker, keepAliveInterval time.Duration) *Fabric {
	if keepAliveInterval <= 0 {
		keepAliveInterval = 10 * time.Second
	}
	return &Fabric{clock: clock, logger: logger, scheduler: scheduler, wifi: wifiSupervisor, keepAlive: keepAliveInterval}
}

// Run starts the scheduler-tick and Wi-Fi keep-alive loops and blocks
// until ctx is cancelled.
func (f *Fabric) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return f.runSchedulerLoop(ctx)
	})
	g.Go(func() error {
		return f.runKeepAliveLoop(ctx)
	})

	return g.Wait()
}

// runSchedulerLoop ticks every schedulerTickInterval, skipping the
// check entirely while the wall clock isn't synced — SchedulerTask's
// getCurrentTime() == 0 guard, since a due-check against an unsynced
// clock would fire every schedule immediately.
func (f *Fabric) runSchedulerLoop(ctx context.Context) error {
	ticker := time.NewTicker(schedulerTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			wallNow := f.clock.WallSeconds()
			if !controller.WallSynced(wallNow) {
				continue
			}
			f.scheduler.CheckAndExecute(wallNow)
		}
	}
}

func (f *Fabric) runKeepAliveLoop(ctx context.Context) error {
	ticker := time.NewTicker(f.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.wifi.Tick()
		}
	}
}

// SpawnDetached runs fn in a detached goroutine that outlives the
// calling request — used for ad-hoc dose dispatch and Wi-Fi
// credential transitions, both of which the API layer must answer
// immediately (202 Accepted / "switching") while the real work
// continues in the background. Panics are recovered and logged rather
// than taking the process down, since a single bad dose or Wi-Fi
// transition shouldn't affect anything else.
func (f *Fabric) SpawnDetached(label string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				f.logger.Error("detached task panicked", "task", label, "panic", r)
			}
		}()
		fn()
	}()
}
