package schedule

import (
	"log/slog"
	"testing"

	"github.com/squaredose/doser/controller"
)

type fakeDispenser struct {
	calls []float64
	err   error
}

func (f *fakeDispenser) DispenseML(volumeMl float64) (float64, error) {
	f.calls = append(f.calls, volumeMl)
	if f.err != nil {
		return 0, f.err
	}
	return volumeMl, nil
}

type fakeLogger struct {
	logged []float64
}

func (f *fakeLogger) LogScheduledDose(head int, volumeMl float64, wallSeconds int64) error {
	f.logged = append(f.logged, volumeMl)
	return nil
}

func newTestManager(t *testing.T) (*Manager, *Store, [4]*fakeDispenser) {
	t.Helper()
	store, err := NewStore(controller.NewMemStore())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	clock := controller.NewFakeClock(1735689600)
	var fakes [4]*fakeDispenser
	var heads [4]Dispenser
	for i := range fakes {
		fakes[i] = &fakeDispenser{}
		heads[i] = fakes[i]
	}
	m, err := NewManager(store, heads, clock, slog.Default())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, store, fakes
}

func TestSetDerivesFields(t *testing.T) {
	m, _, _ := newTestManager(t)
	sched, err := m.Set(Schedule{Head: 0, Enabled: true, DosesPerDay: 4, DailyTargetVolumeML: 40})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if sched.IntervalSeconds != 86400/4 {
		t.Fatalf("expected interval 21600, got %d", sched.IntervalSeconds)
	}
	if sched.PerDoseVolumeML != 10 {
		t.Fatalf("expected per-dose volume 10, got %v", sched.PerDoseVolumeML)
	}
}

func TestSetRejectsInvalidDosesPerDay(t *testing.T) {
	m, _, _ := newTestManager(t)
	if _, err := m.Set(Schedule{Head: 0, DosesPerDay: 0, DailyTargetVolumeML: 10}); err == nil {
		t.Fatal("expected validation error for dosesPerDay 0")
	}
	if _, err := m.Set(Schedule{Head: 0, DosesPerDay: 2000, DailyTargetVolumeML: 10}); err == nil {
		t.Fatal("expected validation error for dosesPerDay above max")
	}
}

func TestCheckAndExecuteDispensesDueSchedule(t *testing.T) {
	m, _, fakes := newTestManager(t)
	if _, err := m.Set(Schedule{Head: 1, Enabled: true, DosesPerDay: 2, DailyTargetVolumeML: 20}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	m.CheckAndExecute(1735689600)

	if len(fakes[1].calls) != 1 {
		t.Fatalf("expected exactly one dispense call on head 1, got %d", len(fakes[1].calls))
	}
	if fakes[1].calls[0] != 10 {
		t.Fatalf("expected dispensed volume 10, got %v", fakes[1].calls[0])
	}

	sched, ok := m.Get(1)
	if !ok {
		t.Fatal("expected schedule to still be cached")
	}
	if sched.ExecutionCount != 1 {
		t.Fatalf("expected execution count 1, got %d", sched.ExecutionCount)
	}
	if sched.LastExecutionTime != 1735689600 {
		t.Fatalf("expected last execution time to be set, got %d", sched.LastExecutionTime)
	}
}

func TestCheckAndExecuteSkipsNotYetDue(t *testing.T) {
	m, _, fakes := newTestManager(t)
	if _, err := m.Set(Schedule{Head: 0, Enabled: true, DosesPerDay: 1, DailyTargetVolumeML: 10}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	m.CheckAndExecute(1735689600)
	if len(fakes[0].calls) != 1 {
		t.Fatalf("expected first tick to dispense, got %d calls", len(fakes[0].calls))
	}
	m.CheckAndExecute(1735689601)
	if len(fakes[0].calls) != 1 {
		t.Fatalf("expected second tick (1s later) not to dispense again, got %d calls", len(fakes[0].calls))
	}
}

func TestCheckAndExecuteLogsThroughSetLogManager(t *testing.T) {
	m, _, _ := newTestManager(t)
	logger := &fakeLogger{}
	m.SetLogManager(logger)
	if _, err := m.Set(Schedule{Head: 2, Enabled: true, DosesPerDay: 1, DailyTargetVolumeML: 5}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	m.CheckAndExecute(1735689600)
	if len(logger.logged) != 1 {
		t.Fatalf("expected one log entry, got %d", len(logger.logged))
	}
}

type fakeReservoir struct {
	consumed []float64
}

func (f *fakeReservoir) ConsumeOnly(head int, volumeMl float64) error {
	f.consumed = append(f.consumed, volumeMl)
	return nil
}

func TestCheckAndExecuteConsumesReservoirThroughSetReservoirManager(t *testing.T) {
	m, _, _ := newTestManager(t)
	res := &fakeReservoir{}
	m.SetReservoirManager(res)
	if _, err := m.Set(Schedule{Head: 0, Enabled: true, DosesPerDay: 1, DailyTargetVolumeML: 8}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	m.CheckAndExecute(1735689600)
	if len(res.consumed) != 1 || res.consumed[0] != 8 {
		t.Fatalf("expected reservoir consumption of 8 mL, got %v", res.consumed)
	}
}

func TestDeleteRemovesFromCache(t *testing.T) {
	m, _, _ := newTestManager(t)
	if _, err := m.Set(Schedule{Head: 3, Enabled: true, DosesPerDay: 1, DailyTargetVolumeML: 5}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.Delete(3); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := m.Get(3); ok {
		t.Fatal("expected schedule to be gone after Delete")
	}
}
