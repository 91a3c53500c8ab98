package dosinghead

import (
	"testing"

	"github.com/squaredose/doser/controller"
	"github.com/squaredose/doser/controller/modules/motor"
)

func newTestHead(t *testing.T) (*Head, *motor.SimActuator, *controller.FakeClock) {
	t.Helper()
	store := controller.NewMemStore()
	clock := controller.NewFakeClock(1735689600)
	act := motor.NewSimActuator()
	h, err := New(0, store, clock, act)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h, act, clock
}

func TestDefaultCalibration(t *testing.T) {
	h, _, _ := newTestHead(t)
	cal := h.GetCalibrationData()
	if cal.Calibrated {
		t.Fatal("fresh head should not be calibrated")
	}
	if cal.MLPerSecond != DefaultMLPerSecond {
		t.Fatalf("expected default rate %v, got %v", DefaultMLPerSecond, cal.MLPerSecond)
	}
}

func TestDispenseRejectsOutOfRangeVolume(t *testing.T) {
	h, _, _ := newTestHead(t)
	if _, err := h.Dispense(0.01); err == nil {
		t.Fatal("expected validation error for volume below minimum")
	}
	if _, err := h.Dispense(5000); err == nil {
		t.Fatal("expected validation error for volume above maximum")
	}
}

func TestDispenseComputesEstimatedVolume(t *testing.T) {
	h, act, _ := newTestHead(t)
	result, err := h.Dispense(1.0)
	if err != nil {
		t.Fatalf("Dispense: %v", err)
	}
	if result.Interrupted {
		t.Fatal("dispense should not be interrupted")
	}
	if act.IsRunning(0) {
		t.Fatal("motor should be stopped after dispense completes")
	}
	if result.EstimatedVolumeML <= 0 {
		t.Fatalf("expected positive estimated volume, got %v", result.EstimatedVolumeML)
	}
}

func TestDispenseRejectsRuntimeBelowMinimum(t *testing.T) {
	h, _, _ := newTestHead(t)
	if _, err := h.Calibrate(4.0, 1000); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	// At 4 mL/s, a 0.1 mL dose needs 25ms — below MinRuntimeMillis — and
	// must be rejected outright rather than stretched to 100ms.
	if _, err := h.Dispense(MinVolumeML); err == nil {
		t.Fatal("expected rejection of a dose whose computed runtime is below the minimum")
	}
	if h.IsDispensing() {
		t.Fatal("head should not be left in a dispensing state after rejection")
	}
}

func TestDispenseRejectsRuntimeAboveMaximum(t *testing.T) {
	h, _, _ := newTestHead(t)
	if _, err := h.Calibrate(0.05, 4000); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	// At 0.0125 mL/s, a 5 mL dose needs 400000ms — above MaxRuntimeMillis
	// — and must be rejected rather than truncated.
	if _, err := h.Dispense(5.0); err == nil {
		t.Fatal("expected rejection of a dose whose computed runtime is above the maximum")
	}
}

func TestDispenseBusyWhileRunning(t *testing.T) {
	h, _, _ := newTestHead(t)
	if !h.tryLock() {
		t.Fatal("expected to acquire head lock")
	}
	defer h.unlock()

	if _, err := h.Dispense(1.0); err == nil {
		t.Fatal("expected BusyError while head is locked")
	} else if _, ok := err.(*controller.BusyError); !ok {
		t.Fatalf("expected *controller.BusyError, got %T", err)
	}
}

func TestRunForDurationReportsCancelAsInterrupted(t *testing.T) {
	h, _, _ := newTestHead(t)
	// FakeClock.Sleep never blocks, so simulate an interrupted run by
	// closing cancel before calling runForDuration directly.
	cancel := make(chan struct{})
	close(cancel)
	result, err := h.runForDuration(1000, cancel)
	if err == nil {
		t.Fatal("expected InterruptedError")
	}
	if !result.Interrupted {
		t.Fatal("expected result.Interrupted to be true")
	}
	if _, ok := err.(*controller.InterruptedError); !ok {
		t.Fatalf("expected *controller.InterruptedError, got %T", err)
	}
}

func TestCalibrateAcceptsValidRate(t *testing.T) {
	h, _, clock := newTestHead(t)
	ok, err := h.Calibrate(4.0, 4000)
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if !ok {
		t.Fatal("expected calibration to be accepted")
	}
	cal := h.GetCalibrationData()
	if !cal.Calibrated {
		t.Fatal("head should be marked calibrated")
	}
	if cal.MLPerSecond != 1.0 {
		t.Fatalf("expected 1.0 mL/s, got %v", cal.MLPerSecond)
	}
	if cal.LastCalibrationTime != clock.MonoMs {
		t.Fatalf("expected last calibration time to be monotonic millis, got %v", cal.LastCalibrationTime)
	}
}

func TestCalibrateRejectsOutOfRangeRate(t *testing.T) {
	h, _, _ := newTestHead(t)
	if _, err := h.Calibrate(1000, 1000); err == nil {
		t.Fatal("expected rejection of an implausibly high rate")
	}
	if _, err := h.Calibrate(0, 1000); err == nil {
		t.Fatal("expected rejection of a zero rate")
	}
}

func TestResetCalibrationRestoresDefault(t *testing.T) {
	h, _, _ := newTestHead(t)
	if _, err := h.Calibrate(8.0, 4000); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if err := h.ResetCalibration(); err != nil {
		t.Fatalf("ResetCalibration: %v", err)
	}
	cal := h.GetCalibrationData()
	if cal.Calibrated || cal.MLPerSecond != DefaultMLPerSecond {
		t.Fatalf("expected factory default after reset, got %+v", cal)
	}
}

func TestCalibrationPersistsAcrossReload(t *testing.T) {
	store := controller.NewMemStore()
	clock := controller.NewFakeClock(1735689600)
	act := motor.NewSimActuator()

	h1, err := New(2, store, clock, act)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := h1.Calibrate(2.0, 2000); err != nil {
		t.Fatalf("Calibrate: %v", err)
	}

	h2, err := New(2, store, clock, act)
	if err != nil {
		t.Fatalf("New (reload): %v", err)
	}
	cal := h2.GetCalibrationData()
	if cal.MLPerSecond != 1.0 {
		t.Fatalf("expected reloaded rate 1.0, got %v", cal.MLPerSecond)
	}
}
