// Package dosinghead implements per-head dispensing and calibration.
package dosinghead

import (
	"fmt"
	"time"

	"github.com/squaredose/doser/controller"
	"github.com/squaredose/doser/controller/modules/motor"
)

const (
	MinVolumeML         = 0.1
	MaxVolumeML         = 1000.0
	MinRuntimeMillis    = 100
	MaxRuntimeMillis    = 300000
	CalibrationVolumeML = 4.0
	MinCalRateMLPerSec  = 0.0 // exclusive lower bound, enforced below
	MaxCalRateMLPerSec  = 100.0
	DefaultMLPerSecond  = 1.0
)

// calibration is the persisted record for one head, namespaced
// "dosingHead<index>" exactly like the original's NVS layout.
type calibration struct {
	MLPerSecond         float64 `json:"mlPerSecond"`
	Calibrated          bool    `json:"calibrated"`
	LastCalibrationTime int64   `json:"lastCalibrationTime"`
}

// DoseResult reports what a dispense actually delivered.
type DoseResult struct {
	RequestedVolumeML float64
	EstimatedVolumeML float64
	RuntimeMillis     int64
	Interrupted       bool
}

// Head controls dispensing for a single reagent line. Every
// goroutine calling dispense/calibrate for this head serializes on mu
// so heads never block each other.
type Head struct {
	index     int
	namespace string
	store     controller.Store
	clock     controller.Clock
	actuator  motor.Actuator

	mu          chan struct{} // 1-buffered: acts as a non-reentrant mutex with a try-lock
	cancel      chan struct{}
	dispensing  bool
	cal         calibration
}

// New constructs a Head and loads any previously persisted
// calibration. If none exists, it seeds DefaultMLPerSecond and
// Calibrated=false, matching DosingHead::begin's first-boot default.
func New(index int, store controller.Store, clock controller.Clock, actuator motor.Actuator) (*Head, error) {
	h := &Head{
		index:     index,
		namespace: fmt.Sprintf("dosingHead%d", index),
		store:     store,
		clock:     clock,
		actuator:  actuator,
		mu:        make(chan struct{}, 1),
	}
	h.mu <- struct{}{}

	if err := store.CreateBucket(h.namespace); err != nil {
		return nil, controller.NewPersistenceError("create bucket", err)
	}
	raw, ok, err := store.GetBytes(h.namespace, "calibration")
	if err != nil {
		return nil, controller.NewPersistenceError("load calibration", err)
	}
	if ok {
		if err := decodeCalibration(raw, &h.cal); err != nil {
			return nil, controller.NewPersistenceError("decode calibration", err)
		}
	} else {
		h.cal = calibration{MLPerSecond: DefaultMLPerSecond, Calibrated: false}
	}
	return h, nil
}

func (h *Head) lock() {
	<-h.mu
}

func (h *Head) unlock() {
	h.mu <- struct{}{}
}

// tryLock reports whether the head's mutex was free and, if so,
// claims it — used to turn an already-dispensing head into a
// BusyError instead of queuing behind it.
func (h *Head) tryLock() bool {
	select {
	case <-h.mu:
		return true
	default:
		return false
	}
}

// Dispense runs the pump forward for volumeMl worth of runtime at the
// head's calibrated rate. The blocking wait uses the interruptible
// Clock.Sleep rather than a bare sleep, so StopDispensing (called by
// the emergency-stop path) can cut a dose short.
func (h *Head) Dispense(volumeMl float64) (DoseResult, error) {
	if volumeMl < MinVolumeML || volumeMl > MaxVolumeML {
		return DoseResult{}, controller.NewValidationError(
			"volume %.3f out of range [%.1f, %.1f]", volumeMl, MinVolumeML, MaxVolumeML)
	}

	if !h.tryLock() {
		return DoseResult{}, &controller.BusyError{Head: h.index}
	}
	if h.dispensing {
		h.unlock()
		return DoseResult{}, &controller.BusyError{Head: h.index}
	}
	rate := h.cal.MLPerSecond

	runtimeMs := int64(volumeMl / rate * 1000.0)
	if runtimeMs < MinRuntimeMillis || runtimeMs > MaxRuntimeMillis {
		h.unlock()
		return DoseResult{}, controller.NewValidationError(
			"runtime %dms for volume %.3f at rate %.3f out of range [%d, %d]",
			runtimeMs, volumeMl, rate, MinRuntimeMillis, MaxRuntimeMillis)
	}

	h.dispensing = true
	h.cancel = make(chan struct{})
	cancel := h.cancel
	h.unlock()

	result, err := h.runForDuration(runtimeMs, cancel)

	h.lock()
	h.dispensing = false
	h.cancel = nil
	h.unlock()

	if err != nil {
		return DoseResult{}, err
	}
	result.RequestedVolumeML = volumeMl
	result.EstimatedVolumeML = rate * float64(result.RuntimeMillis) / 1000.0
	return result, nil
}

// DispenseML is Dispense's result flattened to the single value
// schedule.Manager needs, so that package can depend on a narrow
// interface instead of this package's DoseResult type.
func (h *Head) DispenseML(volumeMl float64) (float64, error) {
	result, err := h.Dispense(volumeMl)
	if err != nil {
		return 0, err
	}
	return result.EstimatedVolumeML, nil
}

// runForDuration drives the motor forward for ms milliseconds (or
// until cancel closes), then always stops it — mirrors
// DosingHead::dispense's start/delay/stop sequence.
func (h *Head) runForDuration(ms int64, cancel chan struct{}) (DoseResult, error) {
	if err := h.actuator.Start(h.index, motor.Forward); err != nil {
		_ = h.actuator.Stop(h.index)
		return DoseResult{}, err
	}

	start := h.clock.MonotonicMillis()
	completed := h.clock.Sleep(time.Duration(ms)*time.Millisecond, cancel)
	elapsed := h.clock.MonotonicMillis() - start

	if err := h.actuator.Stop(h.index); err != nil {
		return DoseResult{}, err
	}

	if !completed {
		return DoseResult{RuntimeMillis: elapsed, Interrupted: true}, &controller.InterruptedError{}
	}
	return DoseResult{RuntimeMillis: elapsed}, nil
}

// StopDispensing cancels an in-flight dispense, if one is running on
// this head. Called by the Wi-Fi-independent emergency-stop path.
func (h *Head) StopDispensing() {
	h.lock()
	if h.dispensing && h.cancel != nil {
		close(h.cancel)
	}
	h.unlock()
}

// IsDispensing reports whether a dose is currently in flight.
func (h *Head) IsDispensing() bool {
	h.lock()
	defer h.unlock()
	return h.dispensing
}

// Calibrate records the actual measured volume from the most recent
// CalibrationVolumeML dose and recomputes MLPerSecond, the same
// acceptance test as DosingHead::calibrate: the new rate must land in
// (0, MaxCalRateMLPerSec].
func (h *Head) Calibrate(actualVolumeMl float64, runtimeMs int64) (bool, error) {
	if runtimeMs <= 0 {
		return false, controller.NewValidationError("runtime must be positive, got %dms", runtimeMs)
	}
	newRate := actualVolumeMl / (float64(runtimeMs) / 1000.0)
	if newRate <= MinCalRateMLPerSec || newRate > MaxCalRateMLPerSec {
		return false, controller.NewCalibrationRejectedError(
			"computed rate %.4f mL/s out of range (0, %.1f]", newRate, MaxCalRateMLPerSec)
	}

	h.lock()
	h.cal.MLPerSecond = newRate
	h.cal.Calibrated = true
	h.cal.LastCalibrationTime = h.clock.MonotonicMillis()
	cal := h.cal
	h.unlock()

	if err := h.persist(cal); err != nil {
		return false, err
	}
	return true, nil
}

// CalibrationRunDuration returns the runtime, in milliseconds, the
// caller should run the motor for in order to dispense
// CalibrationVolumeML at the head's current rate — callers dispatch
// this through runForDuration directly so the operator can measure
// the real output before calling Calibrate.
func (h *Head) CalibrationRunDuration() int64 {
	h.lock()
	rate := h.cal.MLPerSecond
	h.unlock()
	ms := int64(CalibrationVolumeML / rate * 1000.0)
	if ms < MinRuntimeMillis {
		ms = MinRuntimeMillis
	}
	if ms > MaxRuntimeMillis {
		ms = MaxRuntimeMillis
	}
	return ms
}

// RunCalibrationDose drives the motor for the calibration duration and
// returns the runtime actually achieved, for the caller to measure
// real dispensed volume against before calling Calibrate.
func (h *Head) RunCalibrationDose() (DoseResult, error) {
	if !h.tryLock() {
		return DoseResult{}, &controller.BusyError{Head: h.index}
	}
	if h.dispensing {
		h.unlock()
		return DoseResult{}, &controller.BusyError{Head: h.index}
	}
	h.dispensing = true
	h.cancel = make(chan struct{})
	cancel := h.cancel
	h.unlock()

	ms := h.CalibrationRunDuration()
	result, err := h.runForDuration(ms, cancel)

	h.lock()
	h.dispensing = false
	h.cancel = nil
	h.unlock()
	return result, err
}

// ResetCalibration reverts the head to the factory default rate —
// DosingHead::resetCalibration.
func (h *Head) ResetCalibration() error {
	h.lock()
	h.cal = calibration{MLPerSecond: DefaultMLPerSecond, Calibrated: false}
	cal := h.cal
	h.unlock()
	return h.persist(cal)
}

// CalibrationData is the read-only snapshot exposed to the API layer.
type CalibrationData struct {
	Head                int     `json:"head"`
	MLPerSecond         float64 `json:"mlPerSecond"`
	Calibrated          bool    `json:"calibrated"`
	LastCalibrationTime int64   `json:"lastCalibrationTime"`
}

func (h *Head) GetCalibrationData() CalibrationData {
	h.lock()
	defer h.unlock()
	return CalibrationData{
		Head:                h.index,
		MLPerSecond:         h.cal.MLPerSecond,
		Calibrated:          h.cal.Calibrated,
		LastCalibrationTime: h.cal.LastCalibrationTime,
	}
}

func (h *Head) persist(cal calibration) error {
	raw, err := encodeCalibration(cal)
	if err != nil {
		return controller.NewPersistenceError("encode calibration", err)
	}
	if err := h.store.PutBytes(h.namespace, "calibration", raw); err != nil {
		return controller.NewPersistenceError("save calibration", err)
	}
	return nil
}
