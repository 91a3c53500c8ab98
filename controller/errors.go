package controller

import "fmt"

// ValidationError wraps out-of-range or malformed input rejected at the
// component boundary before any actuator or store activity happens.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// PersistenceError wraps a failed store open/read/write. In-memory state
// is never updated on a failed write — callers check this before
// mutating a cache.
type PersistenceError struct {
	Op      string
	Wrapped error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("persistence: %s: %v", e.Op, e.Wrapped) }
func (e *PersistenceError) Unwrap() error { return e.Wrapped }

func NewPersistenceError(op string, err error) error {
	return &PersistenceError{Op: op, Wrapped: err}
}

// ActuatorError wraps a motor start/stop failure. The affected head is
// always forced to stop before this is returned.
type ActuatorError struct {
	Message string
}

func (e *ActuatorError) Error() string { return e.Message }

func NewActuatorError(format string, args ...interface{}) error {
	return &ActuatorError{Message: fmt.Sprintf(format, args...)}
}

// BusyError is returned when a dispense is requested on a head that is
// already dispensing. No side effects occur.
type BusyError struct {
	Head int
}

func (e *BusyError) Error() string { return fmt.Sprintf("head %d is already dispensing", e.Head) }

// InterruptedError is returned when emergency_stop_all preempts an
// in-flight dispense. Estimated volume is always zero in this case.
type InterruptedError struct{}

func (e *InterruptedError) Error() string { return "dispense interrupted by emergency stop" }

// TimeNotSyncedError marks an operation that requires wall-clock time
// that has not yet been synchronized (see Clock.WallSynced).
type TimeNotSyncedError struct{}

func (e *TimeNotSyncedError) Error() string { return "wall clock not synchronized" }

// WiFiTransientError wraps a failed STA association attempt. It is
// always recovered by the supervisor's own state machine — callers
// should treat it as a status change, not a fatal condition.
type WiFiTransientError struct {
	Message string
}

func (e *WiFiTransientError) Error() string { return e.Message }

func NewWiFiTransientError(format string, args ...interface{}) error {
	return &WiFiTransientError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError marks an absent record (schedule, calibration) at a
// read — distinct from PersistenceError, which marks a failed I/O.
type NotFoundError struct {
	Namespace, Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s/%s: not found", e.Namespace, e.Key)
}

// CalibrationRejectedError marks a well-formed calibration measurement
// that produced a computed rate outside the acceptable range — distinct
// from ValidationError, which marks malformed input (e.g. a non-positive
// runtime) rejected before any rate is even computed.
type CalibrationRejectedError struct {
	Message string
}

func (e *CalibrationRejectedError) Error() string { return e.Message }

func NewCalibrationRejectedError(format string, args ...interface{}) error {
	return &CalibrationRejectedError{Message: fmt.Sprintf(format, args...)}
}
