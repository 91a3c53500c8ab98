// Package motor drives the four H-bridge motors that pump reagent for
// each dosing head, plus the single shared standby line that gates all
// of them.
package motor

import (
	"fmt"
	"sync"

	"github.com/squaredose/doser/controller"
)

// Direction selects the H-bridge truth table entry for a single motor.
type Direction int

const (
	Stop Direction = iota
	Forward
	Reverse
	Brake
)

const HeadCount = 4

// Actuator is the motor control surface DosingHead depends on. The
// gpiocdev-backed implementation and the devMode simulator both
// satisfy it so DosingHead never knows which one it's holding.
type Actuator interface {
	Start(head int, dir Direction) error
	Stop(head int) error
	Brake(head int) error
	EmergencyStopAll() error
}

// pins is one H-bridge's three GPIO offsets plus the line state the
// truth table below resolves a Direction into.
type pins struct {
	in1, in2, pwm int
}

// GPIOActuator drives real hardware through go-gpiocdev. Line requests
// are opened once at construction and held for the controller's
// lifetime, matching MotorDriver::begin's eager pin setup.
type GPIOActuator struct {
	mu       sync.Mutex
	chip     string
	heads    [HeadCount]pins
	standby  int
	lines    lineSet
	standing bool
}

// lineSet abstracts the go-gpiocdev request handle so tests can stub
// it out without touching real hardware.
type lineSet interface {
	SetValue(offset int, value int) error
	Close() error
}

func NewGPIOActuator(chip string, heads [HeadCount]pins, standby int, lines lineSet) *GPIOActuator {
	return &GPIOActuator{chip: chip, heads: heads, standby: standby, lines: lines}
}

func (g *GPIOActuator) ensureStandby() error {
	if g.standing {
		return nil
	}
	if err := g.lines.SetValue(g.standby, 1); err != nil {
		return controller.NewActuatorError("standby enable: %v", err)
	}
	g.standing = true
	return nil
}

// setMotorPins reproduces the driver's IN1/IN2/PWM truth table: FORWARD
// drives in1 high in2 low, REVERSE the opposite, BRAKE drives in1, in2,
// and pwm all high, STOP drives all three low. PWM is otherwise left at
// full duty; speed is never varied per dose.
func (g *GPIOActuator) setMotorPins(p pins, dir Direction) error {
	var in1, in2, pwm int
	switch dir {
	case Forward:
		in1, in2, pwm = 1, 0, 1
	case Reverse:
		in1, in2, pwm = 0, 1, 1
	case Brake:
		in1, in2, pwm = 1, 1, 1
	case Stop:
		in1, in2, pwm = 0, 0, 0
	}
	if err := g.lines.SetValue(p.in1, in1); err != nil {
		return err
	}
	if err := g.lines.SetValue(p.in2, in2); err != nil {
		return err
	}
	return g.lines.SetValue(p.pwm, pwm)
}

func (g *GPIOActuator) Start(head int, dir Direction) error {
	if head < 0 || head >= HeadCount {
		return controller.NewActuatorError("head %d out of range", head)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.ensureStandby(); err != nil {
		return err
	}
	if err := g.setMotorPins(g.heads[head], dir); err != nil {
		return controller.NewActuatorError("head %d start: %v", head, err)
	}
	return nil
}

func (g *GPIOActuator) Stop(head int) error {
	if head < 0 || head >= HeadCount {
		return controller.NewActuatorError("head %d out of range", head)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.setMotorPins(g.heads[head], Stop); err != nil {
		return controller.NewActuatorError("head %d stop: %v", head, err)
	}
	return nil
}

func (g *GPIOActuator) Brake(head int) error {
	if head < 0 || head >= HeadCount {
		return controller.NewActuatorError("head %d out of range", head)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.setMotorPins(g.heads[head], Brake); err != nil {
		return controller.NewActuatorError("head %d brake: %v", head, err)
	}
	return nil
}

// EmergencyStopAll brakes every head and drops standby, exactly the
// sequence MotorDriver::emergencyStopAll uses so no motor coasts.
func (g *GPIOActuator) EmergencyStopAll() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var firstErr error
	for head, p := range g.heads {
		if err := g.setMotorPins(p, Brake); err != nil && firstErr == nil {
			firstErr = controller.NewActuatorError("head %d emergency brake: %v", head, err)
		}
	}
	if err := g.lines.SetValue(g.standby, 0); err != nil && firstErr == nil {
		firstErr = controller.NewActuatorError("standby disable: %v", err)
	}
	g.standing = false
	return firstErr
}

// SimActuator is the devMode fallback used when no GPIO chip is
// present (development machines, CI). It tracks running state only,
// with no real timing or current draw.
type SimActuator struct {
	mu      sync.Mutex
	running [HeadCount]Direction
}

func NewSimActuator() *SimActuator {
	return &SimActuator{}
}

func (s *SimActuator) Start(head int, dir Direction) error {
	if head < 0 || head >= HeadCount {
		return fmt.Errorf("head %d out of range", head)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[head] = dir
	return nil
}

func (s *SimActuator) Stop(head int) error {
	if head < 0 || head >= HeadCount {
		return fmt.Errorf("head %d out of range", head)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[head] = Stop
	return nil
}

func (s *SimActuator) Brake(head int) error {
	if head < 0 || head >= HeadCount {
		return fmt.Errorf("head %d out of range", head)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[head] = Brake
	return nil
}

func (s *SimActuator) EmergencyStopAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.running {
		s.running[i] = Brake
	}
	return nil
}

// IsRunning reports whether head is currently driven Forward or
// Reverse — used only by tests.
func (s *SimActuator) IsRunning(head int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.running[head]
	return d == Forward || d == Reverse
}

// PinSpec is the exported shape of a single head's three GPIO offsets,
// used by the composition root to describe board wiring without
// reaching into this package's internal pins type.
type PinSpec struct {
	In1, In2, PWM int
}

// NewGPIOActuatorFromSpecs is the composition-root-facing constructor:
// it takes plain PinSpec values instead of the internal pins type.
func NewGPIOActuatorFromSpecs(chip string, specs [HeadCount]PinSpec, standby int, lines lineSet) *GPIOActuator {
	var heads [HeadCount]pins
	for i, s := range specs {
		heads[i] = pins{in1: s.In1, in2: s.In2, pwm: s.PWM}
	}
	return NewGPIOActuator(chip, heads, standby, lines)
}
