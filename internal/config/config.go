// Package config loads the boot-time YAML configuration file:
// gopkg.in/yaml.v2 over a plain struct, with defaults taken from
// Default() for anything the file does not set.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Config is the full set of boot-time settings read from disk before
// the composition root constructs anything.
type Config struct {
	HTTPAddr      string `yaml:"httpAddr"`
	BoltPath      string `yaml:"boltPath"`
	DevMode       bool   `yaml:"devMode"`
	GPIOChip      string `yaml:"gpioChip"`
	KeepAliveSecs int    `yaml:"keepAliveSeconds"`

	Motor MotorConfig `yaml:"motor"`
}

// MotorConfig lists the GPIO line offsets wired to each head's
// H-bridge plus the shared standby line.
type MotorConfig struct {
	StandbyLine int           `yaml:"standbyLine"`
	Heads       [4]HeadPins   `yaml:"heads"`
}

type HeadPins struct {
	In1 int `yaml:"in1"`
	In2 int `yaml:"in2"`
	PWM int `yaml:"pwm"`
}

// Default returns the configuration used when no file is present —
// devMode on, so the process runs end-to-end on a development machine
// with no GPIO hardware attached.
func Default() Config {
	return Config{
		HTTPAddr:      ":8080",
		BoltPath:      "squaredose.db",
		DevMode:       true,
		GPIOChip:      "/dev/gpiochip0",
		KeepAliveSecs: 10,
		Motor: MotorConfig{
			StandbyLine: 4,
			Heads: [4]HeadPins{
				{In1: 17, In2: 27, PWM: 22},
				{In1: 23, In2: 24, PWM: 25},
				{In1: 5, In2: 6, PWM: 12},
				{In1: 13, In2: 19, PWM: 16},
			},
		},
	}
}

// Load reads and parses the YAML file at path. An absent file yields
// Default(); otherwise the file is decoded over Default(), so fields the
// file omits keep their default values and fields it sets (including
// explicit zero values such as devMode: false) replace them.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}
