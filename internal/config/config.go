// Package config loads the host machine and kernel settings.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete host configuration.
type Config struct {
	Cores    int `yaml:"cores"`
	MaxTasks int `yaml:"maxTasks"`
	Quantum  int `yaml:"quantum"`
	// Hz is the timer rate programmed at boot.
	Hz int `yaml:"hz"`
	// Frames is the size of the simulated physical memory, in pages.
	Frames int `yaml:"frames"`

	Program Program `yaml:"program"`
	Display Display `yaml:"display"`
	Run     Run     `yaml:"run"`
	Trace   Trace   `yaml:"trace"`
}

// Program drives the emulated user program.
type Program struct {
	// Children is how many workers the boot task forks.
	Children int `yaml:"children"`
	// Lifetime is how many ticks of work a worker does before it exits.
	Lifetime int `yaml:"lifetime"`
	// SleepEvery is the number of work ticks between a worker's sleeps.
	SleepEvery int `yaml:"sleepEvery"`
	SleepTicks int `yaml:"sleepTicks"`
}

type Display struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	// Refresh is the number of ticks between dashboard redraws.
	Refresh int `yaml:"refresh"`
}

type Run struct {
	Headless bool `yaml:"headless"`
	// Ticks stops a headless run after that many ticks; 0 runs forever.
	Ticks int `yaml:"ticks"`
}

type Trace struct {
	Enabled bool   `yaml:"enabled"`
	Output  string `yaml:"output"`
}

var ErrInvalid = errors.New("invalid configuration")

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Cores:    2,
		MaxTasks: 10,
		Quantum:  100,
		Hz:       100,
		Frames:   2048,
		Program: Program{
			Children:   4,
			Lifetime:   500,
			SleepEvery: 150,
			SleepTicks: 50,
		},
		Display: Display{Width: 320, Height: 240, Refresh: 10},
	}
}

// Load reads path over the defaults. A missing path yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the kernel cannot repair itself.
func (c Config) Validate() error {
	switch {
	case c.Cores < 1 || c.Cores > 8:
		return fmt.Errorf("config: cores %d not in 1..8: %w", c.Cores, ErrInvalid)
	case c.MaxTasks < c.Cores:
		return fmt.Errorf("config: maxTasks %d below cores %d: %w", c.MaxTasks, c.Cores, ErrInvalid)
	case c.Quantum < 1:
		return fmt.Errorf("config: quantum %d: %w", c.Quantum, ErrInvalid)
	case c.Hz < 19 || c.Hz > 1193180:
		return fmt.Errorf("config: hz %d not in 19..1193180: %w", c.Hz, ErrInvalid)
	case c.Frames < 0:
		return fmt.Errorf("config: frames %d: %w", c.Frames, ErrInvalid)
	case c.Program.Children < 0 || c.Program.Lifetime < 0 || c.Program.SleepEvery < 0 || c.Program.SleepTicks < 0:
		return fmt.Errorf("config: negative program setting: %w", ErrInvalid)
	case c.Display.Width < 0 || c.Display.Height < 0 || c.Display.Refresh < 0:
		return fmt.Errorf("config: negative display setting: %w", ErrInvalid)
	case c.Run.Ticks < 0:
		return fmt.Errorf("config: run ticks %d: %w", c.Run.Ticks, ErrInvalid)
	}
	return nil
}
