// Package config defines the daemon configuration and its gesture tables.
//
// Conventions:
// - New(ctx) builds a Config with defaults; Load layers a YAML file and env on top.
// - Gesture tables are validated and compiled once, by GestureSet.
// - External errors are wrapped with this package's sentinels.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hypeedev/gest/pkg/logger"
)

// Window tracker backends.
const (
	TrackerWlroots = "wlroots"
	TrackerNone    = "none"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// MetricsAddr enables the /healthz and /stats listener when set, e.g. "127.0.0.1:9410".
	MetricsAddr string `koanf:"metrics_addr"`

	// QueueSize bounds the dispatch queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of command workers.
	WorkerCount int `koanf:"worker_count"`

	// Device is the evdev node to read; empty selects the first touchpad.
	Device string `koanf:"device"`

	// WindowTracker is "wlroots" or "none".
	WindowTracker string `koanf:"window_tracker"`

	// Shell runs gesture commands as `<shell> -c <command>`.
	Shell string `koanf:"shell"`

	// Watch reloads gesture tables when a configuration file changes.
	Watch bool `koanf:"watch"`

	Options             OptionsConfig       `koanf:"options"`
	Import              []string            `koanf:"import"`
	Gestures            []GestureConfig     `koanf:"gestures"`
	ApplicationGestures []ApplicationConfig `koanf:"application_gestures"`

	// files lists every file the configuration was read from, root first.
	files []string
}

// OptionsConfig holds recognition settings.
type OptionsConfig struct {
	MoveThreshold float64       `koanf:"move_threshold"`
	Edge          EdgeConfig    `koanf:"edge"`
	RunAllMatches bool          `koanf:"run_all_matches"`
	StepTimeout   time.Duration `koanf:"step_timeout"`
}

// EdgeConfig holds edge classification settings.
type EdgeConfig struct {
	Threshold   float64 `koanf:"threshold"`
	Sensitivity float64 `koanf:"sensitivity"`
}

// StepConfig is one sequence step as written in YAML.
type StepConfig struct {
	Fingers  int     `koanf:"fingers"`
	Action   string  `koanf:"action"`
	Edge     string  `koanf:"edge"`
	Distance float64 `koanf:"distance"`
}

// GestureConfig is a gesture as written in YAML.
type GestureConfig struct {
	Name       string       `koanf:"name"`
	Sequence   []StepConfig `koanf:"sequence"`
	RepeatMode string       `koanf:"repeat_mode"`
	Command    string       `koanf:"command"`
}

// ApplicationConfig scopes gestures to windows. Exactly one of Match, Class
// or Title is set.
type ApplicationConfig struct {
	Match    string          `koanf:"match"`
	Class    string          `koanf:"class"`
	Title    string          `koanf:"title"`
	Gestures []GestureConfig `koanf:"gestures"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:      "info",
		QueueSize:     64,
		WorkerCount:   2,
		WindowTracker: TrackerWlroots,
		Shell:         "/bin/sh",
		Watch:         true,
		Options: OptionsConfig{
			MoveThreshold: 0.15,
			Edge: EdgeConfig{
				Threshold:   0.1,
				Sensitivity: 1,
			},
		},
	}
}

// Files returns the root file followed by every imported file.
func (c *Config) Files() []string {
	return append([]string(nil), c.files...)
}

// Validate checks the daemon settings and recognition options. Gesture
// tables are validated by GestureSet.
func (c *Config) Validate() error {
	if err := logger.ValidateLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("%w: queue_size must be positive, got %d", ErrInvalidConfig, c.QueueSize)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("%w: worker_count must be positive, got %d", ErrInvalidConfig, c.WorkerCount)
	}
	switch c.WindowTracker {
	case TrackerWlroots, TrackerNone:
	default:
		return fmt.Errorf("%w: unknown window_tracker %q", ErrInvalidConfig, c.WindowTracker)
	}
	if strings.TrimSpace(c.Shell) == "" {
		return fmt.Errorf("%w: shell must not be empty", ErrInvalidConfig)
	}

	o := c.Options
	if o.MoveThreshold <= 0 || o.MoveThreshold > 1 {
		return fmt.Errorf("%w: options.move_threshold must be in (0,1], got %g", ErrInvalidConfig, o.MoveThreshold)
	}
	if o.Edge.Threshold < 0 || o.Edge.Threshold >= 0.5 {
		return fmt.Errorf("%w: options.edge.threshold must be in [0,0.5), got %g", ErrInvalidConfig, o.Edge.Threshold)
	}
	if o.Edge.Sensitivity <= 0 {
		return fmt.Errorf("%w: options.edge.sensitivity must be positive, got %g", ErrInvalidConfig, o.Edge.Sensitivity)
	}
	if o.StepTimeout < 0 {
		return fmt.Errorf("%w: options.step_timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

// DefaultPath returns GEST_CONFIG, else $XDG_CONFIG_HOME/gest/config.yaml,
// else ~/.config/gest/config.yaml. It returns "" when no home is known.
func DefaultPath() string {
	if p := os.Getenv("GEST_CONFIG"); p != "" {
		return p
	}
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "gest", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gest", "config.yaml")
}
