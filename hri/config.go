package hri

import (
	"log/slog"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultReferenceFrame is frame in which poses are expressed when nothing else is configured
const DefaultReferenceFrame = "map"

// Config configures tracked features and registries.
//
// Example:
//
//	reference_frame: base_link
//	pose_timeout: 10ms
//	queue_depth: 16
//	smoothing:
//	  enabled: true
//	  dt: 0.04
type Config struct {
	// ReferenceFrame is frame against which pose queries are expressed
	ReferenceFrame string `yaml:"reference_frame"`
	// PoseTimeout is time budget of a single pose query
	PoseTimeout time.Duration `yaml:"pose_timeout"`
	// QueueDepth is number of pending updates kept per topic
	QueueDepth int `yaml:"queue_depth"`
	// Smoothing configures Kalman smoothing of the region of interest
	Smoothing SmoothingConfig `yaml:"smoothing"`
}

// SmoothingConfig configures region of interest smoothing
type SmoothingConfig struct {
	Enabled bool `yaml:"enabled"`
	// DT is expected time between two region updates, seconds
	DT float64 `yaml:"dt"`
}

// DefaultConfig returns config with default values
func DefaultConfig() Config {
	return Config{
		ReferenceFrame: DefaultReferenceFrame,
		PoseTimeout:    DefaultPoseTimeout,
		QueueDepth:     DefaultQueueDepth,
		Smoothing: SmoothingConfig{
			Enabled: false,
			DT:      DefaultSmoothingDT,
		},
	}
}

// LoadConfig reads YAML config from file. Missing keys keep default values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "Can't read config %s", path)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, errors.Wrapf(err, "Can't load config %s", path)
	}
	return cfg, nil
}

// ParseConfig parses YAML config. Missing keys keep default values.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "Can't parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks config values
func (cfg Config) Validate() error {
	if cfg.ReferenceFrame == "" {
		return errors.New("reference_frame must not be empty")
	}
	if cfg.PoseTimeout <= 0 {
		return errors.Errorf("pose_timeout must be positive, got %s", cfg.PoseTimeout)
	}
	if cfg.QueueDepth <= 0 {
		return errors.Errorf("queue_depth must be positive, got %d", cfg.QueueDepth)
	}
	if cfg.Smoothing.Enabled && cfg.Smoothing.DT <= 0 {
		return errors.Errorf("smoothing.dt must be positive, got %v", cfg.Smoothing.DT)
	}
	return nil
}

// Options converts config into feature options
func (cfg Config) Options() []Option {
	opts := []Option{
		WithPoseTimeout(cfg.PoseTimeout),
		WithQueueDepth(cfg.QueueDepth),
	}
	if cfg.Smoothing.Enabled {
		opts = append(opts, WithSmoothing(cfg.Smoothing.DT))
	}
	return opts
}

// Option configures a tracked feature
type Option func(*options)

type options struct {
	logger      *slog.Logger
	now         func() time.Time
	queueDepth  int
	poseTimeout time.Duration
	smoothing   bool
	smoothingDT float64
	hook        UpdateHook
}

func defaultOptions() options {
	return options{
		logger:      slog.Default(),
		now:         time.Now,
		queueDepth:  DefaultQueueDepth,
		poseTimeout: DefaultPoseTimeout,
		smoothingDT: DefaultSmoothingDT,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock sets source of update instants
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithQueueDepth sets number of pending updates kept per topic
func WithQueueDepth(depth int) Option {
	return func(o *options) {
		if depth > 0 {
			o.queueDepth = depth
		}
	}
}

// WithPoseTimeout sets default time budget of pose queries
func WithPoseTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.poseTimeout = timeout
		}
	}
}

// WithSmoothing enables Kalman smoothing of region of interest; dt is expected
// time between two region updates in seconds
func WithSmoothing(dt float64) Option {
	return func(o *options) {
		o.smoothing = true
		if dt > 0 {
			o.smoothingDT = dt
		}
	}
}

// WithUpdateHook registers function called on the listener goroutine after
// every applied update.
//
// The hook must not destroy the feature it was called for: Destroy waits for
// the running hook to return, so calling it from the hook (through a captured
// *Face or *Body, or through Registry.Reconcile or Registry.Close of the
// registry owning the feature) hangs the listener forever.
func WithUpdateHook(hook UpdateHook) Option {
	return func(o *options) {
		o.hook = hook
	}
}
