// Package config loads the YAML configuration of an evaluation runtime.
package config

import (
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = eris.New("invalid config")

// Logging configures the global logger.
type Logging struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

// Evaluation configures the entity manager and task dispatch.
type Evaluation struct {
	Parallel     bool `yaml:"parallel"`
	Workers      int  `yaml:"workers"` // 0 means GOMAXPROCS
	ChunkSize    int  `yaml:"chunk_size"`
	EnsurePanics bool `yaml:"ensure_panics"`
}

// PreAnimated configures pre-animated state capture.
type PreAnimated struct {
	GlobalCapture bool `yaml:"global_capture"`
}

// Interrogation configures interrogation linkers.
type Interrogation struct {
	ChannelCapacity int `yaml:"channel_capacity"`
}

// Blend configures the blender.
type Blend struct {
	CompactInterval int `yaml:"compact_interval"`
}

// Config is the root configuration document.
type Config struct {
	Logging       Logging       `yaml:"logging"`
	Evaluation    Evaluation    `yaml:"evaluation"`
	PreAnimated   PreAnimated   `yaml:"preanimated"`
	Interrogation Interrogation `yaml:"interrogation"`
	Blend         Blend         `yaml:"blend"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging:       Logging{Level: "info", Console: true},
		Evaluation:    Evaluation{Parallel: true, ChunkSize: 128},
		Interrogation: Interrogation{ChannelCapacity: 1024},
		Blend:         Blend{CompactInterval: 600},
	}
}

// Load reads and validates a configuration file. Missing keys keep their
// default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "reading config %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "loading config %s", path)
	}
	return cfg, nil
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, eris.Wrap(err, "parsing config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every value is in range.
func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level)); err != nil {
		return eris.Wrapf(ErrInvalid, "logging.level %q", c.Logging.Level)
	}
	if c.Evaluation.Workers < 0 {
		return eris.Wrapf(ErrInvalid, "evaluation.workers must not be negative, got %d", c.Evaluation.Workers)
	}
	if c.Evaluation.ChunkSize <= 0 {
		return eris.Wrapf(ErrInvalid, "evaluation.chunk_size must be positive, got %d", c.Evaluation.ChunkSize)
	}
	if c.Interrogation.ChannelCapacity <= 0 || c.Interrogation.ChannelCapacity > 0xFFFF {
		return eris.Wrapf(ErrInvalid, "interrogation.channel_capacity must be in [1, 65535], got %d", c.Interrogation.ChannelCapacity)
	}
	if c.Blend.CompactInterval < 0 {
		return eris.Wrapf(ErrInvalid, "blend.compact_interval must not be negative, got %d", c.Blend.CompactInterval)
	}
	return nil
}

// NumWorkers returns the number of workers parallel dispatch may use.
func (c *Config) NumWorkers() int {
	switch {
	case !c.Evaluation.Parallel:
		return 1
	case c.Evaluation.Workers > 0:
		return c.Evaluation.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// ApplyLogging sets the global log level and, when console output is
// enabled, routes the global logger through a console writer on w.
func (c *Config) ApplyLogging(w io.Writer) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.Logging.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"})
	} else {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	}
}
