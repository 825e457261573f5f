// Package config loads the session store configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sessionstore/internal/store"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full configuration file.
type Config struct {
	Database Database `yaml:"database"`
	Backend  Backend  `yaml:"backend"`
	Session  Session  `yaml:"session"`
}

// Database configures the SQLite file and connection pool.
type Database struct {
	Path         string        `yaml:"path"`
	Table        string        `yaml:"table"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	BusyTimeout  time.Duration `yaml:"busy_timeout"`
}

// Backend selects the blob path.
type Backend struct {
	// Streaming selects incremental blob I/O instead of inline binding.
	Streaming bool `yaml:"streaming"`
}

// Session configures lifecycle behavior.
type Session struct {
	// Timeout is the lifetime granted on every write.
	Timeout time.Duration `yaml:"timeout"`

	// Exclusive makes every read take the write lock.
	Exclusive bool `yaml:"exclusive"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Database: Database{
			Path:         "sessions.db",
			Table:        store.DefaultTable,
			MaxOpenConns: store.DefaultMaxOpenConns,
			BusyTimeout:  store.DefaultBusyTimeout,
		},
		Session: Session{
			Timeout: store.DefaultTimeout,
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result. Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-specified config path
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalid)
	}
	if !store.ValidTableName(c.Database.Table) {
		return fmt.Errorf("%w: database.table %q is not a plain identifier", ErrInvalid, c.Database.Table)
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("%w: database.max_open_conns must be at least 1", ErrInvalid)
	}
	if c.Database.BusyTimeout < 0 {
		return fmt.Errorf("%w: database.busy_timeout must not be negative", ErrInvalid)
	}
	if c.Session.Timeout <= 0 {
		return fmt.Errorf("%w: session.timeout must be positive", ErrInvalid)
	}
	return nil
}

// StoreOptions maps the configuration onto store.Options.
func (c Config) StoreOptions() store.Options {
	return store.Options{
		Path:         c.Database.Path,
		Table:        c.Database.Table,
		Streaming:    c.Backend.Streaming,
		Timeout:      c.Session.Timeout,
		BusyTimeout:  c.Database.BusyTimeout,
		MaxOpenConns: c.Database.MaxOpenConns,
	}
}
