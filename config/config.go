// Package config loads the review server settings from a TOML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Store backends.
const (
	BackendMemory    = "memory"
	BackendCached    = "cached"
	BackendFirestore = "firestore"
)

var ErrInvalid = errors.New("invalid config")

// Config is the server configuration.
type Config struct {
	Addr      string          `toml:"addr"`
	StaticDir string          `toml:"static_dir"`
	Store     StoreConfig     `toml:"store"`
	Firestore FirestoreConfig `toml:"firestore"`
}

type StoreConfig struct {
	// Backend is one of memory, cached or firestore. cached is a
	// write-behind cache over Firestore.
	Backend       string `toml:"backend"`
	FlushInterval string `toml:"flush_interval"`
}

type FirestoreConfig struct {
	Project    string `toml:"project"`
	Collection string `toml:"collection"`
}

// Default returns the settings used when no file is present.
func Default() Config {
	return Config{
		Addr:      ":8080",
		StaticDir: "static",
		Store: StoreConfig{
			Backend:       BackendMemory,
			FlushInterval: "5s",
		},
		Firestore: FirestoreConfig{
			Collection: "reviews",
		},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML into cfg, leaving unset keys alone, and validates the
// result. Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("%w: %s", ErrInvalid, strict.String())
		}
		return err
	}
	return cfg.Validate()
}

// Validate checks the backend name, the flush interval and that Firestore
// backends have a project.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory:
	case BackendCached, BackendFirestore:
		if c.Firestore.Project == "" {
			return fmt.Errorf("%w: store backend %q needs firestore.project", ErrInvalid, c.Store.Backend)
		}
	default:
		return fmt.Errorf("%w: unknown store backend %q", ErrInvalid, c.Store.Backend)
	}
	if _, err := c.Store.Interval(); err != nil {
		return err
	}
	return nil
}

// Interval parses FlushInterval.
func (s StoreConfig) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(s.FlushInterval)
	if err != nil {
		return 0, fmt.Errorf("%w: flush_interval: %v", ErrInvalid, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: flush_interval must be positive", ErrInvalid)
	}
	return d, nil
}
