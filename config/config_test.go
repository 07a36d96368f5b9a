package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "review.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}

	cfg, err = Load("")
	if err != nil || cfg != Default() {
		t.Errorf("Load(\"\") = %+v, %v", cfg, err)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeFile(t, `
addr = ":9090"

[store]
backend = "cached"
flush_interval = "250ms"

[firestore]
project = "demo"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.StaticDir != "static" {
		t.Errorf("StaticDir = %q, want default", cfg.StaticDir)
	}
	if cfg.Store.Backend != BackendCached || cfg.Firestore.Project != "demo" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Firestore.Collection != "reviews" {
		t.Errorf("Collection = %q, want default", cfg.Firestore.Collection)
	}
	d, err := cfg.Store.Interval()
	if err != nil || d != 250*time.Millisecond {
		t.Errorf("Interval() = %v, %v", d, err)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"unknown backend", "[store]\nbackend = \"redis\""},
		{"firestore without project", "[store]\nbackend = \"firestore\""},
		{"bad interval", "[store]\nflush_interval = \"soon\""},
		{"zero interval", "[store]\nflush_interval = \"0s\""},
		{"unknown key", "listen = \":80\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			err := Parse([]byte(tt.toml), &cfg)
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	cfg := Default()
	if err := Parse([]byte("addr = "), &cfg); err == nil {
		t.Error("expected a decode error")
	}
}
