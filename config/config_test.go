package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "unknown input format",
			mutate: func(cfg *Config) {
				cfg.InputFormat = "xml"
			},
			wantErr: "input format",
		},
		{
			name: "unknown output format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "yaml"
			},
			wantErr: "output format",
		},
		{
			name: "dual to stdout",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "dual"
			},
			wantErr: "dual output",
		},
		{
			name: "zero cache",
			mutate: func(cfg *Config) {
				cfg.RomajiCacheSize = 0
			},
			wantErr: "romaji cache",
		},
		{
			name: "negative workers",
			mutate: func(cfg *Config) {
				cfg.Workers = -1
			},
			wantErr: "workers",
		},
		{
			name: "input overwritten by output",
			mutate: func(cfg *Config) {
				cfg.InputFile = "bookmarks.json"
				cfg.OutputFile = "bookmarks.json"
			},
			wantErr: "same file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
}

func TestLoadOverlaysYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mangamerge.yaml")
	content := "output: out/manga.csv\nformat: dual\nromaji_cache: 128\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OutputFile != "out/manga.csv" || cfg.OutputFormat != "dual" || cfg.RomajiCacheSize != 128 {
		t.Fatalf("overlay not applied: %+v", cfg)
	}
	if cfg.InputFormat != "auto" || cfg.Workers != 1 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadNormalizesFormatCase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mangamerge.yaml")
	content := "input_format: JSON\nformat: \" Dual \"\noutput: merged.csv\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.InputFormat != "json" || cfg.OutputFormat != "dual" {
		t.Fatalf("formats = %q, %q, want json, dual", cfg.InputFormat, cfg.OutputFormat)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("romaji_cache: [1, 2"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}

	cfg, err := Load("")
	if err != nil || cfg.OutputFormat != "csv" {
		t.Fatalf("empty path should return defaults, got %+v, %v", cfg, err)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvOutput, " merged.csv ")
	t.Setenv(EnvFormat, "JSON")
	t.Setenv(EnvWorkers, "3")
	t.Setenv(EnvDBPath, "manga.db")
	t.Setenv(EnvRomajiCache, "64")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.OutputFile != "merged.csv" || cfg.OutputFormat != "json" || cfg.DBPath != "manga.db" || cfg.RomajiCacheSize != 64 || cfg.Workers != 3 {
		t.Fatalf("env not applied: %+v", cfg)
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("MANGAMERGE_TEST_INT", "12")
	if value, ok, err := EnvInt("MANGAMERGE_TEST_INT"); err != nil || !ok || value != 12 {
		t.Fatalf("EnvInt = %d, %v, %v", value, ok, err)
	}

	t.Setenv("MANGAMERGE_TEST_INT", "twelve")
	if _, _, err := EnvInt("MANGAMERGE_TEST_INT"); !errors.Is(err, ErrInvalidEnv) {
		t.Fatalf("expected ErrInvalidEnv, got %v", err)
	}

	t.Setenv("MANGAMERGE_TEST_INT", "   ")
	if _, ok, err := EnvInt("MANGAMERGE_TEST_INT"); ok || err != nil {
		t.Fatalf("blank value should be unset, got %v, %v", ok, err)
	}
}
