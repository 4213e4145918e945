package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Crawl.MaxDepth != 3 {
		t.Errorf("Crawl.MaxDepth = %d, want default 3", cfg.Crawl.MaxDepth)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want default info", cfg.Logging.Level)
	}
	if cfg.Output.BaseDir != "output" {
		t.Errorf("Output.BaseDir = %q, want default output", cfg.Output.BaseDir)
	}
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
crawl:
  max_depth: 7
  concurrency: 3
logging:
  level: debug
output:
  base_dir: /tmp/archive-output
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Crawl.MaxDepth != 7 {
		t.Errorf("Crawl.MaxDepth = %d, want 7", cfg.Crawl.MaxDepth)
	}
	if cfg.Crawl.Concurrency != 3 {
		t.Errorf("Crawl.Concurrency = %d, want 3", cfg.Crawl.Concurrency)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Output.BaseDir != "/tmp/archive-output" {
		t.Errorf("Output.BaseDir = %q, want /tmp/archive-output", cfg.Output.BaseDir)
	}
	// Unset fields still fall back to defaults alongside the overrides.
	if cfg.Crawl.MaxPages != 500 {
		t.Errorf("Crawl.MaxPages = %d, want default 500", cfg.Crawl.MaxPages)
	}
}

func TestLogConfigConversion(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	lc := cfg.LogConfig()
	if lc.Level != cfg.Logging.Level || lc.LogDir != cfg.Logging.LogDir {
		t.Errorf("LogConfig() = %+v, want fields copied from %+v", lc, cfg.Logging)
	}
}
