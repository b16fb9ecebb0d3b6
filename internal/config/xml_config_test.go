package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SerialHub.config")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Port != 54321 {
		t.Errorf("default port = %d, want 54321", cfg.Server.Port)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("default config file should have been written: %v", err)
	}

	// Second load reads the written file.
	cfg2, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if cfg2.GetServerAddr() != cfg.GetServerAddr() {
		t.Errorf("reloaded addr = %q, want %q", cfg2.GetServerAddr(), cfg.GetServerAddr())
	}
}

func TestLoadConfigFillsGaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SerialHub.config")
	partial := `<?xml version="1.0" encoding="UTF-8"?>
<SerialHub>
  <Server>
    <Port>9000</Port>
  </Server>
</SerialHub>`
	if err := os.WriteFile(path, []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Server.BindAddress == "" || cfg.Storage.HistoryFile == "" {
		t.Errorf("gaps not filled: %+v", cfg)
	}
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Storage.DataDirectory = filepath.Join(dir, "data")
	cfg.Storage.HistoryFile = filepath.Join(dir, "data", "send_history.json")
	cfg.Storage.PortSettingsFile = filepath.Join(dir, "data", "comsettings.yaml")
	cfg.Storage.ArchiveDirectory = filepath.Join(dir, "data", "archive")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	if _, err := os.Stat(cfg.Storage.ArchiveDirectory); err != nil {
		t.Errorf("archive directory missing: %v", err)
	}
}
