package config

import (
	"os"
	"path/filepath"
	"testing"
)

func setTestDirs(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmp, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmp, "data"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(tmp, "cache"))
	return tmp
}

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	setTestDirs(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Account.Port != 5222 {
		t.Fatalf("expected default port 5222, got %d", cfg.Account.Port)
	}
	if cfg.History.PageSize != 50 {
		t.Fatalf("expected default page size 50, got %d", cfg.History.PageSize)
	}
	if cfg.General.DataDir == "" {
		t.Fatalf("data dir default must be applied")
	}
	if cfg.Logging.File == "" || cfg.Plugins.PluginDir == "" {
		t.Fatalf("derived paths must be filled in: %+v", cfg)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	setTestDirs(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	cfg.Account.JID = "alice@example.org"
	cfg.Account.Nickname = "alice"
	cfg.Services.Conference = "rooms.example.org"
	cfg.History.PageSize = 25

	if err := Save(cfg); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.Account.JID != "alice@example.org" {
		t.Fatalf("jid not round-tripped: %q", loaded.Account.JID)
	}
	if loaded.Services.Conference != "rooms.example.org" {
		t.Fatalf("conference override not round-tripped: %q", loaded.Services.Conference)
	}
	if loaded.History.PageSize != 25 {
		t.Fatalf("page size not round-tripped: %d", loaded.History.PageSize)
	}
}

func TestLoadCreatesDirectories(t *testing.T) {
	setTestDirs(t)

	if _, err := Load(); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	paths, err := GetPaths()
	if err != nil {
		t.Fatalf("paths failed: %v", err)
	}
	for _, dir := range []string{paths.ConfigDir, paths.DataDir, paths.CacheDir} {
		if _, err := os.Stat(dir); err != nil {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
