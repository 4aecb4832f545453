package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewManagerCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := m.Get()
	if cfg.TickIntervalMS != 15 {
		t.Fatalf("expected default tick interval 15ms, got %d", cfg.TickIntervalMS)
	}
	if cfg.ServerPort != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.ServerPort)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to be created: %v", err)
	}
}

func TestNewManagerFallsBackOnCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(":\n\t- not yaml"), 0644); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("expected corrupt config to fall back to defaults, got error: %v", err)
	}
	if m.Get().ServerPort != 8080 {
		t.Fatalf("expected defaults after corruption, got port %d", m.Get().ServerPort)
	}
}

func TestUpdatePersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := m.Get()
	cfg.WindowTitle = "Path of Exile"
	cfg.LogFiles = []LogFile{{Path: "/tmp/client.txt", StaleAfterSeconds: 30}}
	if err := m.Update(&cfg); err != nil {
		t.Fatalf("unexpected update error: %v", err)
	}

	reloaded, err := NewManager(path)
	if err != nil {
		t.Fatalf("unexpected reload error: %v", err)
	}
	got := reloaded.Get()
	if got.WindowTitle != "Path of Exile" {
		t.Fatalf("expected window title to persist, got %q", got.WindowTitle)
	}
	if len(got.LogFiles) != 1 || got.LogFiles[0].StaleAfterSeconds != 30 {
		t.Fatalf("expected log file config to persist, got %+v", got.LogFiles)
	}
}
