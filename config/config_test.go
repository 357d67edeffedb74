package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.MaxRetries != 3 {
		t.Fatalf("expect default MaxRetries=3, got %d", cfg.MaxRetries)
	}
	if cfg.RetryInterval != time.Second {
		t.Fatalf("expect default RetryInterval=1s, got %s", cfg.RetryInterval)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "max_retries: 5\nmax_frame_len: 1048576\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxRetries != 5 {
		t.Fatalf("expect MaxRetries=5, got %d", cfg.MaxRetries)
	}
	if cfg.MaxFrameLen != 1048576 {
		t.Fatalf("expect MaxFrameLen=1048576, got %d", cfg.MaxFrameLen)
	}
	// Unset fields keep their default.
	if cfg.SweepInterval != 500*time.Millisecond {
		t.Fatalf("expect default SweepInterval, got %s", cfg.SweepInterval)
	}
}

func TestLoadRejectsSweepSlowerThanRetry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "sweep_interval: 2s\nretry_interval: 1s\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error when sweep_interval exceeds retry_interval")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path.yaml"); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
