package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRejectsInvalidConfig(t *testing.T) {
	t.Setenv("LASERLINK_LASER_PORT", "")
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[serial.laser]\nport = \"printer\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cmd := newCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", path})
	err := cmd.ExecuteContext(context.Background())
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestRejectsArguments(t *testing.T) {
	cmd := newCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"extra"})
	if err := cmd.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected positional arguments to be rejected")
	}
}
