package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"laserlink/internal/config"
)

func TestWatcherReloadsValidConfigAndReportsInvalid(t *testing.T) {
	clearPortEnv(t)
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "laserlink.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}

	reloaded := make(chan *config.Config, 4)
	failed := make(chan error, 4)
	w, err := config.NewWatcher(path, config.WatcherOptions{
		Debounce: 50 * time.Millisecond,
		OnReload: func(cfg *config.Config) { reloaded <- cfg },
		OnError:  func(err error) { failed <- err },
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("[timeouts]\nsfc_tx_sec = 3\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	select {
	case cfg := <-reloaded:
		if cfg.SFCTimeout() != 3*time.Second {
			t.Fatalf("unexpected reloaded sfc timeout %s", cfg.SFCTimeout())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	if err := os.WriteFile(path, []byte("[bridge]\nmode = \"mirror\"\n"), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	select {
	case <-failed:
	case cfg := <-reloaded:
		t.Fatalf("invalid config should not reload, got %+v", cfg.Bridge)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload error")
	}
}
