package daemonrun

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"laserlink/internal/bridge"
	"laserlink/internal/ipc"
	"laserlink/internal/logging"
	"laserlink/internal/serialport"
	"laserlink/internal/sessions"
	"laserlink/internal/testsupport"
)

type silentOpener struct{}

func (silentOpener) Open(bridge.Role, serialport.Config) (io.ReadWriteCloser, error) {
	local, _ := net.Pipe()
	return local, nil
}

func TestRunStopsOnIPCStop(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPorts("/dev/ttyLASER0", "/dev/ttySFC0"))
	cfg.Logging.Level = "error"

	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), cfg, Options{Opener: silentOpener{}})
	}()

	var client *ipc.Client
	deadline := time.Now().Add(5 * time.Second)
	for {
		c, err := ipc.Dial(cfg.SocketPath())
		if err == nil {
			client = c
			break
		}
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("unix sockets unavailable: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatalf("daemon socket never appeared: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Status.Running {
		t.Fatal("expected running daemon")
	}
	if _, err := os.Stat(cfg.PIDPath()); err != nil {
		t.Fatalf("expected pid file: %v", err)
	}

	if _, err := client.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after stop")
	}
	if _, err := os.Stat(cfg.PIDPath()); !os.IsNotExist(err) {
		t.Fatalf("expected pid file removed, got %v", err)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected error for nil config")
	}
}

func TestMaintainPrunesOldHistory(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Logging.RetentionDays = 7
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	now := time.Now()

	for id, finished := range map[string]time.Time{
		"old": now.AddDate(0, 0, -10),
		"new": now.Add(-time.Hour),
	} {
		if _, err := store.Create(ctx, sessions.NewSession{ID: id, MO: "2790004475", StartedAt: finished.Add(-time.Second)}); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
		if _, err := store.Finish(ctx, id, sessions.FinishParams{Status: sessions.StatusPassed, Stage: sessions.StageDone, FinishedAt: finished}); err != nil {
			t.Fatalf("Finish %s: %v", id, err)
		}
	}

	if err := os.MkdirAll(cfg.Paths.CaptureDir, 0o755); err != nil {
		t.Fatal(err)
	}
	oldCapture := filepath.Join(cfg.Paths.CaptureDir, "old_ttyUSB0_laser.bin")
	testsupport.WriteFile(t, oldCapture, "x")
	testsupport.Age(t, oldCapture, 8*24*time.Hour)

	maintain(ctx, logging.NewNop(), cfg, store, now)

	if s, _ := store.Get(ctx, "old"); s != nil {
		t.Fatal("expected old session pruned")
	}
	if s, _ := store.Get(ctx, "new"); s == nil {
		t.Fatal("expected recent session kept")
	}
	if _, err := os.Stat(oldCapture); !os.IsNotExist(err) {
		t.Fatalf("expected old capture removed, got %v", err)
	}
}
