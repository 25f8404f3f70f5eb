package daemonctl

import (
	"context"
	"errors"
	"testing"
	"time"

	"laserlink/internal/api"
	"laserlink/internal/bridge"
	"laserlink/internal/sessions"
	"laserlink/internal/testsupport"
)

func TestStopWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := StopAndTerminate(cfg, time.Second); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
	alive, pid, err := ProcessInfo(cfg.SocketPath())
	if err != nil || alive || pid != 0 {
		t.Fatalf("expected no daemon, got alive=%v pid=%d err=%v", alive, pid, err)
	}
	if err := WaitForShutdown(cfg.SocketPath(), time.Second); err != nil {
		t.Fatalf("WaitForShutdown: %v", err)
	}
}

func TestLaunchRequiresExecutable(t *testing.T) {
	if err := Launch(" ", LaunchOptions{}); err == nil {
		t.Fatal("expected error for empty executable")
	}
}

func TestOfflineSnapshotReadsDatabase(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPorts("/dev/null", "/dev/zero"))
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	now := time.Now()
	if _, err := store.Create(ctx, sessions.NewSession{ID: "s1", MO: "2790004475", StartedAt: now}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Finish(ctx, "s1", sessions.FinishParams{Status: sessions.StatusFailed, Stage: sessions.StageSFCRequest, Error: "rejected", FinishedAt: now}); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	snapshot, err := BuildStatusSnapshot(ctx, cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snapshot.Daemon.Running {
		t.Fatal("expected offline daemon")
	}
	if snapshot.Daemon.SessionStats["failed"] != 1 || snapshot.Daemon.SessionStats["passed"] != 0 {
		t.Fatalf("unexpected stats %v", snapshot.Daemon.SessionStats)
	}
	if snapshot.Daemon.DatabasePath != cfg.DatabasePath() {
		t.Fatalf("unexpected database path %q", snapshot.Daemon.DatabasePath)
	}

	severities := map[string]string{}
	for _, line := range snapshot.Checks {
		severities[line.Label] = line.Severity
	}
	want := map[string]string{
		"LaserLink":       "warn",
		"Port assignment": "ok",
		"Laser port":      "ok",
		"SFC port":        "ok",
		"Notifications":   "info",
	}
	for label, severity := range want {
		if severities[label] != severity {
			t.Fatalf("%s: expected %s, got %q (all: %v)", label, severity, severities[label], severities)
		}
	}
}

func TestBridgeLine(t *testing.T) {
	cases := []struct {
		name     string
		status   api.BridgeStatus
		severity string
	}{
		{"listening", api.BridgeStatus{Mode: bridge.ModeHandshake, State: bridge.StateListening, Connected: true}, "ok"},
		{"testing", api.BridgeStatus{Mode: bridge.ModeHandshake, State: bridge.StateTesting, Connected: true}, "ok"},
		{"ports closed", api.BridgeStatus{Mode: bridge.ModeRelay, State: bridge.StateIdle}, "warn"},
		{"error", api.BridgeStatus{Mode: bridge.ModeHandshake, State: bridge.StateError, LastError: "open /dev/ttyUSB0: busy"}, "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := bridgeLine(tc.status).Severity; got != tc.severity {
				t.Fatalf("expected %s, got %s", tc.severity, got)
			}
		})
	}
}
