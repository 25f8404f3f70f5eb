package ipc_test

import (
	"context"
	"io"
	"net"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"laserlink/internal/bridge"
	"laserlink/internal/daemon"
	"laserlink/internal/ipc"
	"laserlink/internal/kpi"
	"laserlink/internal/logging"
	"laserlink/internal/serialport"
	"laserlink/internal/sessions"
	"laserlink/internal/testsupport"
)

// idleOpener hands the bridge pipes nobody writes to, so it sits in the
// listening state for the whole test.
type idleOpener struct{}

func (idleOpener) Open(bridge.Role, serialport.Config) (io.ReadWriteCloser, error) {
	local, _ := net.Pipe()
	return local, nil
}

func TestIPCServerClient(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPorts("/dev/ttyLASER0", "/dev/ttySFC0"))
	cfg.Paths.APIBind = ""
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	settings, err := bridge.SettingsFromConfig(cfg)
	if err != nil {
		t.Fatalf("SettingsFromConfig: %v", err)
	}
	br, err := bridge.New(bridge.Options{Settings: settings, Opener: idleOpener{}, Store: store, Logger: logger})
	if err != nil {
		t.Fatalf("bridge.New: %v", err)
	}
	d, err := daemon.New(cfg, store, br, logger, daemon.WithTracker(kpi.NewTracker(kpi.Options{})))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	started := time.Now().Add(-time.Minute)
	finished := started.Add(1500 * time.Millisecond)
	if _, err := store.Create(ctx, sessions.NewSession{ID: "0f3c9a2e-ipc", MO: "2790004475", NeedPSN: "NEEDPSN12", StartedAt: started}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.AppendMessage(ctx, "0f3c9a2e-ipc", sessions.DirectionLaserToSFC, "2790004475,NEEDPSN12"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if _, err := store.Finish(ctx, "0f3c9a2e-ipc", sessions.FinishParams{
		Status:     sessions.StatusPassed,
		Stage:      sessions.StageDone,
		FinishedAt: finished,
	}); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var shutdowns atomic.Int32
	socket := filepath.Join(cfg.Paths.StateDir, "laserlink.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger, ipc.WithShutdown(func() { shutdowns.Add(1) }))
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Status.Running {
		t.Fatal("expected daemon to be running")
	}
	if status.Status.SessionStats["passed"] != 1 || status.Status.SessionStats["failed"] != 0 {
		t.Fatalf("unexpected session stats %v", status.Status.SessionStats)
	}
	if status.Status.Bridge.LaserPort != "/dev/ttyLASER0" {
		t.Fatalf("unexpected laser port %q", status.Status.Bridge.LaserPort)
	}

	list, err := client.SessionList([]string{"passed"}, 10)
	if err != nil {
		t.Fatalf("SessionList failed: %v", err)
	}
	if len(list.Sessions) != 1 || list.Sessions[0].CycleMS != 1500 {
		t.Fatalf("unexpected sessions %+v", list.Sessions)
	}
	if _, err := client.SessionList([]string{"bogus"}, 0); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}

	show, err := client.SessionShow("0f3c")
	if err != nil {
		t.Fatalf("SessionShow failed: %v", err)
	}
	if show.Detail.Session.NeedPSN != "NEEDPSN12" || len(show.Detail.Messages) != 1 {
		t.Fatalf("unexpected detail %+v", show.Detail)
	}
	if _, err := client.SessionShow("ffff"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}

	report, err := client.KPI()
	if err != nil {
		t.Fatalf("KPI failed: %v", err)
	}
	if len(report.Report.Days) == 0 {
		t.Fatal("expected at least one KPI day")
	}

	dbHealth, err := client.DatabaseHealth()
	if err != nil {
		t.Fatalf("DatabaseHealth failed: %v", err)
	}
	if dbHealth.DBPath != cfg.DatabasePath() || dbHealth.TotalSessions != 1 {
		t.Fatalf("unexpected db health %+v", dbHealth)
	}

	notify, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if notify.Sent || notify.Message == "" {
		t.Fatalf("expected unsent notification with a reason, got %+v", notify)
	}

	stop, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stop.Stopped {
		t.Fatal("expected stop response to be true")
	}
	if shutdowns.Load() != 1 {
		t.Fatalf("expected shutdown callback once, got %d", shutdowns.Load())
	}

	after, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if after.Status.Running || after.Status.Bridge.State != bridge.StateStopped {
		t.Fatalf("expected stopped daemon, got %+v", after.Status)
	}
}

func TestNewServerRequiresDaemon(t *testing.T) {
	if _, err := ipc.NewServer(context.Background(), filepath.Join(t.TempDir(), "x.sock"), nil, nil); err == nil {
		t.Fatal("expected error without daemon")
	}
}
