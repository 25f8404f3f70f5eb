package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"laserlink/internal/bridge"
	"laserlink/internal/config"
	"laserlink/internal/daemon"
	"laserlink/internal/ipc"
	"laserlink/internal/kpi"
	"laserlink/internal/logging"
	"laserlink/internal/serialport"
	"laserlink/internal/sessions"
	"laserlink/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *sessions.Store
	socketPath string
	configPath string
}

// idleOpener gives the bridge pipes that never carry traffic.
type idleOpener struct{}

func (idleOpener) Open(bridge.Role, serialport.Config) (io.ReadWriteCloser, error) {
	local, _ := net.Pipe()
	return local, nil
}

// setupCLITestEnv writes a config file for a temp tree and opens its store.
// No daemon is running.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")
	for _, key := range []string{"LASERLINK_LASER_PORT", "LASERLINK_SFC_PORT", "LASERLINK_NTFY_TOPIC"} {
		t.Setenv(key, "")
	}

	cfg := testsupport.NewConfig(t, testsupport.WithPorts("/dev/ttyLASER0", "/dev/ttySFC0"))
	cfg.Paths.APIBind = ""
	configPath := filepath.Join(testsupport.BaseDir(cfg), "laserlink.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		store:      testsupport.MustOpenStore(t, cfg),
		socketPath: cfg.SocketPath(),
		configPath: configPath,
	}
}

// startDaemon serves IPC for env with a bridge on idle pipes.
func (env *cliTestEnv) startDaemon(t *testing.T) {
	t.Helper()
	logger := logging.NewNop()
	settings, err := bridge.SettingsFromConfig(env.cfg)
	if err != nil {
		t.Fatalf("SettingsFromConfig: %v", err)
	}
	br, err := bridge.New(bridge.Options{Settings: settings, Opener: idleOpener{}, Store: env.store, Logger: logger})
	if err != nil {
		t.Fatalf("bridge.New: %v", err)
	}
	d, err := daemon.New(env.cfg, env.store, br, logger, daemon.WithTracker(kpi.NewTracker(kpi.Options{})))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start: %v", err)
	}
	srv, err := ipc.NewServer(ctx, env.socketPath, d, logger)
	if err != nil {
		cancel()
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Stop()
	})
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--socket", env.socketPath, "--config", env.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected output to contain %q\noutput:\n%s", substr, output)
	}
}
