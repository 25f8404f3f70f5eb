package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"laserlink/internal/api"
	"laserlink/internal/bridge"
	"laserlink/internal/config"
	"laserlink/internal/ipc"
	"laserlink/internal/preflight"
	"laserlink/internal/sessions"
)

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State StartState
	PID   int
}

// ErrDaemonNotRunning indicates daemon IPC is unavailable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// Launch starts a detached `laserlink run` process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"run"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForClient waits for IPC socket availability and returns a connected client.
func WaitForClient(socketPath string, timeout time.Duration) (*ipc.Client, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err == nil {
			return client, nil
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return nil, fmt.Errorf("daemon failed to start: %w", lastErr)
}

// EnsureStarted launches the daemon unless one already answers on socketPath.
func EnsureStarted(socketPath, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if client, err := ipc.Dial(socketPath); err == nil {
		defer client.Close()
		resp, statusErr := client.Status()
		if statusErr != nil {
			return StartResult{}, statusErr
		}
		return StartResult{State: StartStateAlreadyRunning, PID: resp.Status.PID}, nil
	}

	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	client, err := WaitForClient(socketPath, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	defer client.Close()
	resp, err := client.Status()
	if err != nil {
		return StartResult{}, err
	}
	if !resp.Status.Running {
		return StartResult{}, errors.New("daemon launched but did not start; check laserlinkd.log")
	}
	return StartResult{State: StartStateStarted, PID: resp.Status.PID}, nil
}

// WaitForShutdown waits for daemon IPC to disappear.
func WaitForShutdown(socketPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		client, err := ipc.Dial(socketPath)
		if err != nil {
			if isDaemonUnavailable(err) {
				return nil
			}
			time.Sleep(200 * time.Millisecond)
			continue
		}
		_ = client.Close()
		time.Sleep(200 * time.Millisecond)
	}
	return errors.New("daemon did not stop: timeout waiting for shutdown")
}

// ProcessInfo returns whether daemon IPC is reachable and the daemon PID when available.
func ProcessInfo(socketPath string) (bool, int, error) {
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return false, 0, nil
		}
		return false, 0, err
	}
	defer client.Close()
	status, statusErr := client.Status()
	if statusErr != nil {
		return true, 0, statusErr
	}
	return true, status.Status.PID, nil
}

// ForceKillProcess sends SIGKILL to the daemon and removes its pid, lock and
// socket files.
func ForceKillProcess(cfg *config.Config, fallbackPID int) (int, error) {
	pidPath := cfg.PIDPath()
	pid := fallbackPID
	data, err := os.ReadFile(pidPath)
	if err == nil {
		if parsed, parseErr := strconv.Atoi(strings.TrimSpace(string(data))); parseErr == nil && parsed > 0 {
			pid = parsed
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("read daemon pid file %q: %w", pidPath, err)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("locate daemon process %d: %w", pid, err)
	}
	if err := proc.Kill(); err != nil {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	for _, path := range []string{pidPath, cfg.DaemonLockPath(), cfg.SocketPath()} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return pid, fmt.Errorf("remove %q: %w", path, err)
		}
	}
	return pid, nil
}

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	StopAcknowledged bool
	ForcedKill       bool
	PID              int
}

// StopAndTerminate requests a stop over IPC and force-kills the process if it
// is still answering after gracePeriod.
func StopAndTerminate(cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	socketPath := cfg.SocketPath()
	client, err := ipc.Dial(socketPath)
	if err != nil {
		if isDaemonUnavailable(err) {
			return StopResult{}, ErrDaemonNotRunning
		}
		return StopResult{}, err
	}
	pid := 0
	if statusResp, statusErr := client.Status(); statusErr == nil {
		pid = statusResp.Status.PID
	}
	resp, err := client.Stop()
	_ = client.Close()
	if err != nil {
		return StopResult{}, err
	}
	result := StopResult{PID: pid, StopAcknowledged: resp.Stopped}

	if WaitForShutdown(socketPath, gracePeriod) == nil {
		return result, nil
	}
	alive, livePID, aliveErr := ProcessInfo(socketPath)
	if aliveErr != nil || !alive {
		return result, nil
	}
	if livePID != 0 {
		pid = livePID
	}
	killedPID, killErr := ForceKillProcess(cfg, pid)
	if killErr != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", killErr)
	}
	result.ForcedKill = true
	result.PID = killedPID
	return result, nil
}

// StatusSnapshot is what `laserlink status` renders.
type StatusSnapshot struct {
	Daemon api.DaemonStatus
	Checks []api.StatusLine
}

// BuildStatusSnapshot collects daemon status over IPC and falls back to the
// sessions database for counts when the daemon is offline.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (*StatusSnapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snapshot := &StatusSnapshot{}

	client, err := ipc.Dial(cfg.SocketPath())
	if err == nil {
		defer client.Close()
		if resp, statusErr := client.Status(); statusErr == nil {
			snapshot.Daemon = resp.Status
		}
	}

	if !snapshot.Daemon.Running {
		snapshot.Daemon.DatabasePath = cfg.DatabasePath()
		snapshot.Daemon.LockFilePath = cfg.DaemonLockPath()
		snapshot.Daemon.SessionStats = offlineStats(ctx, cfg)
	}

	snapshot.Checks = BuildSystemChecks(ctx, cfg, snapshot.Daemon)
	return snapshot, nil
}

func offlineStats(ctx context.Context, cfg *config.Config) map[string]int {
	if _, err := os.Stat(cfg.DatabasePath()); err != nil {
		return api.MergeSessionStats(nil)
	}
	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	store, err := sessions.Open(cfg)
	if err != nil {
		return api.MergeSessionStats(nil)
	}
	defer store.Close()
	stats, err := store.Stats(queryCtx)
	if err != nil {
		return api.MergeSessionStats(nil)
	}
	return api.MergeSessionStats(stats)
}

// BuildSystemChecks resolves status lines that combine runtime state and config checks.
func BuildSystemChecks(ctx context.Context, cfg *config.Config, status api.DaemonStatus) []api.StatusLine {
	lines := make([]api.StatusLine, 0, 7)
	if status.Running {
		lines = append(lines, api.StatusLine{Label: "LaserLink", Severity: "ok", Detail: fmt.Sprintf("Running (pid %d)", status.PID)})
		lines = append(lines, bridgeLine(status.Bridge))
		if status.HotplugWatch {
			lines = append(lines, api.StatusLine{Label: "Hotplug", Severity: "ok", Detail: "Netlink monitoring active"})
		} else {
			lines = append(lines, api.StatusLine{Label: "Hotplug", Severity: "warn", Detail: "Netlink unavailable (ports reopen on retry only)"})
		}
	} else {
		lines = append(lines, api.StatusLine{Label: "LaserLink", Severity: "warn", Detail: "Not running (run `laserlink start`)"})
	}

	ports := []preflight.Result{
		preflight.CheckDistinctPorts(cfg.Serial.Laser.Port, cfg.Serial.SFC.Port),
		preflight.CheckPortAccess("Laser port", cfg.Serial.Laser.Port),
		preflight.CheckPortAccess("SFC port", cfg.Serial.SFC.Port),
	}
	for _, result := range ports {
		severity := "error"
		if result.Passed {
			severity = "ok"
		}
		lines = append(lines, api.StatusLine{Label: result.Name, Severity: severity, Detail: result.Detail})
	}

	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	switch {
	case topic == "":
		lines = append(lines, api.StatusLine{Label: "Notifications", Severity: "info", Detail: "Not configured"})
	default:
		check := preflight.CheckNtfy(ctx, topic)
		severity := "warn"
		if check.Passed {
			severity = "ok"
		}
		lines = append(lines, api.StatusLine{Label: "Notifications", Severity: severity, Detail: check.Detail})
	}
	return lines
}

func bridgeLine(b api.BridgeStatus) api.StatusLine {
	line := api.StatusLine{Label: "Bridge", Detail: fmt.Sprintf("%s, %s", b.Mode, b.State)}
	switch b.State {
	case bridge.StateError:
		line.Severity = "error"
		if b.LastError != "" {
			line.Detail += ": " + b.LastError
		}
	case bridge.StateListening, bridge.StateTesting:
		line.Severity = "ok"
	default:
		line.Severity = "warn"
	}
	if !b.Connected && b.State != bridge.StateError {
		line.Severity = "warn"
		line.Detail += " (ports not open)"
	}
	return line
}

func isDaemonUnavailable(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
