package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"laserlink/internal/api"
	"laserlink/internal/bridge"
	"laserlink/internal/config"
	"laserlink/internal/kpi"
	"laserlink/internal/logging"
	"laserlink/internal/metrics"
	"laserlink/internal/notifications"
	"laserlink/internal/sessions"
)

// Daemon owns the bridge loop, the tty hotplug monitor and the HTTP API, and
// enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *sessions.Store
	bridge   *bridge.Bridge
	tracker  *kpi.Tracker
	notifier notifications.Service
	metrics  *metrics.Registry
	sessions *api.SessionService
	now      func() time.Time

	lockPath string
	lock     *flock.Flock
	monitor  *ttyMonitor
	api      *apiServer

	running   atomic.Bool
	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithTracker sets the KPI tracker rebuilt on start and served by KPI.
func WithTracker(tracker *kpi.Tracker) Option {
	return func(d *Daemon) { d.tracker = tracker }
}

// WithNotifier sets the notifier used by TestNotification.
func WithNotifier(notifier notifications.Service) Option {
	return func(d *Daemon) { d.notifier = notifier }
}

// WithMetrics exposes registry on the HTTP API /metrics route.
func WithMetrics(registry *metrics.Registry) Option {
	return func(d *Daemon) { d.metrics = registry }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Daemon) { d.now = now }
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	DatabasePath string
	LockFilePath string
	HotplugWatch bool
	Bridge       bridge.Status
	Sessions     map[string]int
	KPI          string
}

// New constructs a daemon around an already configured bridge.
func New(cfg *config.Config, store *sessions.Store, br *bridge.Bridge, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || br == nil {
		return nil, errors.New("daemon requires config, store, and bridge")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.DaemonLockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		bridge:   br,
		sessions: api.NewSessionService(store),
		now:      time.Now,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.notifier == nil {
		d.notifier = notifications.NewService(cfg)
	}
	d.monitor = newTTYMonitor(logger, br)
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, recovers state left by a previous run and
// launches the bridge loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another laserlink daemon instance is already running")
	}

	d.recover(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}
	if err := d.monitor.Start(runCtx); err != nil {
		d.logger.Debug("tty monitor unavailable", logging.Error(err))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := d.bridge.Run(runCtx); err != nil {
			logging.ErrorWithContext(d.logger, "bridge loop exited", "bridge_exit",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "restart the daemon"),
				logging.String(logging.FieldImpact, "no sessions are processed"),
			)
		}
	}()

	d.mu.Lock()
	d.cancel = cancel
	d.done = done
	d.startedAt = d.now()
	d.mu.Unlock()
	d.running.Store(true)
	d.logger.Info("laserlink daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("mode", d.bridge.Settings().Mode),
	)
	return nil
}

// recover fails sessions left running by a crashed daemon and rebuilds the
// KPI tracker from stored outcomes.
func (d *Daemon) recover(ctx context.Context) {
	failed, err := d.store.FailInFlight(ctx, sessions.DaemonStopReason)
	if err != nil {
		logging.WarnWithContext(d.logger, "failed to close interrupted sessions", "session_recovery_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run laserlink sessions list --status running"),
			logging.String(logging.FieldImpact, "stale sessions stay marked running"),
		)
	} else if failed > 0 {
		d.logger.Info("interrupted sessions marked failed",
			logging.String(logging.FieldEventType, "sessions_recovered"),
			logging.Int64("count", failed),
		)
	}

	if d.tracker == nil {
		return
	}
	outcomes, err := d.store.Outcomes(ctx, d.tracker.Since(d.now()))
	if err != nil {
		logging.WarnWithContext(d.logger, "failed to rebuild kpi counters", "kpi_rebuild_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the sessions database in state_dir"),
			logging.String(logging.FieldImpact, "kpi counters start from zero"),
		)
		return
	}
	d.tracker.Rebuild(outcomes)
	d.logger.Debug("kpi counters rebuilt", logging.Int("outcomes", len(outcomes)))
}

// Stop stops the bridge, waits for the active session to be recorded and
// releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.done = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	d.monitor.Stop()
	d.api.stop()
	if done != nil {
		<-done
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_unlock_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if the next start fails"),
			logging.String(logging.FieldImpact, "the next daemon start may be refused"),
		)
	}
	d.running.Store(false)
	d.logger.Info("laserlink daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// APIAddress returns the bound HTTP API address, or "" when it is not serving.
func (d *Daemon) APIAddress() string {
	return d.api.address()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	started := d.startedAt
	d.mu.Unlock()

	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		HotplugWatch: d.monitor.Running(),
		Bridge:       d.bridge.Status(),
	}
	if status.Running {
		status.StartedAt = started
	}
	if stats, err := d.sessions.Stats(ctx); err == nil {
		status.Sessions = stats
	} else {
		d.logger.Debug("session stats unavailable", logging.Error(err))
	}
	if d.tracker != nil {
		status.KPI = d.tracker.Report(d.now()).Active().Summary()
	}
	return status
}

// ListSessions returns sessions newest first, optionally filtered by status.
func (d *Daemon) ListSessions(ctx context.Context, statuses []string, limit int) ([]api.Session, error) {
	return d.sessions.List(ctx, statuses, limit)
}

// DescribeSession resolves a session id or unique prefix.
func (d *Daemon) DescribeSession(ctx context.Context, id string) (*api.SessionDetail, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("session id is required")
	}
	return d.sessions.Describe(ctx, id)
}

// KPI returns the current shift report.
func (d *Daemon) KPI() (kpi.Report, error) {
	if d.tracker == nil {
		return kpi.Report{}, errors.New("kpi tracker unavailable")
	}
	return d.tracker.Report(d.now()), nil
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (sessions.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
