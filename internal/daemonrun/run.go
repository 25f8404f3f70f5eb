package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"laserlink/internal/bridge"
	"laserlink/internal/config"
	"laserlink/internal/daemon"
	"laserlink/internal/ipc"
	"laserlink/internal/kpi"
	"laserlink/internal/logging"
	"laserlink/internal/metrics"
	"laserlink/internal/notifications"
	"laserlink/internal/preflight"
	"laserlink/internal/sessions"
)

const maintenanceInterval = 6 * time.Hour

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides logging.level when set.
	LogLevel string
	// ConfigPath enables hot reload of the given file. Empty disables it.
	ConfigPath string
	// Opener replaces the real serial device opener.
	Opener bridge.Opener
}

// Run starts the laserlink daemon and blocks until SIGINT/SIGTERM, an IPC
// stop request, or cmdCtx cancellation.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	levelVar := new(slog.LevelVar)
	logger, err := logging.NewFromConfig(cfg, levelVar)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if opts.LogLevel != "" {
		levelVar.Set(logging.ParseLevel(opts.LogLevel))
	}

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	logPreflight(logger, preflight.RunAll(signalCtx, cfg))

	store, err := sessions.Open(cfg)
	if err != nil {
		logger.Error("open sessions store", logging.Error(err))
		return err
	}
	defer store.Close()

	maintain(signalCtx, logger, cfg, store, time.Now())

	notifier := notifications.NewService(cfg)
	registry := metrics.New()
	kpiOpts, err := kpi.OptionsFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("kpi options: %w", err)
	}
	tracker := kpi.NewTracker(kpiOpts)

	settings, err := bridge.SettingsFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("bridge settings: %w", err)
	}
	br, err := bridge.New(bridge.Options{
		Settings: settings,
		Opener:   opts.Opener,
		Store:    store,
		Metrics:  registry,
		Tracker:  tracker,
		Notifier: notifier,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("create bridge: %w", err)
	}

	d, err := daemon.New(cfg, store, br, logger,
		daemon.WithTracker(tracker),
		daemon.WithNotifier(notifier),
		daemon.WithMetrics(registry),
	)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Stop()

	runCtx, stop := context.WithCancel(signalCtx)
	defer stop()

	ipcServer, err := ipc.NewServer(runCtx, cfg.SocketPath(), d, logger, ipc.WithShutdown(stop))
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(runCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another laserlinkd and the state directory permissions"),
			logging.String(logging.FieldImpact, "no handshakes are bridged"),
		)
		return err
	}

	group, groupCtx := errgroup.WithContext(runCtx)
	if opts.ConfigPath != "" {
		watcher, err := newConfigWatcher(opts.ConfigPath, logger, levelVar, br)
		if err != nil {
			logging.WarnWithContext(logger, "config hot reload unavailable", "config_watch_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "config edits need a daemon restart"))
		} else {
			group.Go(func() error {
				defer watcher.Stop()
				if err := watcher.Start(groupCtx); err != nil {
					logging.WarnWithContext(logger, "config hot reload unavailable", "config_watch_failed",
						logging.Error(err),
						logging.String(logging.FieldImpact, "config edits need a daemon restart"))
					return nil
				}
				<-groupCtx.Done()
				return nil
			})
		}
	}
	group.Go(func() error {
		ticker := time.NewTicker(maintenanceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case now := <-ticker.C:
				maintain(groupCtx, logger, cfg, store, now)
			}
		}
	})

	logger.Info("laserlink daemon running",
		logging.String(logging.FieldEventType, "daemon_running"),
		logging.String("socket", cfg.SocketPath()),
		logging.String("api", d.APIAddress()),
		logging.String("laser_port", settings.Laser.Port),
		logging.String("sfc_port", settings.SFC.Port),
		logging.String("mode", settings.Mode),
	)

	err = group.Wait()
	logger.Info("laserlink daemon shutting down")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newConfigWatcher(path string, logger *slog.Logger, levelVar *slog.LevelVar, br *bridge.Bridge) (*config.Watcher, error) {
	reloadLogger := logging.NewComponentLogger(logger, "config")
	return config.NewWatcher(path, config.WatcherOptions{
		Logger: reloadLogger,
		OnReload: func(next *config.Config) {
			levelVar.Set(logging.ParseLevel(next.Logging.Level))
			if err := br.ApplyConfig(next); err != nil {
				logging.WarnWithContext(reloadLogger, "config reload rejected", "config_reload_rejected",
					logging.Error(err),
					logging.String(logging.FieldImpact, "previous settings stay active"))
				return
			}
			reloadLogger.Info("config reloaded",
				logging.String(logging.FieldEventType, "config_reloaded"),
				logging.String("path", path))
		},
		OnError: func(err error) {
			logging.WarnWithContext(reloadLogger, "config reload failed", "config_reload_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "run laserlink config validate"),
				logging.String(logging.FieldImpact, "previous settings stay active"))
		},
	})
}

// maintain prunes old log files, captures and finished sessions.
func maintain(ctx context.Context, logger *slog.Logger, cfg *config.Config, store *sessions.Store, now time.Time) {
	days := cfg.Logging.RetentionDays
	if days <= 0 {
		return
	}
	logging.CleanupOldFiles(logger, days, now,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "*.log", Exclude: []string{filepath.Join(cfg.Paths.LogDir, logging.DaemonLogName)}},
		logging.RetentionTarget{Dir: cfg.Paths.CaptureDir, Pattern: "*.bin"},
		logging.RetentionTarget{Dir: cfg.Paths.CaptureDir, Pattern: "*.hex"},
	)
	removed, err := store.Prune(ctx, now.AddDate(0, 0, -days))
	if err != nil {
		logging.WarnWithContext(logger, "session prune failed", "session_prune_failed", logging.Error(err))
		return
	}
	if removed > 0 {
		logger.Info("pruned session history",
			logging.String(logging.FieldEventType, "session_prune"),
			logging.Int64("removed_count", removed),
			logging.Int("retention_days", days))
	}
}

func logPreflight(logger *slog.Logger, results []preflight.Result) {
	for _, r := range results {
		if r.Passed {
			logger.Debug("preflight check passed", logging.String("check", r.Name), logging.String("detail", r.Detail))
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldImpact, "the bridge keeps retrying until the problem is fixed"))
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
