package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"laserlink/internal/config"
	"laserlink/internal/kpi"
	"laserlink/internal/logging"
	"laserlink/internal/metrics"
	"laserlink/internal/notifications"
	"laserlink/internal/serialport"
	"laserlink/internal/sessions"
)

const defaultRetryInterval = 2 * time.Second

var errReopen = errors.New("port settings changed")

// Options wire the bridge to its collaborators. Store, Metrics, Tracker and
// Notifier are optional.
type Options struct {
	Settings Settings
	Opener   Opener
	Store    *sessions.Store
	Metrics  *metrics.Registry
	Tracker  *kpi.Tracker
	Notifier notifications.Service
	Logger   *slog.Logger
	// RetryInterval is the pause between failed attempts to open the ports.
	RetryInterval time.Duration
	Now           func() time.Time
}

// Bridge owns both links and runs one session at a time.
type Bridge struct {
	opener   Opener
	store    *sessions.Store
	metrics  *metrics.Registry
	tracker  *kpi.Tracker
	notifier notifications.Service
	base     *slog.Logger
	logger   *slog.Logger
	retry    time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	settings Settings
	status   Status
	pair     *linkPair
	lost     map[Role]bool
	chain    bool

	running       atomic.Bool
	reopenPending atomic.Bool
	reopen        chan struct{}
	wake          chan struct{}
}

// New validates settings and builds a stopped bridge.
func New(opts Options) (*Bridge, error) {
	if err := validateMode(opts.Settings.Mode); err != nil {
		return nil, err
	}
	opener := opts.Opener
	if opener == nil {
		opener = DeviceOpener
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewNoop()
	}
	retry := opts.RetryInterval
	if retry <= 0 {
		retry = defaultRetryInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	b := &Bridge{
		opener:   opener,
		store:    opts.Store,
		metrics:  opts.Metrics,
		tracker:  opts.Tracker,
		notifier: notifier,
		base:     opts.Logger,
		logger:   logging.NewComponentLogger(opts.Logger, "bridge"),
		retry:    retry,
		now:      now,
		settings: opts.Settings,
		status:   Status{State: StateStopped},
		lost:     make(map[Role]bool),
		reopen:   make(chan struct{}, 1),
		wake:     make(chan struct{}, 1),
	}
	if b.metrics != nil {
		b.metrics.SetBridgeMode(StateStopped)
	}
	return b, nil
}

func validateMode(mode string) error {
	switch mode {
	case ModeHandshake, ModeRelay:
		return nil
	default:
		return fmt.Errorf("unsupported bridge mode %q", mode)
	}
}

// Settings returns the settings currently in force.
func (b *Bridge) Settings() Settings {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.settings
}

// Apply replaces the runtime settings. Break rules, timeouts, production
// values and the mode apply to the next frame. Port, framing or capture
// changes reopen the links once the current session ends.
func (b *Bridge) Apply(next Settings) error {
	if err := validateMode(next.Mode); err != nil {
		return err
	}
	b.mu.Lock()
	prev := b.settings
	b.settings = next
	pair := b.pair
	b.mu.Unlock()

	if pair != nil {
		pair.laser.SetRules(next.Rules)
		pair.sfc.SetRules(next.Rules)
		pair.laser.SetIdleTail(next.IdleTail)
		pair.sfc.SetIdleTail(next.IdleTail)
	}
	if prev.portsChanged(next) {
		b.logger.Info("port settings changed; links will reopen",
			logging.String("laser_port", next.Laser.Port),
			logging.String("sfc_port", next.SFC.Port),
		)
		b.RequestReopen()
	}
	if prev.Mode != next.Mode {
		b.logger.Info("bridge mode changed", logging.String("from", prev.Mode), logging.String("to", next.Mode))
	}
	return nil
}

// ApplyConfig derives settings from cfg and applies them.
func (b *Bridge) ApplyConfig(cfg *config.Config) error {
	settings, err := SettingsFromConfig(cfg)
	if err != nil {
		return err
	}
	return b.Apply(settings)
}

// RequestReopen closes and reopens both links before the next session.
func (b *Bridge) RequestReopen() {
	b.reopenPending.Store(true)
	select {
	case b.reopen <- struct{}{}:
	default:
	}
	b.wakeUp()
}

// PortAdded reacts to a hotplugged device. It returns true when device is one
// of the configured ports.
func (b *Bridge) PortAdded(device string) bool {
	if _, ok := b.roleFor(device); !ok {
		return false
	}
	b.wakeUp()
	return true
}

// PortRemoved reacts to an unplugged device. It returns true when device is
// one of the configured ports.
func (b *Bridge) PortRemoved(ctx context.Context, device string) bool {
	role, ok := b.roleFor(device)
	if !ok {
		return false
	}
	b.markLost(ctx, role, device, errors.New("device removed"))
	b.RequestReopen()
	return true
}

func (b *Bridge) roleFor(device string) (Role, bool) {
	name := filepath.Base(strings.TrimSpace(device))
	if name == "" || name == "." || name == "/" {
		return "", false
	}
	settings := b.Settings()
	switch name {
	case filepath.Base(settings.Laser.Port):
		return RoleLaser, true
	case filepath.Base(settings.SFC.Port):
		return RoleSFC, true
	default:
		return "", false
	}
}

func (b *Bridge) wakeUp() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Run opens the ports and serves frames until ctx is cancelled. Lost ports
// are reopened every RetryInterval.
func (b *Bridge) Run(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return errors.New("bridge already running")
	}
	defer b.running.Store(false)
	defer b.updateStatus(func(s *Status) {
		s.State = StateStopped
		s.Connected = false
		s.CurrentSession = ""
	})

	b.setState(StateIdle)
	for {
		if ctx.Err() != nil {
			return nil
		}
		b.reopenPending.Store(false)
		select {
		case <-b.reopen:
		default:
		}

		pair, err := b.open(ctx)
		if err != nil {
			b.recordFailure(err)
			if !b.pause(ctx) {
				return nil
			}
			continue
		}

		err = b.serve(ctx, pair)
		b.release(pair)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, errReopen) {
			continue
		}
		var linkErr *LinkError
		if errors.As(err, &linkErr) {
			b.markLost(ctx, linkErr.Role, linkErr.Port, linkErr.Err)
		}
		b.recordFailure(err)
		if !b.pause(ctx) {
			return nil
		}
	}
}

func (b *Bridge) pause(ctx context.Context) bool {
	timer := time.NewTimer(b.retry)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	case <-b.wake:
	}
	return true
}

func (b *Bridge) recordFailure(err error) {
	logging.WarnWithContext(b.logger, "bridge ports unavailable", "bridge_ports_unavailable",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the serial cables and the [serial] port settings"),
		logging.String(logging.FieldImpact, "no sessions run until both ports are open"),
	)
	b.updateStatus(func(s *Status) {
		s.State = StateError
		s.Connected = false
		s.LastEvent = EventError
		s.LastError = err.Error()
	})
}

func (b *Bridge) serve(ctx context.Context, pair *linkPair) error {
	for {
		line, err := b.awaitLaser(ctx, pair)
		if err != nil {
			return err
		}
		settings := b.Settings()
		if settings.Mode == ModeRelay {
			b.relay(ctx, pair, settings, line)
		} else {
			b.handshake(ctx, pair, settings, line)
		}
		if err := pair.err(); err != nil {
			return err
		}
	}
}

// awaitLaser blocks for the next laser line. A reopen request or a lost SFC
// link interrupts the wait.
func (b *Bridge) awaitLaser(ctx context.Context, pair *linkPair) (serialport.Line, error) {
	for {
		if b.reopenPending.Load() {
			return serialport.Line{}, errReopen
		}
		waitCtx, cancel := context.WithCancel(ctx)
		go func() {
			select {
			case <-b.reopen:
				cancel()
			case <-pair.sfc.Done():
				cancel()
			case <-waitCtx.Done():
			}
		}()
		line, err := pair.laser.Next(waitCtx)
		cancel()
		if err == nil {
			return line, nil
		}
		if ctx.Err() != nil {
			return serialport.Line{}, ctx.Err()
		}
		if linkErr := pair.err(); linkErr != nil {
			return serialport.Line{}, linkErr
		}
		if errors.Is(err, context.Canceled) {
			continue
		}
		return serialport.Line{}, err
	}
}

func (b *Bridge) markLost(ctx context.Context, role Role, port string, cause error) {
	b.mu.Lock()
	already := b.lost[role]
	b.lost[role] = true
	b.mu.Unlock()
	if already {
		return
	}
	logging.WarnWithContext(b.logger, "serial port lost", "port_lost",
		logging.String("role", string(role)),
		logging.String(logging.FieldPort, port),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "reconnect the cable or USB adapter"),
		logging.String(logging.FieldImpact, "the bridge retries until the port returns"),
	)
	b.publish(ctx, notifications.EventPortLost, notifications.Payload{
		"role":  string(role),
		"port":  port,
		"error": cause,
	})
}

func (b *Bridge) markRestored(ctx context.Context, role Role, port string) {
	b.mu.Lock()
	wasLost := b.lost[role]
	delete(b.lost, role)
	b.mu.Unlock()
	if !wasLost {
		return
	}
	b.logger.Info("serial port restored", logging.String("role", string(role)), logging.String(logging.FieldPort, port))
	b.publish(ctx, notifications.EventPortRestored, notifications.Payload{
		"role": string(role),
		"port": port,
	})
}

func (b *Bridge) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := b.notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		b.logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
	}
}
