package bridge_test

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"laserlink/internal/bridge"
	"laserlink/internal/kpi"
	"laserlink/internal/metrics"
	"laserlink/internal/notifications"
	"laserlink/internal/serialport"
	"laserlink/internal/services"
	"laserlink/internal/sessions"
	"laserlink/internal/simulator"
	"laserlink/internal/testsupport"
	"laserlink/internal/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type pipeOpener struct {
	mu     sync.Mutex
	opens  map[bridge.Role]int
	lasers chan net.Conn
	sfcs   chan net.Conn
}

func newPipeOpener() *pipeOpener {
	return &pipeOpener{
		opens:  make(map[bridge.Role]int),
		lasers: make(chan net.Conn, 64),
		sfcs:   make(chan net.Conn, 64),
	}
}

func (o *pipeOpener) Open(role bridge.Role, _ serialport.Config) (io.ReadWriteCloser, error) {
	local, remote := net.Pipe()
	o.mu.Lock()
	o.opens[role]++
	o.mu.Unlock()
	if role == bridge.RoleLaser {
		o.lasers <- remote
	} else {
		o.sfcs <- remote
	}
	return local, nil
}

func (o *pipeOpener) next(t *testing.T, role bridge.Role) net.Conn {
	t.Helper()
	ch := o.sfcs
	if role == bridge.RoleLaser {
		ch = o.lasers
	}
	select {
	case conn := <-ch:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(3 * time.Second):
		t.Fatalf("bridge never opened the %s port", role)
		return nil
	}
}

type recorded struct {
	event   notifications.Event
	payload notifications.Payload
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recorded
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{event: event, payload: payload})
	return nil
}

func (r *recordingNotifier) find(event notifications.Event) (notifications.Payload, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.events {
		if rec.event == event {
			return rec.payload, true
		}
	}
	return nil, false
}

type harness struct {
	bridge   *bridge.Bridge
	opener   *pipeOpener
	store    *sessions.Store
	tracker  *kpi.Tracker
	metrics  *metrics.Registry
	notifier *recordingNotifier
	laser    *serialport.Link
	sfc      *serialport.Link
	ctx      context.Context
}

func startBridge(t *testing.T, mutate func(*bridge.Settings)) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithPorts("/dev/ttyLASER0", "/dev/ttySFC0"))
	settings, err := bridge.SettingsFromConfig(cfg)
	require.NoError(t, err)
	settings.LaserTimeout = 3 * time.Second
	settings.SFCTimeout = 2 * time.Second
	settings.IdleTail = 20 * time.Millisecond
	if mutate != nil {
		mutate(&settings)
	}

	h := &harness{
		opener:   newPipeOpener(),
		store:    testsupport.MustOpenStore(t, cfg),
		tracker:  kpi.NewTracker(kpi.Options{}),
		metrics:  metrics.New(),
		notifier: &recordingNotifier{},
	}
	h.bridge, err = bridge.New(bridge.Options{
		Settings:      settings,
		Opener:        h.opener,
		Store:         h.store,
		Metrics:       h.metrics,
		Tracker:       h.tracker,
		Notifier:      h.notifier,
		RetryInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.bridge.Run(runCtx) }()
	t.Cleanup(func() {
		stop()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("bridge Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("bridge did not stop")
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t.Cleanup(cancel)
	h.ctx = ctx
	h.laser = peerLink(t, ctx, h.opener.next(t, bridge.RoleLaser), "laser-peer")
	h.sfc = peerLink(t, ctx, h.opener.next(t, bridge.RoleSFC), "sfc-peer")
	return h
}

func peerLink(t *testing.T, ctx context.Context, conn net.Conn, name string) *serialport.Link {
	t.Helper()
	link := serialport.NewLink(conn, serialport.LinkOptions{Name: name})
	link.Start(ctx)
	t.Cleanup(func() { _ = link.Close() })
	return link
}

func (h *harness) serveSFC(scenario simulator.Scenario) {
	sfc := simulator.NewSFC(h.sfc, simulator.SFCOptions{Scenario: scenario})
	go func() { _ = sfc.Serve(h.ctx) }()
}

func (h *harness) runLaser(t *testing.T) (simulator.Transcript, error) {
	t.Helper()
	laser := simulator.NewLaser(h.laser, simulator.LaserOptions{StepTimeout: 5 * time.Second})
	return laser.Run(h.ctx)
}

func waitForStatus(t *testing.T, b *bridge.Bridge, cond func(bridge.Status) bool) bridge.Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		status := b.Status()
		if cond(status) {
			return status
		}
		if time.Now().After(deadline) {
			t.Fatalf("status condition not met; last status %+v", status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func onlySession(t *testing.T, h *harness) *sessions.Session {
	t.Helper()
	list, err := h.store.List(context.Background(), sessions.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	return list[0]
}

func TestHandshakePassRecordsSession(t *testing.T) {
	h := startBridge(t, nil)
	h.serveSFC(simulator.ScenarioPass)

	observed, err := h.runLaser(t)
	require.NoError(t, err)
	require.NoError(t, simulator.Verify(simulator.DefaultTranscript(), observed))

	status := waitForStatus(t, h.bridge, func(s bridge.Status) bool { return s.Passed == 1 })
	require.Equal(t, "PASS", status.LastStatus)
	require.Equal(t, bridge.StateListening, status.State)
	require.Empty(t, status.CurrentSession)

	sess := onlySession(t, h)
	require.Equal(t, status.LastSession, sess.ID)
	require.Equal(t, sessions.StatusPassed, sess.Status)
	require.Equal(t, sessions.StageDone, sess.Stage)
	require.Equal(t, "2790005577", sess.MO)
	require.Equal(t, "NEEDPSN12", sess.NeedPSN)
	require.Equal(t, simulator.FinalLine, sess.FinalResult)

	messages, err := h.store.Messages(context.Background(), sess.ID)
	require.NoError(t, err)
	payloads := make([]string, len(messages))
	for i, msg := range messages {
		payloads[i] = msg.Payload
	}
	if diff := cmp.Diff(simulator.DefaultTranscript().Payloads(), payloads); diff != "" {
		t.Fatalf("recorded transcript differs (-want +got):\n%s", diff)
	}
	require.Equal(t, sessions.DirectionLaserToSFC, messages[0].Direction)
	require.Equal(t, sessions.DirectionSFCToLaser, messages[4].Direction)

	require.Equal(t, 1, h.tracker.Report(time.Now()).Active().Total)
	count, err := testutil.GatherAndCount(h.metrics.Gatherer(), "laserlink_sessions_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestHandshakeSFCRejectsTrigger(t *testing.T) {
	h := startBridge(t, nil)
	h.serveSFC(simulator.ScenarioFail)

	_, err := h.runLaser(t)
	require.ErrorIs(t, err, services.ErrRejected)

	status := waitForStatus(t, h.bridge, func(s bridge.Status) bool { return s.Failed == 1 })
	require.Equal(t, "FAIL", status.LastStatus)

	sess := onlySession(t, h)
	require.Equal(t, sessions.StatusFailed, sess.Status)
	require.Equal(t, sessions.StageSFCRequest, sess.Stage)
	require.Contains(t, sess.Error, "SFC returned FAIL")

	payload, ok := h.notifier.find(notifications.EventSessionFailed)
	require.True(t, ok, "expected a session failed notification")
	require.Equal(t, "sfc_request", payload["stage"])
	require.Equal(t, "2790005577", payload["mo"])
}

func TestHandshakeRejectsInvalidTrigger(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*bridge.Settings)
		trigger string
	}{
		{name: "malformed", trigger: "hello world"},
		{name: "wrong mo", trigger: simulator.TriggerLine, mutate: func(s *bridge.Settings) { s.MO = "9999999999" }},
		{name: "wrong model", trigger: simulator.TriggerLine, mutate: func(s *bridge.Settings) { s.ModelCode = "NEEDPSN06" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := startBridge(t, tc.mutate)
			require.NoError(t, h.laser.Send(h.ctx, tc.trigger))

			waitForStatus(t, h.bridge, func(s bridge.Status) bool { return s.Failed == 1 })
			sess := onlySession(t, h)
			require.Equal(t, sessions.StageInputValidation, sess.Stage)
			require.Equal(t, sessions.StatusFailed, sess.Status)

			quiet, cancel := context.WithTimeout(h.ctx, 150*time.Millisecond)
			defer cancel()
			_, err := h.sfc.Next(quiet)
			require.ErrorIs(t, err, context.DeadlineExceeded, "nothing may reach the SFC")
			_, err = h.laser.Next(quiet)
			require.ErrorIs(t, err, context.DeadlineExceeded, "nothing may reach the laser")
		})
	}
}

func TestFinalizeTimeoutStillReleasesLaser(t *testing.T) {
	h := startBridge(t, func(s *bridge.Settings) { s.SFCTimeout = 250 * time.Millisecond })
	go func() {
		for {
			line, err := h.sfc.Next(h.ctx)
			if err != nil {
				return
			}
			if wire.Parse(line.Text).Kind() == wire.KindTrigger {
				_ = h.sfc.Send(h.ctx, simulator.AckLine)
				_ = h.sfc.Send(h.ctx, simulator.DSNListLine)
			}
		}
	}()

	observed, err := h.runLaser(t)
	require.NoError(t, err)
	require.Equal(t, simulator.FinalLine, observed[len(observed)-1].Payload)

	waitForStatus(t, h.bridge, func(s bridge.Status) bool { return s.Failed == 1 })
	sess := onlySession(t, h)
	require.Equal(t, sessions.StageSFCFinalize, sess.Stage)
	require.Equal(t, simulator.FinalLine, sess.FinalResult)
	require.Contains(t, sess.Error, "timeout")
}

func TestFinalWithoutPassIsReplaced(t *testing.T) {
	h := startBridge(t, nil)
	go func() {
		for {
			line, err := h.sfc.Next(h.ctx)
			if err != nil {
				return
			}
			switch wire.Parse(line.Text).Kind() {
			case wire.KindTrigger:
				_ = h.sfc.Send(h.ctx, simulator.AckLine)
				_ = h.sfc.Send(h.ctx, simulator.DSNListLine)
			case wire.KindCarveResult:
				_ = h.sfc.Send(h.ctx, "2505004562,PF2AS04TE,ERRO")
			}
		}
	}()

	observed, err := h.runLaser(t)
	require.NoError(t, err)
	require.Equal(t, simulator.FinalLine, observed[len(observed)-1].Payload)

	waitForStatus(t, h.bridge, func(s bridge.Status) bool { return s.Passed == 1 })
	require.Equal(t, sessions.StatusPassed, onlySession(t, h).Status)
}

// answerSFC acks triggers with the reference DSN list and answers carve
// results with the carve text plus PASS. Carve frames seen are sent on carves.
func (h *harness) answerSFC() <-chan string {
	carves := make(chan string, 4)
	go func() {
		for {
			line, err := h.sfc.Next(h.ctx)
			if err != nil {
				return
			}
			switch wire.Parse(line.Text).Kind() {
			case wire.KindTrigger:
				_ = h.sfc.Send(h.ctx, simulator.AckLine)
				_ = h.sfc.Send(h.ctx, simulator.DSNListLine)
			case wire.KindCarveResult:
				carves <- line.Text
				_ = h.sfc.Send(h.ctx, wire.FinalFor(line.Text))
			}
		}
	}()
	return carves
}

// awaitDSNList sends the trigger from the laser side and reads up to the DSN list.
func (h *harness) awaitDSNList(t *testing.T) {
	t.Helper()
	require.NoError(t, h.laser.Send(h.ctx, simulator.TriggerLine))
	for {
		readCtx, cancel := context.WithTimeout(h.ctx, 3*time.Second)
		line, err := h.laser.Next(readCtx)
		cancel()
		require.NoError(t, err)
		if line.Text == simulator.DSNListLine {
			return
		}
	}
}

func TestCarveTimeoutFailsAtLaserCarving(t *testing.T) {
	h := startBridge(t, func(s *bridge.Settings) { s.LaserTimeout = 200 * time.Millisecond })
	h.answerSFC()
	h.awaitDSNList(t)

	waitForStatus(t, h.bridge, func(s bridge.Status) bool { return s.Failed == 1 })
	sess := onlySession(t, h)
	require.Equal(t, sessions.StatusFailed, sess.Status)
	require.Equal(t, sessions.StageLaserCarving, sess.Stage)
	require.Contains(t, sess.Error, "timeout")
	require.Empty(t, sess.FinalResult)
}

func TestFailedCarveStillReleasesLaser(t *testing.T) {
	const failedCarve = "2505004562,PF2AS04TE,PASSED=0"
	h := startBridge(t, nil)
	carves := h.answerSFC()
	h.awaitDSNList(t)

	require.NoError(t, h.laser.Send(h.ctx, failedCarve))
	readCtx, cancel := context.WithTimeout(h.ctx, 3*time.Second)
	defer cancel()
	final, err := h.laser.Next(readCtx)
	require.NoError(t, err)
	require.Equal(t, failedCarve+"PASS", final.Text)
	require.Equal(t, failedCarve, <-carves)

	waitForStatus(t, h.bridge, func(s bridge.Status) bool { return s.Failed == 1 })
	sess := onlySession(t, h)
	require.Equal(t, sessions.StatusFailed, sess.Status)
	require.Equal(t, sessions.StageLaserCarving, sess.Stage)
	require.Equal(t, failedCarve+"PASS", sess.FinalResult)
	require.Equal(t, 0, h.tracker.Report(time.Now()).Active().Pass)
}

func TestStrayLaserLinesAreNotForwarded(t *testing.T) {
	h := startBridge(t, nil)
	carves := h.answerSFC()
	h.awaitDSNList(t)

	require.NoError(t, h.laser.Send(h.ctx, "READY"))
	require.NoError(t, h.laser.Send(h.ctx, simulator.CarveLine))
	readCtx, cancel := context.WithTimeout(h.ctx, 3*time.Second)
	defer cancel()
	final, err := h.laser.Next(readCtx)
	require.NoError(t, err)
	require.Equal(t, simulator.FinalLine, final.Text)
	require.Equal(t, simulator.CarveLine, <-carves)

	waitForStatus(t, h.bridge, func(s bridge.Status) bool { return s.Passed == 1 })
	sess := onlySession(t, h)
	messages, err := h.store.Messages(context.Background(), sess.ID)
	require.NoError(t, err)
	for _, msg := range messages {
		require.NotContains(t, msg.Payload, "READY")
	}
}

func TestRelayWritesBackUntilHoldPoint(t *testing.T) {
	h := startBridge(t, func(s *bridge.Settings) { s.Mode = bridge.ModeRelay })
	go func() {
		for {
			line, err := h.sfc.Next(h.ctx)
			if err != nil {
				return
			}
			switch wire.Parse(line.Text).Kind() {
			case wire.KindTrigger:
				_ = h.sfc.Send(h.ctx, simulator.AckLine)
			case wire.KindCarveResult:
				_ = h.sfc.Send(h.ctx, simulator.FinalLine)
			}
		}
	}()

	require.NoError(t, h.laser.Send(h.ctx, simulator.TriggerLine))
	readCtx, cancel := context.WithTimeout(h.ctx, 3*time.Second)
	defer cancel()
	line, err := h.laser.Next(readCtx)
	require.NoError(t, err)
	require.Equal(t, simulator.AckLine, line.Text)

	status := waitForStatus(t, h.bridge, func(s bridge.Status) bool { return s.LastEvent == bridge.EventSFCOK })
	require.Equal(t, bridge.StateTesting, status.State)
	require.True(t, h.bridge.Testing())

	require.NoError(t, h.laser.Send(h.ctx, simulator.CarveLine))
	status = waitForStatus(t, h.bridge, func(s bridge.Status) bool { return s.LastEvent == bridge.EventHold })
	require.Equal(t, bridge.StateListening, status.State)
	require.Equal(t, simulator.FinalLine, status.LastResponse)
	require.Equal(t, "PASS", status.LastStatus)
	require.False(t, h.bridge.Testing())

	quiet, stop := context.WithTimeout(h.ctx, 150*time.Millisecond)
	defer stop()
	_, err = h.laser.Next(quiet)
	require.ErrorIs(t, err, context.DeadlineExceeded, "hold point reply must not reach the laser")
}

func TestRelayTimeoutEndsChain(t *testing.T) {
	h := startBridge(t, func(s *bridge.Settings) {
		s.Mode = bridge.ModeRelay
		s.SFCTimeout = 100 * time.Millisecond
	})
	go func() {
		for {
			if _, err := h.sfc.Next(h.ctx); err != nil {
				return
			}
		}
	}()

	require.NoError(t, h.laser.Send(h.ctx, simulator.TriggerLine))
	status := waitForStatus(t, h.bridge, func(s bridge.Status) bool { return s.LastEvent == bridge.EventSFCTimeout })
	require.Equal(t, "TIMEOUT", status.LastStatus)
	require.Equal(t, bridge.StateListening, status.State)
}

func TestApplyPortChangeReopensLinks(t *testing.T) {
	h := startBridge(t, nil)
	waitForStatus(t, h.bridge, func(s bridge.Status) bool { return s.Connected })

	require.Error(t, h.bridge.Apply(bridge.Settings{Mode: "mirror"}))

	next := h.bridge.Settings()
	next.Laser.Port = "/dev/ttyLASER1"
	require.NoError(t, h.bridge.Apply(next))

	h.opener.next(t, bridge.RoleLaser)
	h.opener.next(t, bridge.RoleSFC)
	status := waitForStatus(t, h.bridge, func(s bridge.Status) bool { return s.Connected && s.LaserPort == "/dev/ttyLASER1" })
	require.Equal(t, bridge.StateListening, status.State)
}

func TestLostPortIsNotifiedAndRestored(t *testing.T) {
	h := startBridge(t, nil)
	waitForStatus(t, h.bridge, func(s bridge.Status) bool { return s.Connected })

	require.NoError(t, h.laser.Close())

	h.opener.next(t, bridge.RoleLaser)
	h.opener.next(t, bridge.RoleSFC)
	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, ok := h.notifier.find(notifications.EventPortRestored); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expected a port restored notification")
		}
		time.Sleep(10 * time.Millisecond)
	}
	lost, ok := h.notifier.find(notifications.EventPortLost)
	require.True(t, ok)
	require.Equal(t, "laser", lost["role"])
	require.Equal(t, "/dev/ttyLASER0", lost["port"])
}

func TestPortEventsMatchConfiguredDevices(t *testing.T) {
	h := startBridge(t, nil)
	require.False(t, h.bridge.PortAdded("ttyUSB9"))
	require.True(t, h.bridge.PortAdded("ttySFC0"))
	require.False(t, h.bridge.PortRemoved(context.Background(), "/dev/ttyUSB9"))
	require.True(t, h.bridge.PortRemoved(context.Background(), "/dev/ttySFC0"))

	payload, ok := h.notifier.find(notifications.EventPortLost)
	require.True(t, ok)
	require.Equal(t, "sfc", payload["role"])

	h.opener.next(t, bridge.RoleLaser)
	h.opener.next(t, bridge.RoleSFC)
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithPorts("/dev/ttyUSB3", "/dev/ttyUSB4"), testsupport.WithCapture())
	cfg.Production.EnforceModel = true
	cfg.Production.MO = " 2790005577 "

	settings, err := bridge.SettingsFromConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, bridge.ModeHandshake, settings.Mode)
	require.Equal(t, "/dev/ttyUSB3", settings.Laser.Port)
	require.Equal(t, cfg.PortLockDir(), settings.SFC.LockDir)
	require.Equal(t, "NEEDPSN06", settings.ModelCode)
	require.Equal(t, "2790005577", settings.MO)
	require.Equal(t, cfg.Paths.CaptureDir, settings.CaptureDir)
	require.Equal(t, 7*time.Second, settings.SFCTimeout)
	require.NotEmpty(t, settings.Rules)

	cfg.Production.EnforceModel = false
	cfg.Framing.Charset = "ebcdic"
	_, err = bridge.SettingsFromConfig(cfg)
	require.Error(t, err)
}

func TestNewRejectsUnknownMode(t *testing.T) {
	_, err := bridge.New(bridge.Options{Settings: bridge.Settings{Mode: "mirror"}})
	if err == nil || errors.Is(err, context.Canceled) {
		t.Fatalf("expected mode error, got %v", err)
	}
}
