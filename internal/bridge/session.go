package bridge

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"laserlink/internal/logging"
	"laserlink/internal/notifications"
	"laserlink/internal/services"
	"laserlink/internal/sessions"
)

// session tracks one handshake and mirrors it into the store, metrics, KPI
// tracker and notifier. Persistence failures are logged and never interrupt
// the line.
type session struct {
	b       *Bridge
	ctx     context.Context
	id      string
	mo      string
	started time.Time
	logger  *slog.Logger
}

func (b *Bridge) beginSession(ctx context.Context, mo, needPSN, model, request string) *session {
	id := uuid.NewString()
	ctx = services.WithSessionID(context.WithoutCancel(ctx), id)
	s := &session{
		b:       b,
		ctx:     ctx,
		id:      id,
		mo:      mo,
		started: b.now(),
		logger:  logging.WithContext(ctx, b.logger),
	}
	if b.store != nil {
		if _, err := b.store.Create(ctx, sessions.NewSession{
			ID:        id,
			MO:        mo,
			NeedPSN:   needPSN,
			Model:     model,
			StartedAt: s.started,
		}); err != nil {
			s.persistFailed("create session", err)
		}
	}
	b.updateStatus(func(st *Status) {
		st.CurrentSession = id
		st.LastRequest = request
		st.LastResponse = ""
		st.LastError = ""
	})
	s.logger.Info("session started", logging.String("mo", mo), logging.String("need_psn", needPSN))
	return s
}

func (s *session) setStage(stage sessions.Stage) {
	s.logger = logging.WithContext(services.WithStage(s.ctx, string(stage)), s.b.logger)
	if s.b.store == nil {
		return
	}
	if err := s.b.store.SetStage(s.ctx, s.id, stage); err != nil {
		s.persistFailed("set stage", err)
	}
}

func (s *session) message(direction sessions.Direction, payload string) {
	s.logger.Info("message", logging.String(logging.FieldDirection, string(direction)), logging.Payload(payload))
	if s.b.store == nil {
		return
	}
	if _, err := s.b.store.AppendMessage(s.ctx, s.id, direction, payload); err != nil {
		s.persistFailed("append message", err)
	}
}

// finish records the outcome. A nil err means the session passed.
func (s *session) finish(stage sessions.Stage, final string, err error) {
	finishedAt := s.b.now()
	cycle := finishedAt.Sub(s.started)
	status := sessions.StatusPassed
	reason := ""
	if err != nil {
		status = sessions.StatusFailed
		reason = err.Error()
	}

	if s.b.store != nil {
		if _, storeErr := s.b.store.Finish(s.ctx, s.id, sessions.FinishParams{
			Status:      status,
			Stage:       stage,
			Error:       reason,
			FinalResult: final,
			FinishedAt:  finishedAt,
		}); storeErr != nil {
			s.persistFailed("finish session", storeErr)
		}
	}
	if s.b.metrics != nil {
		s.b.metrics.ObserveSession(string(status), string(stage), cycle)
	}
	if s.b.tracker != nil {
		s.b.tracker.Record(finishedAt, err == nil, cycle)
	}

	lastStatus := "PASS"
	if err != nil {
		lastStatus = statusLabel(err)
	}
	s.b.updateStatus(func(st *Status) {
		st.CurrentSession = ""
		st.LastSession = s.id
		st.LastStatus = lastStatus
		if err != nil {
			st.Failed++
			st.LastError = reason
			st.LastEvent = EventError
		} else {
			st.Passed++
			st.LastEvent = EventSFCOK
		}
	})

	attrs := []logging.Attr{
		logging.String("status", string(status)),
		logging.String(logging.FieldStage, string(stage)),
		logging.Int64("cycle_ms", cycle.Milliseconds()),
	}
	if err == nil {
		s.logger.Info("session finished", logging.Args(attrs...)...)
		return
	}
	attrs = append(attrs,
		logging.Error(err),
		logging.String("reason", services.Reason(err)),
		logging.String(logging.FieldErrorHint, hintFor(stage)),
		logging.String(logging.FieldImpact, "the part was not released as passed"),
	)
	logging.WarnWithContext(s.logger, "session failed", "session_failed", attrs...)
	s.b.publish(s.ctx, notifications.EventSessionFailed, notifications.Payload{
		"mo":         s.mo,
		"stage":      string(stage),
		"error":      err,
		"session_id": s.id,
	})
}

func (s *session) persistFailed(op string, err error) {
	logging.WarnWithContext(s.logger, "session persistence failed", "session_store_failed",
		logging.String("operation", op),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check the sessions database in state_dir"),
		logging.String(logging.FieldImpact, "the session history is incomplete"),
	)
}

func statusLabel(err error) string {
	switch services.Reason(err) {
	case "timeout":
		return "TIMEOUT"
	case "transport":
		return "SFC_ERROR"
	default:
		return "FAIL"
	}
}

func hintFor(stage sessions.Stage) string {
	switch stage {
	case sessions.StageInputValidation:
		return "check production.mo and the model selected on the laser"
	case sessions.StageSFCRequest, sessions.StageSFCFinalize:
		return "check the SFC link and timeouts.sfc_tx_sec"
	case sessions.StageLaserCarving:
		return "check the laser program and timeouts.laser_tx_sec"
	default:
		return "check the daemon log for details"
	}
}
