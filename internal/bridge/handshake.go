package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"laserlink/internal/logging"
	"laserlink/internal/serialport"
	"laserlink/internal/services"
	"laserlink/internal/sessions"
	"laserlink/internal/wire"
)

func (b *Bridge) handshake(ctx context.Context, pair *linkPair, settings Settings, line serialport.Line) {
	text := strings.TrimSpace(line.Text)
	trigger, err := wire.ParseTrigger(text, settings.MO)
	if err == nil && settings.ModelCode != "" && trigger.NeedPSN != settings.ModelCode {
		err = fmt.Errorf("%w: %s does not match model %s (%s)", wire.ErrInvalidTrigger, trigger.NeedPSN, settings.Model, settings.ModelCode)
	}
	if err != nil {
		needPSN, _ := wire.FindNeedPSN(text)
		sess := b.beginSession(ctx, wire.Parse(text).MO(), needPSN, settings.Model, text)
		sess.message(sessions.DirectionLaserToSFC, text)
		sess.finish(sessions.StageInputValidation, "", services.Wrap(services.ErrValidation, "input_validation", "parse trigger", "", err))
		b.setState(StateListening)
		return
	}

	sess := b.beginSession(ctx, trigger.MO, trigger.NeedPSN, settings.Model, text)
	b.setState(StateTesting)
	stage, final, err := b.runHandshake(ctx, pair, settings, sess, trigger)
	if err != nil && ctx.Err() != nil {
		err = services.Wrap(services.ErrTransport, string(stage), "", sessions.DaemonStopReason, ctx.Err())
	}
	sess.finish(stage, final, err)
	b.setState(StateListening)
}

// runHandshake walks the stages after validation. It returns the stage the
// session ended in and the final delivered to the laser, if any.
func (b *Bridge) runHandshake(ctx context.Context, pair *linkPair, settings Settings, sess *session, trigger wire.Trigger) (sessions.Stage, string, error) {
	request := trigger.String()
	sess.message(sessions.DirectionLaserToSFC, request)

	sess.setStage(sessions.StageSFCRequest)
	pair.sfc.Clear()
	if err := pair.sfc.Send(ctx, request); err != nil {
		return sessions.StageSFCRequest, "", services.Wrap(services.ErrTransport, "sfc_request", "forward trigger", "", err)
	}
	for {
		resp, err := pair.sfc.Receive(ctx, serialport.ReceiveOptions{
			Timeout:  settings.SFCTimeout,
			Rules:    settings.Rules,
			IdleTail: -1,
			Tag:      "sfc_request",
		})
		if err != nil {
			return sessions.StageSFCRequest, "", exchangeError("sfc_request", "await SFC reply", err)
		}
		frame := resp.Text
		sess.message(sessions.DirectionSFCToLaser, frame)
		b.updateStatus(func(s *Status) { s.LastResponse = frame })
		if err := pair.laser.Send(ctx, frame); err != nil {
			return sessions.StageSFCRequest, "", services.Wrap(services.ErrTransport, "sfc_request", "forward SFC reply", "", err)
		}

		msg := wire.Parse(frame)
		if msg.Kind() == wire.KindDSNList {
			sess.logger.Info("dsn list delivered", logging.Int("dsns", len(msg.DSNs())))
			break
		}
		if wire.InferStatus(frame) == wire.StatusFail {
			return sessions.StageSFCRequest, "", services.Wrap(services.ErrRejected, "sfc_request", "trigger", "SFC returned FAIL", nil)
		}
		// An ack or an unrecognised frame: keep waiting for the DSN list.
	}

	sess.setStage(sessions.StageLaserCarving)
	resp, err := pair.laser.Receive(ctx, serialport.ReceiveOptions{
		Timeout:  settings.LaserTimeout,
		Rules:    settings.Rules,
		IdleTail: -1,
		Tag:      "laser_carving",
		Accept:   isCarveFrame,
	})
	for _, stray := range resp.Skipped {
		sess.logger.Warn("laser line ignored while waiting for carve result",
			logging.Payload(stray.Text),
			logging.String(logging.FieldEventType, "laser_stray_line"),
		)
	}
	if err != nil {
		return sessions.StageLaserCarving, "", exchangeError("laser_carving", "await carve result", err)
	}
	carve := resp.Text
	sess.message(sessions.DirectionLaserToSFC, carve)
	b.updateStatus(func(s *Status) { s.LastRequest = carve })
	if kind := wire.Parse(carve).Kind(); kind != wire.KindCarveResult {
		sess.logger.Warn("laser frame is not a carve result; forwarding anyway",
			logging.Payload(carve),
			logging.String("kind", string(kind)),
		)
	}

	sess.setStage(sessions.StageSFCFinalize)
	reply, err := pair.sfc.Exchange(ctx, carve, serialport.ExchangeOptions{
		Clear: true,
		ReceiveOptions: serialport.ReceiveOptions{
			Timeout:  settings.SFCTimeout,
			Rules:    settings.Rules,
			IdleTail: settings.IdleTail,
			Tag:      "sfc_finalize",
		},
	})
	var finalizeErr error
	final := ""
	if err != nil {
		finalizeErr = exchangeError("sfc_finalize", "await SFC final", err)
	} else {
		final = strings.TrimSpace(reply.Text)
	}
	if !wire.EndsWithPass(final) {
		if final != "" {
			sess.logger.Warn("SFC final does not end in PASS; releasing laser with carve result",
				logging.Payload(final),
				logging.String(logging.FieldEventType, "final_synthesised"),
			)
		}
		final = wire.FinalFor(carve)
	}
	if err := pair.laser.Send(ctx, final); err != nil && finalizeErr == nil {
		finalizeErr = services.Wrap(services.ErrTransport, "sfc_finalize", "release laser", "", err)
	}
	sess.message(sessions.DirectionSFCToLaser, final)
	b.updateStatus(func(s *Status) { s.LastResponse = final })
	if finalizeErr != nil {
		return sessions.StageSFCFinalize, final, finalizeErr
	}
	if wire.InferStatus(final) == wire.StatusFail {
		return sessions.StageLaserCarving, final, services.Wrap(services.ErrRejected, "laser_carving", "carve", "carve result reported failure", nil)
	}
	return sessions.StageDone, final, nil
}

// isCarveFrame accepts what may answer a DSN list: a carve result, or a FAIL
// the SFC should still see.
func isCarveFrame(text string) bool {
	switch wire.Parse(strings.TrimSpace(text)).Kind() {
	case wire.KindCarveResult, wire.KindFail:
		return true
	}
	return false
}

func exchangeError(stage, op string, err error) error {
	if errors.Is(err, serialport.ErrNoResponse) || errors.Is(err, serialport.ErrIncomplete) {
		return services.Wrap(services.ErrTimeout, stage, op, "", err)
	}
	return services.Wrap(services.ErrTransport, stage, op, "", err)
}
