package simulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"laserlink/internal/logging"
	"laserlink/internal/serialport"
	"laserlink/internal/services"
	"laserlink/internal/wire"
)

const defaultStepTimeout = 30 * time.Second

// LaserOptions configure the laser role.
type LaserOptions struct {
	Scenario Scenario
	// Trigger defaults to TriggerLine.
	Trigger     string
	StepTimeout time.Duration
	Logger      *slog.Logger
}

// Laser drives one handshake cycle.
type Laser struct {
	link    *serialport.Link
	pool    Pool
	trigger string
	timeout time.Duration
	logger  *slog.Logger
}

// NewLaser binds the laser role to a started link.
func NewLaser(link *serialport.Link, opts LaserOptions) *Laser {
	trigger := strings.TrimSpace(opts.Trigger)
	if trigger == "" {
		trigger = TriggerLine
	}
	timeout := opts.StepTimeout
	if timeout <= 0 {
		timeout = defaultStepTimeout
	}
	return &Laser{
		link:    link,
		pool:    PoolFor(opts.Scenario),
		trigger: trigger,
		timeout: timeout,
		logger:  logging.NewComponentLogger(opts.Logger, "sim-laser"),
	}
}

// Run sends the trigger, answers the DSN list with the carve result and
// returns once the final arrives. The observed transcript is returned even
// when the cycle fails.
func (l *Laser) Run(ctx context.Context) (Transcript, error) {
	var observed Transcript
	record := func(direction Direction, payload string) {
		observed = append(observed, Step{Index: len(observed) + 1, Direction: direction, Payload: payload})
	}

	if err := l.link.Send(ctx, l.trigger); err != nil {
		return observed, services.Wrap(services.ErrTransport, "trigger", "send", "", err)
	}
	record(LaserToSFC, l.trigger)
	l.logger.Info("trigger sent", logging.Payload(l.trigger))

	for {
		line, err := l.next(ctx)
		if err != nil {
			return observed, fmt.Errorf("step %d: %w", len(observed)+1, err)
		}
		kind := wire.Classify(wire.Parse(line.Text))
		switch kind {
		case wire.KindAck:
			record(SFCToLaser, line.Text)
		case wire.KindDSNList:
			record(SFCToLaser, line.Text)
			l.logger.Info("dsn list received", logging.Int("dsns", len(wire.Parse(line.Text).DSNs())))
			if err := l.link.Send(ctx, l.pool.Carve); err != nil {
				return observed, services.Wrap(services.ErrTransport, "carve", "send", "", err)
			}
			record(LaserToSFC, l.pool.Carve)
		case wire.KindFinal:
			record(SFCToLaser, line.Text)
			l.logger.Info("final received", logging.Payload(line.Text), logging.String("status", string(wire.InferStatus(line.Text))))
			return observed, nil
		case wire.KindFail:
			record(SFCToLaser, line.Text)
			return observed, services.Wrap(services.ErrRejected, "sfc", "trigger", "SFC returned FAIL", nil)
		default:
			l.logger.Debug("line ignored", logging.Payload(line.Text), logging.String("kind", string(kind)))
		}
	}
}

func (l *Laser) next(ctx context.Context) (serialport.Line, error) {
	stepCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	line, err := l.link.Next(stepCtx)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return line, services.Wrap(services.ErrTimeout, "laser", "wait", fmt.Sprintf("no SFC reply within %s", l.timeout), nil)
	}
	return line, err
}
