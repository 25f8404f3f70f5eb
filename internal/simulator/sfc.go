package simulator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"laserlink/internal/logging"
	"laserlink/internal/serialport"
	"laserlink/internal/wire"
)

// SFCOptions configure the SFC role.
type SFCOptions struct {
	Scenario      Scenario
	ResponseDelay time.Duration
	Logger        *slog.Logger
}

// SFC answers triggers and carve results on one link.
type SFC struct {
	link   *serialport.Link
	pool   Pool
	delay  time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	triggers int
	finals   int
}

// NewSFC binds the SFC role to a started link.
func NewSFC(link *serialport.Link, opts SFCOptions) *SFC {
	return &SFC{
		link:   link,
		pool:   PoolFor(opts.Scenario),
		delay:  opts.ResponseDelay,
		logger: logging.NewComponentLogger(opts.Logger, "sim-sfc"),
	}
}

// Serve handles lines until ctx is cancelled or the link closes. Both end
// the loop without error.
func (s *SFC) Serve(ctx context.Context) error {
	for {
		line, err := s.link.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, serialport.ErrClosed) {
				return nil
			}
			return err
		}
		if err := s.handle(ctx, line.Text); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// Counts returns how many triggers were answered and finals sent.
func (s *SFC) Counts() (triggers, finals int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.triggers, s.finals
}

func (s *SFC) handle(ctx context.Context, text string) error {
	msg := wire.Parse(text)
	switch msg.Kind() {
	case wire.KindTrigger:
		s.logger.Info("trigger received", logging.Payload(text))
		s.mu.Lock()
		s.triggers++
		s.mu.Unlock()
		if err := s.reply(ctx, s.pool.Ack); err != nil {
			return err
		}
		if s.pool.DSNList == "" {
			return nil
		}
		return s.reply(ctx, s.pool.DSNList)
	case wire.KindCarveResult:
		s.logger.Info("carve result received", logging.Payload(text), logging.String("status", string(wire.InferStatus(text))))
		if err := s.reply(ctx, wire.FinalFor(text)); err != nil {
			return err
		}
		s.mu.Lock()
		s.finals++
		s.mu.Unlock()
		return nil
	default:
		s.logger.Debug("line ignored", logging.Payload(text), logging.String("kind", string(msg.Kind())))
		return nil
	}
}

func (s *SFC) reply(ctx context.Context, text string) error {
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return s.link.Send(ctx, text)
}
