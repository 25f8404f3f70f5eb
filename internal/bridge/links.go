package bridge

import (
	"context"
	"fmt"
	"io"

	"laserlink/internal/logging"
	"laserlink/internal/serialport"
)

// LinkError reports a port that could not be opened or stopped reading.
type LinkError struct {
	Role Role
	Port string
	Err  error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("%s port %s: %v", e.Role, e.Port, e.Err)
}

func (e *LinkError) Unwrap() error {
	return e.Err
}

type linkPair struct {
	laser     *serialport.Link
	sfc       *serialport.Link
	laserPort string
	sfcPort   string
}

// err returns a LinkError for the first link whose read loop has stopped.
func (p *linkPair) err() error {
	check := func(role Role, port string, link *serialport.Link) error {
		select {
		case <-link.Done():
			cause := link.Err()
			if cause == nil {
				cause = serialport.ErrClosed
			}
			return &LinkError{Role: role, Port: port, Err: cause}
		default:
			return nil
		}
	}
	if err := check(RoleLaser, p.laserPort, p.laser); err != nil {
		return err
	}
	return check(RoleSFC, p.sfcPort, p.sfc)
}

func (b *Bridge) open(ctx context.Context) (*linkPair, error) {
	settings := b.Settings()

	laserPort, err := b.opener.Open(RoleLaser, settings.Laser)
	if err != nil {
		linkErr := &LinkError{Role: RoleLaser, Port: settings.Laser.Port, Err: err}
		b.markLost(ctx, RoleLaser, settings.Laser.Port, err)
		return nil, linkErr
	}
	sfcPort, err := b.opener.Open(RoleSFC, settings.SFC)
	if err != nil {
		_ = laserPort.Close()
		linkErr := &LinkError{Role: RoleSFC, Port: settings.SFC.Port, Err: err}
		b.markLost(ctx, RoleSFC, settings.SFC.Port, err)
		return nil, linkErr
	}

	var capture *serialport.Capture
	if settings.CaptureDir != "" {
		capture = serialport.NewCapture(settings.CaptureDir)
	}
	pair := &linkPair{
		laser:     b.newLink(laserPort, settings.Laser.Port, settings, capture),
		sfc:       b.newLink(sfcPort, settings.SFC.Port, settings, capture),
		laserPort: settings.Laser.Port,
		sfcPort:   settings.SFC.Port,
	}
	pair.laser.Start(ctx)
	pair.sfc.Start(ctx)

	b.markRestored(ctx, RoleLaser, settings.Laser.Port)
	b.markRestored(ctx, RoleSFC, settings.SFC.Port)

	b.mu.Lock()
	b.pair = pair
	b.chain = false
	b.mu.Unlock()
	b.updateStatus(func(s *Status) {
		s.State = StateListening
		s.Connected = true
		s.LastError = ""
	})
	b.logger.Info("bridge listening",
		logging.String("laser_port", settings.Laser.Port),
		logging.String("sfc_port", settings.SFC.Port),
		logging.String("mode", settings.Mode),
	)
	return pair, nil
}

func (b *Bridge) newLink(port io.ReadWriteCloser, name string, settings Settings, capture *serialport.Capture) *serialport.Link {
	opts := serialport.LinkOptions{
		Name:     name,
		Framing:  settings.Framing,
		Rules:    settings.Rules,
		IdleTail: settings.IdleTail,
		Logger:   b.base,
		Capture:  capture,
	}
	if b.metrics != nil {
		opts.Observer = b.metrics
	}
	return serialport.NewLink(port, opts)
}

func (b *Bridge) release(pair *linkPair) {
	b.mu.Lock()
	if b.pair == pair {
		b.pair = nil
	}
	b.mu.Unlock()
	if err := pair.laser.Close(); err != nil {
		b.logger.Debug("close laser link", logging.Error(err))
	}
	if err := pair.sfc.Close(); err != nil {
		b.logger.Debug("close sfc link", logging.Error(err))
	}
	b.updateStatus(func(s *Status) {
		s.Connected = false
		s.CurrentSession = ""
	})
}
