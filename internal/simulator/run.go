package simulator

import (
	"context"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"laserlink/internal/serialport"
	"laserlink/internal/wire"
)

// RunOptions configure an in-process laser/SFC pair.
type RunOptions struct {
	LaserScenario Scenario
	SFCScenario   Scenario
	Trigger       string
	ResponseDelay time.Duration
	StepTimeout   time.Duration
	Framing       wire.FramerOptions
	Logger        *slog.Logger
}

// Run plays one handshake between a laser role on laserPort and an SFC role
// on sfcPort. The two ports must be connected to each other. Both ports are
// closed on return.
func Run(ctx context.Context, laserPort, sfcPort io.ReadWriteCloser, opts RunOptions) (Transcript, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	laserLink := serialport.NewLink(laserPort, serialport.LinkOptions{Name: "sim-laser", Framing: opts.Framing, Logger: opts.Logger})
	sfcLink := serialport.NewLink(sfcPort, serialport.LinkOptions{Name: "sim-sfc", Framing: opts.Framing, Logger: opts.Logger})
	laserLink.Start(ctx)
	sfcLink.Start(ctx)
	defer func() {
		_ = laserLink.Close()
		_ = sfcLink.Close()
	}()

	sfc := NewSFC(sfcLink, SFCOptions{Scenario: opts.SFCScenario, ResponseDelay: opts.ResponseDelay, Logger: opts.Logger})
	laser := NewLaser(laserLink, LaserOptions{
		Scenario:    opts.LaserScenario,
		Trigger:     opts.Trigger,
		StepTimeout: opts.StepTimeout,
		Logger:      opts.Logger,
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return sfc.Serve(groupCtx)
	})
	var observed Transcript
	group.Go(func() error {
		defer cancel()
		var err error
		observed, err = laser.Run(groupCtx)
		return err
	})
	err := group.Wait()
	return observed, err
}
