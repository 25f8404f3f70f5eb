package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"laserlink/internal/bridge"
	"laserlink/internal/config"
	"laserlink/internal/logging"
	"laserlink/internal/serialport"
)

// toolLogger writes bench tool diagnostics to stderr so stdout stays
// parseable.
func toolLogger(verbose bool) *slog.Logger {
	level := "warn"
	if verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Options{Level: level, Format: "console", OutputPaths: []string{"stderr"}})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

// benchPortConfig returns the serial settings for port: the configured side
// when port is one of them, otherwise the laser side settings on port.
func benchPortConfig(settings bridge.Settings, port string) serialport.Config {
	port = strings.TrimSpace(port)
	switch {
	case port == "", strings.EqualFold(port, settings.Laser.Port):
		return settings.Laser
	case strings.EqualFold(port, settings.SFC.Port):
		return settings.SFC
	}
	cfg := settings.Laser
	cfg.Port = port
	return cfg
}

func benchSettings(cfg *config.Config) (bridge.Settings, error) {
	if cfg == nil {
		return bridge.Settings{}, errors.New("configuration not available")
	}
	return bridge.SettingsFromConfig(cfg)
}

type benchLinkOptions struct {
	Port    string
	Name    string
	Capture bool
	Logger  *slog.Logger
}

// openBenchLink opens port with the configured framing and starts its read
// loop. The link closes when ctx ends.
func openBenchLink(ctx context.Context, cfg *config.Config, opts benchLinkOptions) (*serialport.Link, bridge.Settings, error) {
	settings, err := benchSettings(cfg)
	if err != nil {
		return nil, bridge.Settings{}, err
	}
	portCfg := benchPortConfig(settings, opts.Port)
	if !serialport.ValidName(portCfg.Port) {
		return nil, settings, fmt.Errorf("%q is not a serial port name (want COM<n> or /dev/...)", portCfg.Port)
	}
	device, err := serialport.Open(portCfg)
	if err != nil {
		if errors.Is(err, serialport.ErrPortBusy) {
			return nil, settings, fmt.Errorf("%s is held by another process; stop the daemon with `laserlink stop` first: %w", portCfg.Port, err)
		}
		return nil, settings, err
	}
	linkOpts := serialport.LinkOptions{
		Name:     opts.Name,
		Framing:  settings.Framing,
		Rules:    settings.Rules,
		IdleTail: settings.IdleTail,
		Logger:   opts.Logger,
	}
	if linkOpts.Name == "" {
		linkOpts.Name = portCfg.Port
	}
	if opts.Capture {
		linkOpts.Capture = serialport.NewCapture(cfg.Paths.CaptureDir)
	}
	link := serialport.NewLink(device, linkOpts)
	link.Start(ctx)
	return link, settings, nil
}
