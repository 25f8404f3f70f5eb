package testsupport

import (
	"path/filepath"
	"testing"

	"laserlink/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.CaptureDir = filepath.Join(base, "captures")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithPorts overrides the laser and SFC device paths.
func WithPorts(laser, sfc string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Serial.Laser.Port = laser
		b.cfg.Serial.SFC.Port = sfc
	}
}

// WithCapture enables raw byte capture into the temp capture directory.
func WithCapture() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Capture.Enabled = true
	}
}

// WithNtfyTopic points notifications at topic, usually an httptest server URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// WithTimeouts shortens the handshake waits.
func WithTimeouts(laserSec, sfcSec float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Timeouts.LaserTxSec = laserSec
		b.cfg.Timeouts.SFCTxSec = sfcSec
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
