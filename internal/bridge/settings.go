package bridge

import (
	"fmt"
	"strings"
	"time"

	"laserlink/internal/breakrule"
	"laserlink/internal/config"
	"laserlink/internal/serialport"
	"laserlink/internal/wire"
)

// Modes accepted in Settings.Mode.
const (
	ModeHandshake = config.BridgeModeHandshake
	ModeRelay     = config.BridgeModeRelay
)

// Settings is the runtime view of the configuration the bridge uses.
type Settings struct {
	Mode         string
	Laser        serialport.Config
	SFC          serialport.Config
	Framing      wire.FramerOptions
	Rules        breakrule.Set
	LaserTimeout time.Duration
	SFCTimeout   time.Duration
	IdleTail     time.Duration
	// MO is the expected manufacturing order; empty accepts any.
	MO    string
	Model string
	// ModelCode is enforced against the trigger's NEEDPSN when non-empty.
	ModelCode  string
	CaptureDir string
}

// SettingsFromConfig derives bridge settings from a validated config.
func SettingsFromConfig(cfg *config.Config) (Settings, error) {
	rules, err := cfg.BreakRules()
	if err != nil {
		return Settings{}, fmt.Errorf("framing break rules: %w", err)
	}
	charset, err := wire.ParseCharset(cfg.Framing.Charset)
	if err != nil {
		return Settings{}, fmt.Errorf("framing.charset: %w", err)
	}
	settings := Settings{
		Mode:  strings.ToLower(strings.TrimSpace(cfg.Bridge.Mode)),
		Laser: portConfig(cfg.Serial.Laser, cfg.PortLockDir()),
		SFC:   portConfig(cfg.Serial.SFC, cfg.PortLockDir()),
		Framing: wire.FramerOptions{
			Charset:      charset,
			AcceptBareLF: cfg.Framing.AcceptBareLF,
			MaxLineBytes: cfg.Framing.MaxLineBytes,
		},
		Rules:        rules,
		LaserTimeout: cfg.LaserTimeout(),
		SFCTimeout:   cfg.SFCTimeout(),
		IdleTail:     cfg.IdleTail(),
		MO:           strings.TrimSpace(cfg.Production.MO),
		Model:        strings.TrimSpace(cfg.Production.Model),
	}
	if settings.Mode == "" {
		settings.Mode = ModeHandshake
	}
	if cfg.Production.EnforceModel {
		settings.ModelCode = strings.ToUpper(cfg.ModelCode())
	}
	if cfg.Capture.Enabled {
		settings.CaptureDir = cfg.Paths.CaptureDir
	}
	return settings, nil
}

func portConfig(p config.SerialPort, lockDir string) serialport.Config {
	return serialport.Config{
		Port:        p.Port,
		BaudRate:    p.BaudRate,
		DataBits:    p.DataBits,
		StopBits:    p.StopBits,
		Parity:      p.Parity,
		ReadTimeout: p.ReadTimeout(),
		LockDir:     lockDir,
	}
}

// portsChanged reports whether moving from s to next requires reopening links.
func (s Settings) portsChanged(next Settings) bool {
	return s.Laser != next.Laser || s.SFC != next.SFC ||
		s.Framing != next.Framing || s.CaptureDir != next.CaptureDir
}
