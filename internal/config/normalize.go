package config

import (
	"fmt"
	"os"
	"strings"

	"laserlink/internal/breakrule"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSerial()
	c.normalizeTimeouts()
	c.normalizeFraming()
	c.normalizeProduction()
	c.normalizeModes()
	c.normalizeKPI()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CaptureDir) == "" {
		c.Paths.CaptureDir = defaultCaptureDir
	}
	if c.Paths.CaptureDir, err = expandPath(c.Paths.CaptureDir); err != nil {
		return fmt.Errorf("paths.capture_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeSerial() {
	if value, ok := os.LookupEnv("LASERLINK_LASER_PORT"); ok && strings.TrimSpace(value) != "" {
		c.Serial.Laser.Port = value
	}
	if value, ok := os.LookupEnv("LASERLINK_SFC_PORT"); ok && strings.TrimSpace(value) != "" {
		c.Serial.SFC.Port = value
	}
	normalizePort(&c.Serial.Laser)
	normalizePort(&c.Serial.SFC)
}

func normalizePort(p *SerialPort) {
	p.Port = strings.TrimSpace(p.Port)
	if p.DataBits <= 0 {
		p.DataBits = defaultDataBits
	}
	if p.StopBits <= 0 {
		p.StopBits = defaultStopBits
	}
	p.Parity = strings.ToUpper(strings.TrimSpace(p.Parity))
	if p.Parity == "" {
		p.Parity = defaultParity
	}
	if p.ReadTimeoutMS <= 0 {
		p.ReadTimeoutMS = defaultReadTimeoutMS
	}
}

func (c *Config) normalizeTimeouts() {
	if c.Timeouts.LaserTxSec <= 0 {
		c.Timeouts.LaserTxSec = defaultLaserTxSec
	}
	if c.Timeouts.SFCTxSec <= 0 {
		c.Timeouts.SFCTxSec = defaultSFCTxSec
	}
	if c.Timeouts.IdleTailMS < 0 {
		c.Timeouts.IdleTailMS = defaultIdleTailMS
	}
}

func (c *Config) normalizeFraming() {
	c.Framing.Charset = strings.ToLower(strings.TrimSpace(c.Framing.Charset))
	if c.Framing.Charset == "" {
		c.Framing.Charset = defaultCharset
	}
	if c.Framing.MaxLineBytes <= 0 {
		c.Framing.MaxLineBytes = defaultMaxLineBytes
	}
	c.Framing.BreakTokens = trimTokens(c.Framing.BreakTokens)
	if len(c.Framing.BreakTokens) == 0 {
		c.Framing.BreakTokens = append([]string(nil), breakrule.DefaultTokens...)
	}
	c.Framing.AlwaysLast = trimTokens(c.Framing.AlwaysLast)
	if len(c.Framing.AlwaysLast) == 0 {
		c.Framing.AlwaysLast = append([]string(nil), breakrule.DefaultAlwaysLast...)
	}
}

func trimTokens(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if token = strings.TrimSpace(token); token != "" {
			out = append(out, token)
		}
	}
	return out
}

func (c *Config) normalizeProduction() {
	c.Production.MO = strings.ToUpper(strings.TrimSpace(c.Production.MO))
	c.Production.HCode = strings.ToUpper(strings.TrimSpace(c.Production.HCode))
	c.Production.Model = strings.TrimSpace(c.Production.Model)
	models := make(map[string]string, len(c.Production.Models))
	for model, code := range c.Production.Models {
		model = strings.TrimSpace(model)
		if model == "" {
			continue
		}
		models[model] = strings.ToUpper(strings.TrimSpace(code))
	}
	if len(models) == 0 {
		models[defaultModel] = defaultModelCode
	}
	c.Production.Models = models
	if c.Production.Model == "" {
		c.Production.Model = defaultModel
	}
}

func (c *Config) normalizeModes() {
	c.Bridge.Mode = strings.ToLower(strings.TrimSpace(c.Bridge.Mode))
	if c.Bridge.Mode == "" {
		c.Bridge.Mode = defaultBridgeMode
	}
	c.Simulator.Scenario = strings.ToLower(strings.TrimSpace(c.Simulator.Scenario))
	if c.Simulator.Scenario == "" {
		c.Simulator.Scenario = defaultScenario
	}
	if c.Simulator.ResponseDelayMS < 0 {
		c.Simulator.ResponseDelayMS = 0
	}
	if c.Simulator.StepTimeoutSec <= 0 {
		c.Simulator.StepTimeoutSec = defaultStepTimeoutSec
	}
}

func (c *Config) normalizeKPI() {
	c.KPI.DayStart = strings.TrimSpace(c.KPI.DayStart)
	if c.KPI.DayStart == "" {
		c.KPI.DayStart = defaultDayStart
	}
	c.KPI.NightStart = strings.TrimSpace(c.KPI.NightStart)
	if c.KPI.NightStart == "" {
		c.KPI.NightStart = defaultNightStart
	}
	if c.KPI.KeepDays <= 0 {
		c.KPI.KeepDays = defaultKPIKeepDays
	}
}

func (c *Config) normalizeNotifications() {
	if value, ok := os.LookupEnv("LASERLINK_NTFY_TOPIC"); ok && strings.TrimSpace(value) != "" {
		c.Notifications.NtfyTopic = value
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
