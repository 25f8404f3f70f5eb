package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"laserlink/internal/wire"
)

var modelCodePattern = regexp.MustCompile(`^NEEDPSN\d+$`)

const maxMOLength = 21

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSerial(); err != nil {
		return err
	}
	if err := c.validateFraming(); err != nil {
		return err
	}
	if err := c.validateProduction(); err != nil {
		return err
	}
	if err := c.validateModes(); err != nil {
		return err
	}
	if err := c.validateKPI(); err != nil {
		return err
	}
	if err := ensurePositiveMap(map[string]int{
		"notifications.request_timeout": c.Notifications.RequestTimeout,
		"simulator.step_timeout_sec":    c.Simulator.StepTimeoutSec,
	}); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateSerial() error {
	ports := map[string]SerialPort{"serial.laser": c.Serial.Laser, "serial.sfc": c.Serial.SFC}
	for _, key := range []string{"serial.laser", "serial.sfc"} {
		port := ports[key]
		if !wire.ValidPortName(port.Port) {
			return fmt.Errorf("%s.port %q is not a serial device (expected COMn or /dev/...)", key, port.Port)
		}
		if port.BaudRate <= 0 {
			return fmt.Errorf("%s.baud_rate must be positive", key)
		}
		if port.DataBits < 5 || port.DataBits > 8 {
			return fmt.Errorf("%s.data_bits must be between 5 and 8", key)
		}
		if port.StopBits != 1 && port.StopBits != 2 {
			return fmt.Errorf("%s.stop_bits must be 1 or 2", key)
		}
		switch port.Parity {
		case "N", "E", "O":
		default:
			return fmt.Errorf("%s.parity must be N, E, or O", key)
		}
	}
	if strings.EqualFold(c.Serial.Laser.Port, c.Serial.SFC.Port) {
		return fmt.Errorf("serial.laser.port and serial.sfc.port must differ (both %s)", c.Serial.Laser.Port)
	}
	return nil
}

func (c *Config) validateFraming() error {
	if _, err := wire.ParseCharset(c.Framing.Charset); err != nil {
		return fmt.Errorf("framing.charset: %w", err)
	}
	if _, err := c.BreakRules(); err != nil {
		return fmt.Errorf("framing break rules: %w", err)
	}
	return nil
}

func (c *Config) validateProduction() error {
	if mo := c.Production.MO; mo != "" {
		if len(mo) > maxMOLength || strings.IndexFunc(mo, unicode.IsSpace) >= 0 {
			return fmt.Errorf("production.mo %q must be at most %d characters without whitespace", mo, maxMOLength)
		}
	}
	for model, code := range c.Production.Models {
		if !modelCodePattern.MatchString(code) {
			return fmt.Errorf("production.models[%q] = %q must match NEEDPSN<digits>", model, code)
		}
	}
	if c.Production.EnforceModel && c.ModelCode() == "" {
		return fmt.Errorf("production.model %q is not listed in production.models", c.Production.Model)
	}
	return nil
}

func (c *Config) validateModes() error {
	switch c.Bridge.Mode {
	case BridgeModeHandshake, BridgeModeRelay:
	default:
		return fmt.Errorf("bridge.mode must be %q or %q", BridgeModeHandshake, BridgeModeRelay)
	}
	switch c.Simulator.Scenario {
	case ScenarioPass, ScenarioFail:
	default:
		return fmt.Errorf("simulator.scenario must be %q or %q", ScenarioPass, ScenarioFail)
	}
	return nil
}

func (c *Config) validateKPI() error {
	day, err := ParseClock(c.KPI.DayStart)
	if err != nil {
		return fmt.Errorf("kpi.day_start: %w", err)
	}
	night, err := ParseClock(c.KPI.NightStart)
	if err != nil {
		return fmt.Errorf("kpi.night_start: %w", err)
	}
	if night <= day {
		return errors.New("kpi.night_start must be later than kpi.day_start")
	}
	return nil
}

// ParseClock converts "HH:MM" to minutes after midnight.
func ParseClock(value string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0, fmt.Errorf("%q is not HH:MM", value)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("%q has an invalid hour", value)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 || len(mm) != 2 {
		return 0, fmt.Errorf("%q has an invalid minute", value)
	}
	return hour*60 + minute, nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
