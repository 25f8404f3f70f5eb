package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"laserlink/internal/config"
)

func clearPortEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LASERLINK_LASER_PORT", "")
	t.Setenv("LASERLINK_SFC_PORT", "")
	t.Setenv("LASERLINK_NTFY_TOPIC", "")
}

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	clearPortEnv(t)
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "laserlink")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.DatabasePath() != filepath.Join(wantState, "sessions.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.SocketPath() != filepath.Join(wantState, "laserlink.sock") {
		t.Fatalf("unexpected socket path: %q", cfg.SocketPath())
	}
	if cfg.Paths.APIBind != "127.0.0.1:7490" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Serial.Laser.BaudRate != 9600 || cfg.Serial.Laser.Parity != "N" {
		t.Fatalf("unexpected laser port defaults: %+v", cfg.Serial.Laser)
	}
	if cfg.LaserTimeout() != 120*time.Second {
		t.Fatalf("unexpected laser timeout: %s", cfg.LaserTimeout())
	}
	if cfg.SFCTimeout() != 7*time.Second {
		t.Fatalf("unexpected sfc timeout: %s", cfg.SFCTimeout())
	}
	if cfg.IdleTail() != 200*time.Millisecond {
		t.Fatalf("unexpected idle tail: %s", cfg.IdleTail())
	}
	if cfg.ModelCode() != "NEEDPSN06" {
		t.Fatalf("unexpected model code: %q", cfg.ModelCode())
	}
	if cfg.Bridge.Mode != config.BridgeModeHandshake {
		t.Fatalf("unexpected bridge mode: %q", cfg.Bridge.Mode)
	}
	rules, err := cfg.BreakRules()
	if err != nil {
		t.Fatalf("BreakRules: %v", err)
	}
	if !rules.Match("2505004562,PF2AS04TE,PASSED=1PASS") {
		t.Fatal("expected default rules to complete a final result")
	}
}

func TestLoadCustomPath(t *testing.T) {
	clearPortEnv(t)
	configPath := filepath.Join(t.TempDir(), "laserlink.toml")

	type payload struct {
		Serial struct {
			Laser struct {
				Port     string `toml:"port"`
				BaudRate int    `toml:"baud_rate"`
			} `toml:"laser"`
		} `toml:"serial"`
		Timeouts struct {
			LaserTxSec float64 `toml:"laser_tx_sec"`
			SFCTxSec   float64 `toml:"sfc_tx_sec"`
		} `toml:"timeouts"`
		Production struct {
			MO string `toml:"mo"`
		} `toml:"production"`
	}
	custom := payload{}
	custom.Serial.Laser.Port = "COM7"
	custom.Serial.Laser.BaudRate = 115200
	custom.Timeouts.LaserTxSec = 1.5
	custom.Timeouts.SFCTxSec = -1
	custom.Production.MO = " 2790005577 "
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Serial.Laser.Port != "COM7" || cfg.Serial.Laser.BaudRate != 115200 {
		t.Fatalf("unexpected laser port: %+v", cfg.Serial.Laser)
	}
	if cfg.Serial.Laser.DataBits != 8 || cfg.Serial.Laser.ReadTimeoutMS != 750 {
		t.Fatalf("expected serial defaults to fill unset fields, got %+v", cfg.Serial.Laser)
	}
	if cfg.LaserTimeout() != 1500*time.Millisecond {
		t.Fatalf("unexpected laser timeout: %s", cfg.LaserTimeout())
	}
	if cfg.SFCTimeout() != 7*time.Second {
		t.Fatalf("expected non-positive sfc timeout to fall back to default, got %s", cfg.SFCTimeout())
	}
	if cfg.Production.MO != "2790005577" {
		t.Fatalf("expected trimmed MO, got %q", cfg.Production.MO)
	}
}

func TestEnvOverridesPortsAndTopic(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LASERLINK_LASER_PORT", "/dev/pts/7")
	t.Setenv("LASERLINK_SFC_PORT", "/dev/pts/8")
	t.Setenv("LASERLINK_NTFY_TOPIC", "https://ntfy.example/laser")

	configPath := filepath.Join(t.TempDir(), "laserlink.toml")
	contents := "[serial.laser]\nport = \"/dev/ttyS0\"\n[notifications]\nntfy_topic = \"https://ntfy.example/file\"\n"
	if err := os.WriteFile(configPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Serial.Laser.Port != "/dev/pts/7" || cfg.Serial.SFC.Port != "/dev/pts/8" {
		t.Fatalf("expected env ports, got %q %q", cfg.Serial.Laser.Port, cfg.Serial.SFC.Port)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example/laser" {
		t.Fatalf("expected env topic, got %q", cfg.Notifications.NtfyTopic)
	}
}

func TestCreateSample(t *testing.T) {
	clearPortEnv(t)
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[serial.laser]") {
		t.Fatalf("sample config missing serial section: %s", contents)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if got := len(cfg.Framing.BreakTokens); got != 7 {
		t.Fatalf("expected 7 break tokens from sample, got %d", got)
	}
	if cfg.Production.Models["31-010815"] != "NEEDPSN06" {
		t.Fatalf("unexpected model table: %v", cfg.Production.Models)
	}
}

func TestEncodeRoundTripsThroughLoad(t *testing.T) {
	clearPortEnv(t)
	t.Setenv("HOME", t.TempDir())
	cfg := config.Default()
	cfg.Serial.SFC.Port = "COM3"
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	path := filepath.Join(t.TempDir(), "effective.toml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	loaded, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load encoded config: %v", err)
	}
	if loaded.Serial.SFC.Port != "COM3" {
		t.Fatalf("unexpected sfc port %q", loaded.Serial.SFC.Port)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"bad port name", func(c *config.Config) { c.Serial.Laser.Port = "ttyUSB0" }},
		{"same ports", func(c *config.Config) { c.Serial.SFC.Port = c.Serial.Laser.Port }},
		{"zero baud", func(c *config.Config) { c.Serial.SFC.BaudRate = 0 }},
		{"bad parity", func(c *config.Config) { c.Serial.SFC.Parity = "X" }},
		{"bad stop bits", func(c *config.Config) { c.Serial.Laser.StopBits = 3 }},
		{"bad charset", func(c *config.Config) { c.Framing.Charset = "ebcdic" }},
		{"bad regex", func(c *config.Config) { c.Framing.BreakTokens = []string{"MATCHREGEX:("} }},
		{"bad model code", func(c *config.Config) { c.Production.Models["X"] = "PSN06" }},
		{"unknown enforced model", func(c *config.Config) {
			c.Production.EnforceModel = true
			c.Production.Model = "missing"
		}},
		{"mo with spaces", func(c *config.Config) { c.Production.MO = "27900 05577" }},
		{"long mo", func(c *config.Config) { c.Production.MO = strings.Repeat("9", 22) }},
		{"bad mode", func(c *config.Config) { c.Bridge.Mode = "mirror" }},
		{"bad scenario", func(c *config.Config) { c.Simulator.Scenario = "flaky" }},
		{"bad clock", func(c *config.Config) { c.KPI.DayStart = "7h30" }},
		{"night before day", func(c *config.Config) { c.KPI.NightStart = "06:00" }},
		{"zero notify timeout", func(c *config.Config) { c.Notifications.RequestTimeout = 0 }},
	}
	for _, tc := range cases {
		cfg := config.Default()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestParseClock(t *testing.T) {
	got, err := config.ParseClock("07:30")
	if err != nil || got != 450 {
		t.Fatalf("ParseClock(07:30) = %d, %v", got, err)
	}
	for _, bad := range []string{"", "24:00", "7:5", "07:60", "ab:cd"} {
		if _, err := config.ParseClock(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
