package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"laserlink/internal/breakrule"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration. APIToken, when
// set, is required as a bearer token on HTTP API requests.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	CaptureDir string `toml:"capture_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// SerialPort describes one RS-232 endpoint.
type SerialPort struct {
	Port          string `toml:"port"`
	BaudRate      int    `toml:"baud_rate"`
	DataBits      int    `toml:"data_bits"`
	StopBits      int    `toml:"stop_bits"`
	Parity        string `toml:"parity"`
	ReadTimeoutMS int    `toml:"read_timeout_ms"`
}

// ReadTimeout returns the driver read timeout.
func (p SerialPort) ReadTimeout() time.Duration {
	return time.Duration(p.ReadTimeoutMS) * time.Millisecond
}

// Serial holds the laser-side and SFC-side ports.
type Serial struct {
	Laser SerialPort `toml:"laser"`
	SFC   SerialPort `toml:"sfc"`
}

// Timeouts bound each handshake wait.
type Timeouts struct {
	LaserTxSec float64 `toml:"laser_tx_sec"`
	SFCTxSec   float64 `toml:"sfc_tx_sec"`
	IdleTailMS int     `toml:"idle_tail_ms"`
}

// Framing controls line decoding and response completion.
type Framing struct {
	Charset      string   `toml:"charset"`
	AcceptBareLF bool     `toml:"accept_bare_lf"`
	MaxLineBytes int      `toml:"max_line_bytes"`
	BreakTokens  []string `toml:"break_tokens"`
	AlwaysLast   []string `toml:"always_last"`
}

// Production identifies what the line is currently marking.
type Production struct {
	MO           string            `toml:"mo"`
	HCode        string            `toml:"h_code"`
	Model        string            `toml:"model"`
	Models       map[string]string `toml:"models"`
	EnforceModel bool              `toml:"enforce_model"`
}

// Bridge selects how the two ports are joined.
type Bridge struct {
	Mode string `toml:"mode"`
}

// Simulator configures the stand-in SFC and laser roles.
type Simulator struct {
	Scenario        string `toml:"scenario"`
	ResponseDelayMS int    `toml:"response_delay_ms"`
	StepTimeoutSec  int    `toml:"step_timeout_sec"`
}

// Capture toggles raw byte capture of every exchange.
type Capture struct {
	Enabled bool `toml:"enabled"`
}

// KPI defines shift boundaries and history depth.
type KPI struct {
	DayStart   string `toml:"day_start"`
	NightStart string `toml:"night_start"`
	KeepDays   int    `toml:"keep_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	SessionFailed  bool   `toml:"session_failed"`
	PortEvents     bool   `toml:"port_events"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for LaserLink.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Serial        Serial        `toml:"serial"`
	Timeouts      Timeouts      `toml:"timeouts"`
	Framing       Framing       `toml:"framing"`
	Production    Production    `toml:"production"`
	Bridge        Bridge        `toml:"bridge"`
	Simulator     Simulator     `toml:"simulator"`
	Capture       Capture       `toml:"capture"`
	KPI           KPI           `toml:"kpi"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	cfg, err := read(resolvedPath, exists)
	if err != nil {
		return nil, "", false, err
	}
	return cfg, resolvedPath, exists, nil
}

func read(path string, exists bool) (*Config, error) {
	cfg := Default()
	if exists {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("laserlink.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StateDir, c.Paths.LogDir, c.PortLockDir()}
	if c.Capture.Enabled {
		dirs = append(dirs, c.Paths.CaptureDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DaemonLockPath is the single-instance lock file.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.StateDir, "laserlinkd.lock")
}

// PIDPath records the running daemon's process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "laserlinkd.pid")
}

// SocketPath is the IPC unix socket.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "laserlink.sock")
}

// DatabasePath is the sessions database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "sessions.db")
}

// PortLockDir holds one advisory lock file per serial device.
func (c *Config) PortLockDir() string {
	return filepath.Join(c.Paths.StateDir, "locks")
}

// LaserTimeout bounds the wait for a carve result.
func (c *Config) LaserTimeout() time.Duration {
	return seconds(c.Timeouts.LaserTxSec)
}

// SFCTimeout bounds the wait for each SFC frame.
func (c *Config) SFCTimeout() time.Duration {
	return seconds(c.Timeouts.SFCTxSec)
}

// IdleTail is how long an exchange keeps listening after it completed.
func (c *Config) IdleTail() time.Duration {
	return time.Duration(c.Timeouts.IdleTailMS) * time.Millisecond
}

// BreakRules compiles the configured response completion rules.
func (c *Config) BreakRules() (breakrule.Set, error) {
	return breakrule.Compile(c.Framing.BreakTokens, c.Framing.AlwaysLast)
}

// ModelCode returns the NEEDPSN code of the selected model, or "" when the
// model is not in the table.
func (c *Config) ModelCode() string {
	return c.Production.Models[c.Production.Model]
}

func seconds(value float64) time.Duration {
	return time.Duration(value * float64(time.Second))
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
