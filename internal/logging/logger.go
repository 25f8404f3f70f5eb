package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"laserlink/internal/config"
)

// DaemonLogName is the file written under the log directory by the daemon.
const DaemonLogName = "laserlinkd.log"

// Options describes logger construction parameters.
type Options struct {
	Level       string
	Format      string
	OutputPaths []string
	// LevelVar, when set, receives the parsed level so callers can adjust it
	// later (for example on config reload).
	LevelVar *slog.LevelVar
	// Color forces ANSI colour on or off for console output. Nil means colour
	// when the only output is a terminal.
	Color       *bool
	Development bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	levelVar := opts.LevelVar
	if levelVar == nil {
		levelVar = new(slog.LevelVar)
	}
	levelVar.Set(ParseLevel(opts.Level))

	paths := opts.OutputPaths
	if len(paths) == 0 {
		paths = []string{"stdout"}
	}
	writer, terminal, err := openWriters(paths)
	if err != nil {
		return nil, err
	}

	addSource := opts.Development || levelVar.Level() <= slog.LevelDebug

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		color := terminal
		if opts.Color != nil {
			color = *opts.Color
		}
		handler = newConsoleHandler(writer, levelVar, addSource, color)
	case "json":
		handler = newJSONHandler(writer, levelVar, addSource)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
	return slog.New(handler), nil
}

// NewFromConfig creates the daemon logger: stdout plus a file in the log
// directory.
func NewFromConfig(cfg *config.Config, levelVar *slog.LevelVar) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console", LevelVar: levelVar})
	}
	outputs := []string{"stdout"}
	if cfg.Paths.LogDir != "" {
		if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		outputs = append(outputs, filepath.Join(cfg.Paths.LogDir, DaemonLogName))
	}
	return New(Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
		LevelVar:    levelVar,
	})
}

// ParseLevel maps a config level name to a slog level. Unknown names map to
// info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openWriters resolves output names into one writer. terminal reports whether
// every output is a TTY.
func openWriters(paths []string) (io.Writer, bool, error) {
	seen := make(map[string]struct{}, len(paths))
	var writers []io.Writer
	terminal := true
	for _, path := range paths {
		name := strings.TrimSpace(path)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		switch name {
		case "stdout":
			writers = append(writers, os.Stdout)
			terminal = terminal && isatty.IsTerminal(os.Stdout.Fd())
		case "stderr":
			writers = append(writers, os.Stderr)
			terminal = terminal && isatty.IsTerminal(os.Stderr.Fd())
		default:
			if dir := filepath.Dir(name); dir != "." && dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, false, fmt.Errorf("create log directory %s: %w", dir, err)
				}
			}
			file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, false, fmt.Errorf("open log file %s: %w", name, err)
			}
			writers = append(writers, file)
			terminal = false
		}
	}
	switch len(writers) {
	case 0:
		return os.Stdout, isatty.IsTerminal(os.Stdout.Fd()), nil
	case 1:
		return writers[0], terminal, nil
	default:
		return io.MultiWriter(writers...), terminal, nil
	}
}
