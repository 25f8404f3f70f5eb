package serialport

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"laserlink/internal/logging"
)

const captureTimeFormat = "20060102_150405.000"

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// Capture writes the raw bytes of each exchange to disk: a .bin file with the
// received bytes and a .hex dump with both directions.
type Capture struct {
	dir string
	now func() time.Time
}

// NewCapture stores captures under dir.
func NewCapture(dir string) *Capture {
	return &Capture{dir: dir, now: time.Now}
}

// Dir returns the capture directory.
func (c *Capture) Dir() string {
	return c.dir
}

// Write stores one exchange and returns the .bin path.
func (c *Capture) Write(port, tag string, tx, rx []byte) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", fmt.Errorf("create capture directory: %w", err)
	}
	stamp := strings.Replace(c.now().Format(captureTimeFormat), ".", "_", 1)
	base := fmt.Sprintf("%s_%s_%s", stamp, safeName(filepath.Base(port)), safeName(tag))
	binPath := filepath.Join(c.dir, base+".bin")
	if err := os.WriteFile(binPath, rx, 0o644); err != nil {
		return "", fmt.Errorf("write capture: %w", err)
	}

	var dump bytes.Buffer
	fmt.Fprintf(&dump, "# port %s tag %s\n# tx %d bytes\n", port, tag, len(tx))
	dump.WriteString(hex.Dump(tx))
	fmt.Fprintf(&dump, "# rx %d bytes\n", len(rx))
	dump.WriteString(hex.Dump(rx))
	if err := os.WriteFile(filepath.Join(c.dir, base+".hex"), dump.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write capture dump: %w", err)
	}
	return binPath, nil
}

func safeName(value string) string {
	value = unsafeFileChars.ReplaceAllString(strings.TrimSpace(value), "_")
	if value == "" {
		return "x"
	}
	return value
}

type recorder struct {
	tag string
	tx  bytes.Buffer
	rx  bytes.Buffer
}

func (l *Link) record(direction string, data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recorder == nil {
		return
	}
	if direction == DirectionTX {
		l.recorder.tx.Write(data)
	} else {
		l.recorder.rx.Write(data)
	}
}

// startCapture begins recording raw bytes and returns the function that
// writes them out.
func (l *Link) startCapture(tag, fallback string) func() {
	if l.capture == nil {
		return func() {}
	}
	if strings.TrimSpace(tag) == "" {
		tag = fallback
	}
	rec := &recorder{tag: tag}
	l.mu.Lock()
	if l.recorder != nil {
		l.mu.Unlock()
		return func() {}
	}
	l.recorder = rec
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		l.recorder = nil
		l.mu.Unlock()
		path, err := l.capture.Write(l.name, rec.tag, rec.tx.Bytes(), rec.rx.Bytes())
		if err != nil {
			logging.WarnWithContext(l.logger, "capture write failed", "capture_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check paths.capture_dir permissions"),
				logging.String(logging.FieldImpact, "raw bytes of this exchange are not saved"),
			)
			return
		}
		l.logger.Debug("exchange captured", logging.String("path", path))
	}
}
