package serialport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/goburrow/serial"

	"laserlink/internal/wire"
)

// ErrPortBusy reports that another process holds the port lock.
var ErrPortBusy = errors.New("serial port in use by another process")

// ValidName reports whether name looks like a serial device: COM<n> or a
// /dev path.
func ValidName(name string) bool {
	return wire.ValidPortName(name)
}

// Config describes how to open a device.
type Config struct {
	Port        string
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      string
	ReadTimeout time.Duration
	// LockDir holds advisory lock files. Empty disables locking.
	LockDir string
}

// Device is an open serial port plus its advisory lock.
type Device struct {
	serial.Port
	name string
	lock *flock.Flock
}

// Name returns the device path the port was opened with.
func (d *Device) Name() string {
	return d.name
}

// Close closes the port and releases the lock.
func (d *Device) Close() error {
	err := d.Port.Close()
	if d.lock != nil {
		if unlockErr := d.lock.Unlock(); unlockErr != nil && err == nil {
			err = fmt.Errorf("release port lock: %w", unlockErr)
		}
	}
	return err
}

// LockPath returns the lock file used for port inside dir.
func LockPath(dir, port string) string {
	return filepath.Join(dir, filepath.Base(strings.TrimSpace(port))+".lock")
}

// Open opens the device described by cfg. Reads return a timeout error after
// cfg.ReadTimeout without data so a read loop can notice cancellation.
func Open(cfg Config) (*Device, error) {
	if !ValidName(cfg.Port) {
		return nil, fmt.Errorf("invalid serial port name %q", cfg.Port)
	}
	var lock *flock.Flock
	if cfg.LockDir != "" {
		if err := os.MkdirAll(cfg.LockDir, 0o755); err != nil {
			return nil, fmt.Errorf("create port lock directory: %w", err)
		}
		lock = flock.New(LockPath(cfg.LockDir, cfg.Port))
		locked, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", cfg.Port, err)
		}
		if !locked {
			return nil, fmt.Errorf("%s: %w", cfg.Port, ErrPortBusy)
		}
	}

	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = 750 * time.Millisecond
	}
	port, err := serial.Open(&serial.Config{
		Address:  cfg.Port,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  timeout,
	})
	if err != nil {
		if lock != nil {
			_ = lock.Unlock()
		}
		return nil, fmt.Errorf("open %s: %w", cfg.Port, err)
	}
	return &Device{Port: port, name: cfg.Port, lock: lock}, nil
}

// IsTimeout reports whether err is a read timeout rather than a failure.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, serial.ErrTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, net.ErrClosed)
}
