package serialport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"laserlink/internal/breakrule"
	"laserlink/internal/logging"
	"laserlink/internal/wire"
)

const (
	defaultRingSize = 2000
	lineBuffer      = 256
)

// Byte directions reported to the Observer.
const (
	DirectionRX = "rx"
	DirectionTX = "tx"
)

// ErrClosed is returned once the link's read loop has stopped.
var ErrClosed = errors.New("serial link closed")

// Observer receives traffic counters. The metrics registry implements it.
type Observer interface {
	ObserveBytes(port, direction string, n int)
	ObserveDecodeError(port string)
}

// Line is one decoded line received on the port.
type Line struct {
	Seq  uint64
	Text string
	At   time.Time
}

// LinkOptions configure a Link. Zero values pick sensible defaults.
type LinkOptions struct {
	Name     string
	Framing  wire.FramerOptions
	Rules    breakrule.Set
	IdleTail time.Duration
	RingSize int
	Logger   *slog.Logger
	Observer Observer
	Capture  *Capture
}

// Link runs the single read loop of a port and serves lines to callers.
type Link struct {
	name     string
	port     io.ReadWriteCloser
	framer   *wire.Framer
	logger   *slog.Logger
	observer Observer
	capture  *Capture
	ringSize int

	writeMu sync.Mutex
	lines   chan Line
	done    chan struct{}

	mu       sync.Mutex
	rules    breakrule.Set
	idleTail time.Duration
	ring     []Line
	seq      uint64
	err      error
	closed   bool
	started  bool
	recorder *recorder

	closeOnce sync.Once
	closeErr  error
}

// NewLink wraps an open port. Call Start to begin reading.
func NewLink(port io.ReadWriteCloser, opts LinkOptions) *Link {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		if named, ok := port.(interface{ Name() string }); ok {
			name = named.Name()
		}
	}
	rules := opts.Rules
	if len(rules) == 0 {
		rules = breakrule.Default()
	}
	ringSize := opts.RingSize
	if ringSize <= 0 {
		ringSize = defaultRingSize
	}
	l := &Link{
		name:     name,
		port:     port,
		logger:   logging.NewComponentLogger(opts.Logger, "serial").With(logging.String(logging.FieldPort, name)),
		observer: opts.Observer,
		capture:  opts.Capture,
		ringSize: ringSize,
		lines:    make(chan Line, lineBuffer),
		done:     make(chan struct{}),
		rules:    rules,
		idleTail: opts.IdleTail,
	}
	l.framer = wire.NewFramer(&meteredReader{link: l}, opts.Framing)
	return l
}

// Name returns the port name used in logs and metrics.
func (l *Link) Name() string {
	return l.name
}

// Start launches the read loop. Cancelling ctx closes the port.
func (l *Link) Start(ctx context.Context) {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return
	}
	l.started = true
	l.mu.Unlock()

	go l.readLoop()
	go func() {
		select {
		case <-ctx.Done():
			_ = l.Close()
		case <-l.done:
		}
	}()
}

// Close closes the port and waits for the read loop to exit.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		started := l.started
		l.mu.Unlock()
		l.closeErr = l.port.Close()
		if started {
			<-l.done
		} else {
			close(l.done)
		}
	})
	return l.closeErr
}

// Done is closed when the read loop has stopped.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Err returns the error that stopped the read loop, or nil after a clean close.
func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// SetRules replaces the break rules used by later exchanges.
func (l *Link) SetRules(rules breakrule.Set) {
	if len(rules) == 0 {
		return
	}
	l.mu.Lock()
	l.rules = rules
	l.mu.Unlock()
}

// SetIdleTail replaces the idle tail used by later exchanges.
func (l *Link) SetIdleTail(d time.Duration) {
	l.mu.Lock()
	l.idleTail = d
	l.mu.Unlock()
}

func (l *Link) settings() (breakrule.Set, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rules, l.idleTail
}

func (l *Link) readLoop() {
	defer close(l.done)
	for {
		msg, err := l.framer.Next()
		if err == nil {
			l.deliver(msg.Text)
			continue
		}
		if l.isClosed() {
			return
		}
		var decodeErr *wire.DecodeError
		var partial *wire.PartialLineError
		switch {
		case IsTimeout(err):
			continue
		case errors.As(err, &decodeErr):
			if l.observer != nil {
				l.observer.ObserveDecodeError(l.name)
			}
			logging.WarnWithContext(l.logger, "undecodable line dropped", "serial_decode_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check framing.charset and the device baud rate"),
				logging.String(logging.FieldImpact, "the line is ignored"),
			)
			continue
		case errors.Is(err, wire.ErrLineTooLong):
			logging.WarnWithContext(l.logger, "oversized line dropped", "serial_line_too_long",
				logging.String(logging.FieldErrorHint, "raise framing.max_line_bytes or check for missing CRLF"),
				logging.String(logging.FieldImpact, "the line is ignored"),
			)
			continue
		case errors.As(err, &partial):
			l.logger.Debug("unterminated bytes discarded at end of stream", logging.Int("bytes", len(partial.Raw)))
			continue
		case errors.Is(err, io.EOF):
			l.fail(ErrClosed)
			return
		default:
			if isClosed(err) {
				l.fail(ErrClosed)
			} else {
				l.fail(fmt.Errorf("read %s: %w", l.name, err))
			}
			return
		}
	}
}

func (l *Link) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *Link) fail(err error) {
	l.mu.Lock()
	if l.err == nil {
		l.err = err
	}
	l.mu.Unlock()
	l.logger.Debug("read loop stopped", logging.Error(err))
}

func (l *Link) deliver(text string) {
	text = wire.Sanitize(text)
	if text == "" {
		return
	}
	l.mu.Lock()
	l.seq++
	line := Line{Seq: l.seq, Text: text, At: time.Now()}
	l.ring = append(l.ring, line)
	if over := len(l.ring) - l.ringSize; over > 0 {
		l.ring = append(l.ring[:0], l.ring[over:]...)
	}
	l.mu.Unlock()

	l.logger.Debug("rx", logging.Payload(text), logging.Uint64("seq", line.Seq))
	for {
		select {
		case l.lines <- line:
			return
		default:
		}
		// Nobody is reading: drop the oldest pending line to keep the newest.
		select {
		case <-l.lines:
		default:
		}
	}
}

// Recent returns up to n of the most recent lines, oldest first.
func (l *Link) Recent(n int) []Line {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.ring) {
		n = len(l.ring)
	}
	return append([]Line(nil), l.ring[len(l.ring)-n:]...)
}

// Clear drops lines nobody has consumed yet and returns how many were dropped.
func (l *Link) Clear() int {
	dropped := 0
	for {
		select {
		case <-l.lines:
			dropped++
		default:
			return dropped
		}
	}
}

// Next blocks for the next line.
func (l *Link) Next(ctx context.Context) (Line, error) {
	select {
	case line := <-l.lines:
		return line, nil
	default:
	}
	select {
	case line := <-l.lines:
		return line, nil
	case <-ctx.Done():
		return Line{}, ctx.Err()
	case <-l.done:
		return Line{}, l.closedErr()
	}
}

func (l *Link) closedErr() error {
	if err := l.Err(); err != nil {
		return err
	}
	return ErrClosed
}

// Send writes text followed by CRLF. Text already ending in CRLF is written as is.
func (l *Link) Send(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-l.done:
		return l.closedErr()
	default:
	}
	payload := text
	if !strings.HasSuffix(payload, wire.Terminator) {
		payload += wire.Terminator
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	n, err := l.port.Write([]byte(payload))
	if n > 0 {
		if l.observer != nil {
			l.observer.ObserveBytes(l.name, DirectionTX, n)
		}
		l.record(DirectionTX, []byte(payload[:n]))
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", l.name, err)
	}
	l.logger.Debug("tx", logging.Payload(strings.TrimSuffix(payload, wire.Terminator)))
	return nil
}

// meteredReader counts received bytes and feeds an active capture.
type meteredReader struct {
	link *Link
}

func (r *meteredReader) Read(p []byte) (int, error) {
	n, err := r.link.port.Read(p)
	if n < 0 {
		// goburrow/serial hands back syscall.Read's -1 on EIO and EBADF.
		n = 0
	}
	if n > 0 {
		if r.link.observer != nil {
			r.link.observer.ObserveBytes(r.link.name, DirectionRX, n)
		}
		r.link.record(DirectionRX, p[:n])
	}
	return n, err
}
