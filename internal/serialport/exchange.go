package serialport

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"laserlink/internal/breakrule"
	"laserlink/internal/wire"
)

// NoResponseText is what operators see in place of a reply that never came.
const NoResponseText = "No response (timeout)"

var (
	// ErrNoResponse reports a timeout with no bytes received.
	ErrNoResponse = errors.New("no response (timeout)")
	// ErrIncomplete reports a timeout after some lines arrived but no break
	// rule matched. The partial text is still returned.
	ErrIncomplete = errors.New("incomplete response")
)

// ReceiveOptions tune a single frame wait.
type ReceiveOptions struct {
	Timeout time.Duration
	// Rules override the link's break rules for this wait.
	Rules breakrule.Set
	// IdleTail overrides the link's idle tail. Negative disables it.
	IdleTail time.Duration
	// Tag names the capture files of this exchange.
	Tag string
	// Accept filters lines before they reach the assembler. Rejected lines
	// end up in Response.Skipped and do not count as a reply.
	Accept func(text string) bool
}

// ExchangeOptions tune Exchange.
type ExchangeOptions struct {
	ReceiveOptions
	// Clear drops unread lines before writing.
	Clear bool
}

// Response is a completed (or partial) frame.
type Response struct {
	Text     string
	Lines    []Line
	Tail     []Line
	Skipped  []Line
	Complete bool
	Elapsed  time.Duration
}

// Exchange writes text and waits for the response frame.
func (l *Link) Exchange(ctx context.Context, text string, opts ExchangeOptions) (Response, error) {
	if opts.Clear {
		l.Clear()
	}
	stop := l.startCapture(opts.Tag, "exchange")
	defer stop()
	if err := l.Send(ctx, text); err != nil {
		return Response{}, err
	}
	return l.receive(ctx, opts.ReceiveOptions)
}

// Receive waits for the next frame without writing anything.
func (l *Link) Receive(ctx context.Context, opts ReceiveOptions) (Response, error) {
	stop := l.startCapture(opts.Tag, "receive")
	defer stop()
	return l.receive(ctx, opts)
}

func (l *Link) receive(ctx context.Context, opts ReceiveOptions) (Response, error) {
	rules, idleTail := l.settings()
	if len(opts.Rules) > 0 {
		rules = opts.Rules
	}
	if opts.IdleTail != 0 {
		idleTail = opts.IdleTail
	}

	started := time.Now()
	waitCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	assembler := breakrule.NewAssembler(rules)
	var resp Response
	for {
		line, err := l.Next(waitCtx)
		if err != nil {
			resp.Elapsed = time.Since(started)
			if ctx.Err() != nil || !errors.Is(err, context.DeadlineExceeded) {
				return resp, err
			}
			if len(resp.Lines) == 0 {
				resp.Text = NoResponseText
				return resp, ErrNoResponse
			}
			resp.Text = strings.TrimSpace(assembler.Pending())
			return resp, ErrIncomplete
		}
		if opts.Accept != nil && !opts.Accept(line.Text) {
			resp.Skipped = append(resp.Skipped, line)
			continue
		}
		resp.Lines = append(resp.Lines, line)
		if frame, ok := assembler.Push(line.Text + wire.Terminator); ok {
			resp.Text = frame
			resp.Complete = true
			break
		}
	}

	if idleTail > 0 {
		resp.Tail = l.drainIdle(ctx, idleTail)
	}
	resp.Elapsed = time.Since(started)
	return resp, nil
}

// drainIdle collects lines until none arrived for window.
func (l *Link) drainIdle(ctx context.Context, window time.Duration) []Line {
	var tail []Line
	for {
		waitCtx, cancel := context.WithTimeout(ctx, window)
		line, err := l.Next(waitCtx)
		cancel()
		if err != nil {
			return tail
		}
		tail = append(tail, line)
	}
}

// CollectOptions tune Collect.
type CollectOptions struct {
	Timeout time.Duration
	// Expect marks the collection as successful once a line matches it. Nil
	// accepts any line.
	Expect *regexp.Regexp
	// IdleAfterLast ends collection this long after the last line once Expect
	// matched.
	IdleAfterLast time.Duration
	Clear         bool
	Tag           string
}

// CollectResult lists every line seen during Collect.
type CollectResult struct {
	OK    bool
	Best  string
	Lines []Line
}

// Collect writes text and gathers every line until Expect matched and the
// port went quiet, or the timeout elapsed.
func (l *Link) Collect(ctx context.Context, text string, opts CollectOptions) (CollectResult, error) {
	if opts.Clear {
		l.Clear()
	}
	stop := l.startCapture(opts.Tag, "collect")
	defer stop()
	if text != "" {
		if err := l.Send(ctx, text); err != nil {
			return CollectResult{}, err
		}
	}
	idle := opts.IdleAfterLast
	if idle <= 0 {
		idle = 300 * time.Millisecond
	}
	deadline := time.Now().Add(opts.Timeout)
	if opts.Timeout <= 0 {
		deadline = time.Now().Add(5 * time.Second)
	}

	var result CollectResult
	texts := make([]string, 0, 8)
	for {
		wait := time.Until(deadline)
		if result.OK && idle < wait {
			wait = idle
		}
		if wait <= 0 {
			break
		}
		waitCtx, cancel := context.WithTimeout(ctx, wait)
		line, err := l.Next(waitCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return result, err
		}
		result.Lines = append(result.Lines, line)
		texts = append(texts, line.Text)
		if opts.Expect == nil || opts.Expect.MatchString(line.Text) {
			result.OK = true
		}
	}
	result.Best = wire.PickBest(texts)
	if len(result.Lines) == 0 {
		return result, ErrNoResponse
	}
	return result, nil
}
