package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, nil)
	if h := newFanoutHandler(nil, inner); h != inner {
		t.Fatal("expected a single handler to be returned unwrapped")
	}
}

func TestFanoutHandlerRespectsEachLevel(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	infoHandler := slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	debugHandler := slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	h := newFanoutHandler(infoHandler, debugHandler)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected fanout enabled for debug when one handler accepts it")
	}
	logger := slog.New(h).With("session_id", "s-9")
	logger.Debug("rx line")
	logger.Info("session passed")

	if strings.Contains(infoBuf.String(), "rx line") {
		t.Fatalf("info handler received debug record: %q", infoBuf.String())
	}
	if !strings.Contains(debugBuf.String(), "rx line") || !strings.Contains(debugBuf.String(), "session passed") {
		t.Fatalf("debug handler missing records: %q", debugBuf.String())
	}
	if !strings.Contains(infoBuf.String(), "session_id=s-9") {
		t.Fatalf("expected attrs propagated, got %q", infoBuf.String())
	}
}

func TestTeeLoggerDuplicatesOutput(t *testing.T) {
	var a, b bytes.Buffer
	base := slog.New(slog.NewTextHandler(&a, nil))
	logger := TeeLogger(base, slog.NewTextHandler(&b, nil))
	logger.Info("port restored")
	if !strings.Contains(a.String(), "port restored") || !strings.Contains(b.String(), "port restored") {
		t.Fatalf("expected both outputs, got %q and %q", a.String(), b.String())
	}
}
