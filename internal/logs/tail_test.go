package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"laserlink/internal/logs"
)

func writeLog(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append log: %v", err)
	}
}

func TestLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "laserlinkd.log")
	writeLog(t, path, "a\nb\r\nc\npartial")

	lines, offset, err := logs.Last(path, 2)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("unexpected lines %#v", lines)
	}
	if offset != int64(len("a\nb\r\nc\n")) {
		t.Fatalf("expected offset before the partial line, got %d", offset)
	}

	lines, _, err = logs.Last(path, 10)
	if err != nil || len(lines) != 3 {
		t.Fatalf("expected every complete line, got %#v %v", lines, err)
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, offset, err := logs.Last(filepath.Join(t.TempDir(), "none.log"), 5)
	if err != nil || len(lines) != 0 || offset != 0 {
		t.Fatalf("expected empty result, got %#v %d %v", lines, offset, err)
	}
}

func TestReadFromResetsAfterTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "laserlinkd.log")
	writeLog(t, path, "first\nsecond\n")
	_, offset, err := logs.Last(path, 0)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	appendLog(t, path, "third\n")
	lines, next, err := logs.ReadFrom(path, offset)
	if err != nil || len(lines) != 1 || lines[0] != "third" {
		t.Fatalf("expected appended line, got %#v %v", lines, err)
	}

	writeLog(t, path, "rotated\n")
	lines, _, err = logs.ReadFrom(path, next)
	if err != nil || len(lines) != 1 || lines[0] != "rotated" {
		t.Fatalf("expected rotated file from the start, got %#v %v", lines, err)
	}
}

func TestFollowDeliversAppendedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "laserlinkd.log")
	writeLog(t, path, "start\n")
	_, offset, err := logs.Last(path, 1)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	var got []string
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, offset, func(line string) {
			mu.Lock()
			got = append(got, line)
			n := len(got)
			mu.Unlock()
			if n == 2 {
				cancel()
			}
		})
	}()

	appendLog(t, path, "trigger received\n")
	appendLog(t, path, "session passed\n")

	<-done
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "trigger received" || got[1] != "session passed" {
		t.Fatalf("unexpected followed lines %#v", got)
	}
}
