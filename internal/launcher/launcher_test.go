package launcher

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func shell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}
}

func TestRunMissingPieces(t *testing.T) {
	base := t.TempDir()
	sh := shell(t)
	writeScript(t, base, "link_main.sh", "exit 0\n")

	cases := []struct {
		name string
		opts Options
		code int
	}{
		{"base", Options{BaseDir: filepath.Join(base, "gone"), Interpreter: sh, Script: "link_main.sh"}, ExitBaseMissing},
		{"empty base", Options{Interpreter: sh, Script: "link_main.sh"}, ExitBaseMissing},
		{"interpreter", Options{BaseDir: base, Interpreter: "python/python.exe", Script: "link_main.sh"}, ExitInterpreterMissing},
		{"script", Options{BaseDir: base, Interpreter: sh, Script: "src/missing.sh"}, ExitScriptMissing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, err := Run(context.Background(), tc.opts)
			if code != tc.code {
				t.Fatalf("expected code %d, got %d (%v)", tc.code, code, err)
			}
			var exitErr *ExitError
			if !errors.As(err, &exitErr) || exitErr.Code != tc.code {
				t.Fatalf("expected *ExitError with code %d, got %v", tc.code, err)
			}
			if ExitCode(err) != tc.code {
				t.Fatalf("ExitCode mismatch for %v", err)
			}
		})
	}
}

func TestRunForwardsArgsAndWorkingDirectory(t *testing.T) {
	base := t.TempDir()
	writeScript(t, base, "echo.sh", "pwd\necho \"$@\"\n")
	wd, _ := os.Getwd()

	var out bytes.Buffer
	code, err := Run(context.Background(), Options{
		BaseDir:     base,
		Interpreter: shell(t),
		Script:      "echo.sh",
		Args:        []string{"--port", "/dev/ttyUSB0"},
		Stdio:       Stdio{Stdout: &out},
	})
	if err != nil || code != 0 {
		t.Fatalf("expected success, got %d %v", code, err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("unexpected output %q", out.String())
	}
	resolvedBase, _ := filepath.EvalSymlinks(base)
	if lines[0] != base && lines[0] != resolvedBase {
		t.Fatalf("child ran in %q, want %q", lines[0], base)
	}
	if lines[1] != "--port /dev/ttyUSB0" {
		t.Fatalf("unexpected args %q", lines[1])
	}
	if now, _ := os.Getwd(); now != wd {
		t.Fatalf("launcher changed working directory to %q", now)
	}
}

func TestRunPropagatesChildExitCode(t *testing.T) {
	base := t.TempDir()
	writeScript(t, base, "fail.sh", "exit 7\n")

	code, err := Run(context.Background(), Options{BaseDir: base, Interpreter: shell(t), Script: "fail.sh"})
	if code != 7 {
		t.Fatalf("expected child code 7, got %d", code)
	}
	if ExitCode(err) != 7 {
		t.Fatalf("expected error to carry code 7, got %v", err)
	}
}

func TestExitCode(t *testing.T) {
	if ExitCode(nil) != 0 {
		t.Fatal("nil error should map to 0")
	}
	if ExitCode(errors.New("boom")) != 1 {
		t.Fatal("plain errors should map to 1")
	}
}
