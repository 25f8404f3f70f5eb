package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"laserlink/internal/launcher"
)

func TestResolveBasePrecedence(t *testing.T) {
	t.Setenv(homeEnv, "/opt/laserlink")
	if got, _ := resolveBase(" /srv/link "); got != "/srv/link" {
		t.Fatalf("flag should win, got %q", got)
	}
	if got, _ := resolveBase(""); got != "/opt/laserlink" {
		t.Fatalf("env should be used, got %q", got)
	}
	t.Setenv(homeEnv, "")
	got, err := resolveBase("")
	if err != nil || got == "" {
		t.Fatalf("expected executable folder, got %q %v", got, err)
	}
}

func TestExecuteExitCodes(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	base := t.TempDir()
	if err := os.WriteFile(filepath.Join(base, "run.sh"), []byte("exit 4\n"), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	ctx := context.Background()
	if code := execute(ctx, []string{"--base", filepath.Join(base, "missing")}); code != launcher.ExitBaseMissing {
		t.Fatalf("expected %d for a missing base, got %d", launcher.ExitBaseMissing, code)
	}
	if code := execute(ctx, []string{"--base", base, "--interpreter", "nope"}); code != launcher.ExitInterpreterMissing {
		t.Fatalf("expected %d for a missing interpreter, got %d", launcher.ExitInterpreterMissing, code)
	}
	if code := execute(ctx, []string{"--base", base, "--interpreter", sh}); code != launcher.ExitScriptMissing {
		t.Fatalf("expected %d for a missing script, got %d", launcher.ExitScriptMissing, code)
	}
	if code := execute(ctx, []string{"--base", base, "--interpreter", sh, "--script", "run.sh", "--port", "COM3"}); code != 4 {
		t.Fatalf("expected the child's exit code 4, got %d", code)
	}
	if code := execute(ctx, []string{"--base=" + base, "--interpreter=" + sh, "--script=run.sh", "--", "--base", "x"}); code != 4 {
		t.Fatalf("expected the child's exit code 4 after --, got %d", code)
	}
	if code := execute(ctx, []string{"--base", base, "--script"}); code != exitUsage {
		t.Fatalf("expected usage code %d, got %d", exitUsage, code)
	}
}

func TestParseLaunchArgs(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		forwarded []string
		base      string
		script    string
		wantErr   bool
	}{
		{name: "none", args: nil},
		{name: "child flags forwarded", args: []string{"--base", "/b", "--port", "COM3", "--base", "/x"}, base: "/b", forwarded: []string{"--port", "COM3", "--base", "/x"}},
		{name: "inline values", args: []string{"--base=/b", "--script=run.sh", "go"}, base: "/b", script: "run.sh", forwarded: []string{"go"}},
		{name: "separator", args: []string{"--", "--script", "other"}, forwarded: []string{"--script", "other"}},
		{name: "positional stops parsing", args: []string{"COM3", "--base", "/b"}, forwarded: []string{"COM3", "--base", "/b"}},
		{name: "missing value", args: []string{"--base"}, wantErr: true},
		{name: "empty inline value", args: []string{"--script="}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var flags launchFlags
			forwarded, err := parseLaunchArgs(tc.args, &flags)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseLaunchArgs: %v", err)
			}
			if diff := cmp.Diff(tc.forwarded, forwarded); diff != "" {
				t.Fatalf("forwarded args differ (-want +got):\n%s", diff)
			}
			if flags.base != tc.base || flags.script != tc.script {
				t.Fatalf("unexpected flags %+v", flags)
			}
		})
	}
}
