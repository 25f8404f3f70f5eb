package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Exit codes reported when the launch cannot happen.
const (
	ExitBaseMissing        = 1
	ExitInterpreterMissing = 2
	ExitScriptMissing      = 3
)

// Stdio wires the child's standard streams. Nil fields inherit nothing.
type Stdio struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Options describes one launch. Interpreter and Script are resolved against
// BaseDir unless absolute.
type Options struct {
	BaseDir     string
	Interpreter string
	Script      string
	Args        []string
	Stdio       Stdio
	// Env is appended to the current environment.
	Env []string
}

// ExitError reports a non-zero launch outcome.
type ExitError struct {
	Code int
	Path string
	Err  error
}

func (e *ExitError) Error() string {
	switch e.Code {
	case ExitBaseMissing:
		return fmt.Sprintf("base folder not found: %s", e.Path)
	case ExitInterpreterMissing:
		return fmt.Sprintf("interpreter not found: %s", e.Path)
	case ExitScriptMissing:
		return fmt.Sprintf("script not found: %s", e.Path)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s exited with code %d: %v", e.Path, e.Code, e.Err)
	}
	return fmt.Sprintf("%s exited with code %d", e.Path, e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode extracts the exit code carried by err: 0 for nil, the launch
// code for *ExitError and 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// Run checks that the base folder, interpreter and script exist, then runs
// the interpreter on the script with Args forwarded and BaseDir as the
// child's working directory. The returned code is also carried by the error.
func Run(ctx context.Context, opts Options) (int, error) {
	base := strings.TrimSpace(opts.BaseDir)
	if !isDir(base) {
		return ExitBaseMissing, &ExitError{Code: ExitBaseMissing, Path: base}
	}
	interpreter := resolve(base, opts.Interpreter)
	if !isFile(interpreter) {
		return ExitInterpreterMissing, &ExitError{Code: ExitInterpreterMissing, Path: interpreter}
	}
	script := resolve(base, opts.Script)
	if !isFile(script) {
		return ExitScriptMissing, &ExitError{Code: ExitScriptMissing, Path: script}
	}

	args := append([]string{script}, opts.Args...)
	cmd := exec.CommandContext(ctx, interpreter, args...)
	cmd.Dir = base
	cmd.Stdin = opts.Stdio.Stdin
	cmd.Stdout = opts.Stdio.Stdout
	cmd.Stderr = opts.Stdio.Stderr
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			// Killed by a signal or context cancellation.
			code = 1
		}
		return code, &ExitError{Code: code, Path: interpreter, Err: err}
	}
	return 1, &ExitError{Code: 1, Path: interpreter, Err: err}
}

func resolve(base, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(base, name)
}

func isDir(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
