// Command laserlink-launch starts the bundled interpreter on the bridge
// script that ships next to it and exits with the child's exit code.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"laserlink/internal/launcher"
)

const homeEnv = "LASERLINK_HOME"

// exitUsage is kept apart from the launcher's 1-3 and from typical child codes.
const exitUsage = 64

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	cancel()
	os.Exit(code)
}

type launchFlags struct {
	base        string
	interpreter string
	script      string
	help        bool
}

func execute(ctx context.Context, args []string) int {
	flags := launchFlags{
		interpreter: filepath.Join("python", "python.exe"),
		script:      filepath.Join("src", "link_main.py"),
	}
	code := 0

	cmd := &cobra.Command{
		Use:   "laserlink-launch [--base dir] [--interpreter path] [--script path] [--] [args...]",
		Short: "Run the bundled bridge script with its interpreter",
		Long: "Launcher flags are only read before the first other argument. Everything\n" +
			"from there on, or after --, is passed to the script unchanged.",
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, raw []string) error {
			forwarded, err := parseLaunchArgs(raw, &flags)
			if err != nil {
				code = exitUsage
				return err
			}
			if flags.help {
				return cmd.Help()
			}
			dir, err := resolveBase(flags.base)
			if err != nil {
				code = launcher.ExitBaseMissing
				return err
			}
			code, err = launcher.Run(cmd.Context(), launcher.Options{
				BaseDir:     dir,
				Interpreter: flags.interpreter,
				Script:      flags.script,
				Args:        forwarded,
				Stdio:       launcher.Stdio{Stdin: os.Stdin, Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()},
			})
			return err
		},
	}
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		// A child that ran and failed has already reported on its own streams.
		var exitErr *launcher.ExitError
		isExit := errors.As(err, &exitErr)
		if !isExit || exitErr.Err == nil {
			fmt.Fprintln(os.Stderr, err)
		}
		if code == 0 {
			code = exitUsage
			if isExit {
				code = exitErr.Code
			}
		}
	}
	return code
}

// parseLaunchArgs consumes the leading launcher flags and returns the rest.
func parseLaunchArgs(args []string, flags *launchFlags) ([]string, error) {
	targets := map[string]*string{
		"--base":        &flags.base,
		"--interpreter": &flags.interpreter,
		"--script":      &flags.script,
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--":
			return args[i+1:], nil
		case arg == "-h" || arg == "--help":
			flags.help = true
			continue
		}
		name, value, inline := strings.Cut(arg, "=")
		target, ok := targets[name]
		if !ok {
			return args[i:], nil
		}
		if !inline {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("flag %s needs a value", name)
			}
			i++
			value = args[i]
		}
		if strings.TrimSpace(value) == "" {
			return nil, fmt.Errorf("flag %s needs a value", name)
		}
		*target = value
	}
	return nil, nil
}

func resolveBase(flagValue string) (string, error) {
	if value := strings.TrimSpace(flagValue); value != "" {
		return value, nil
	}
	if value := strings.TrimSpace(os.Getenv(homeEnv)); value != "" {
		return value, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve launcher folder: %w", err)
	}
	return filepath.Dir(exe), nil
}
