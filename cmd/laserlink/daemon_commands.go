package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"laserlink/internal/api"
	"laserlink/internal/daemonctl"
	"laserlink/internal/daemonrun"
	"laserlink/internal/sessions"
)

const (
	stopGracePeriod  = 5 * time.Second
	startWaitTimeout = 10 * time.Second
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bridge daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:   logLevel,
				ConfigPath: ctx.watchPath(),
			})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	return cmd
}

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the bridge daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonLaunchOptions(ctx, startLogLevel), startWaitTimeout)
			if err != nil {
				return err
			}
			printStartResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override logging.level for the daemon")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the bridge daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.configValue(), stopGracePeriod)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			printStopResult(stdout, result)
			return nil
		},
	}

	var restartLogLevel string
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the bridge daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.StopAndTerminate(ctx.configValue(), stopGracePeriod)
			switch {
			case errors.Is(err, daemonctl.ErrDaemonNotRunning):
			case err != nil:
				return err
			default:
				printStopResult(stdout, result)
			}
			started, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonLaunchOptions(ctx, restartLogLevel), startWaitTimeout)
			if err != nil {
				return err
			}
			printStartResult(stdout, started)
			return nil
		},
	}
	restartCmd.Flags().StringVar(&restartLogLevel, "log-level", "", "Override logging.level for the daemon")

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, bridge and session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.configValue())
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, statusView{Daemon: snapshot.Daemon, Checks: snapshot.Checks})
			}
			renderStatus(cmd.OutOrStdout(), snapshot, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output as JSON")

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

type statusView struct {
	Daemon api.DaemonStatus `json:"daemon"`
	Checks []api.StatusLine `json:"checks"`
}

func renderStatus(stdout io.Writer, snapshot *daemonctl.StatusSnapshot, colorize bool) {
	printSection(stdout, "System Status", colorize)
	for _, line := range renderStatusLines(snapshot.Checks, colorize) {
		fmt.Fprintln(stdout, line)
	}

	if snapshot.Daemon.Running {
		fmt.Fprintln(stdout)
		printSection(stdout, "Bridge", colorize)
		for _, line := range renderStatusLines(bridgeDetailLines(snapshot.Daemon), colorize) {
			fmt.Fprintln(stdout, line)
		}
	}

	fmt.Fprintln(stdout)
	printSection(stdout, "Sessions", colorize)
	rows := buildSessionStatsRows(snapshot.Daemon.SessionStats)
	if len(rows) == 0 {
		fmt.Fprintln(stdout, "No sessions recorded")
		return
	}
	fmt.Fprintln(stdout, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func bridgeDetailLines(status api.DaemonStatus) []api.StatusLine {
	b := status.Bridge
	lines := []api.StatusLine{
		{Label: "Mode", Severity: "info", Detail: b.Mode},
		{Label: "Laser port", Severity: "info", Detail: orDash(b.LaserPort)},
		{Label: "SFC port", Severity: "info", Detail: orDash(b.SFCPort)},
		{Label: "Counters", Severity: "info", Detail: fmt.Sprintf("passed %d, failed %d", b.Passed, b.Failed)},
	}
	if b.CurrentSession != "" {
		lines = append(lines, api.StatusLine{Label: "Current session", Severity: "warn", Detail: b.CurrentSession})
	}
	if b.LastEvent != "" {
		detail := b.LastEvent
		if b.LastStatus != "" {
			detail = fmt.Sprintf("%s (%s)", b.LastEvent, b.LastStatus)
		}
		lines = append(lines, api.StatusLine{Label: "Last event", Severity: severityForOutcome(b.LastStatus), Detail: detail})
	}
	if b.LastRequest != "" {
		lines = append(lines, api.StatusLine{Label: "Last request", Severity: "info", Detail: b.LastRequest})
	}
	if b.LastResponse != "" {
		lines = append(lines, api.StatusLine{Label: "Last response", Severity: "info", Detail: b.LastResponse})
	}
	if status.KPI != "" {
		lines = append(lines, api.StatusLine{Label: "KPI", Severity: "info", Detail: status.KPI})
	}
	return lines
}

func severityForOutcome(value string) string {
	switch outcomeKind(value) {
	case statusOK:
		return "ok"
	case statusError:
		return "error"
	case statusWarn:
		return "warn"
	default:
		return "info"
	}
}

var sessionStatusOrder = []string{
	string(sessions.StatusRunning),
	string(sessions.StatusPassed),
	string(sessions.StatusFailed),
}

func buildSessionStatsRows(stats map[string]int) [][]string {
	total := 0
	for _, count := range stats {
		total += count
	}
	if total == 0 {
		return nil
	}
	keys := make([]string, 0, len(stats))
	seen := make(map[string]bool, len(sessionStatusOrder))
	for _, key := range sessionStatusOrder {
		seen[key] = true
		if _, ok := stats[key]; ok {
			keys = append(keys, key)
		}
	}
	extra := make([]string, 0)
	for key := range stats {
		if !seen[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	keys = append(keys, extra...)

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{formatStatusLabel(key), fmt.Sprintf("%d", stats[key])})
	}
	return rows
}

func formatStatusLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "Unknown"
	}
	parts := strings.Split(value, "_")
	for i, part := range parts {
		if part == "" {
			continue
		}
		parts[i] = strings.ToUpper(part[:1]) + part[1:]
	}
	return strings.Join(parts, " ")
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func printStartResult(stdout io.Writer, result daemonctl.StartResult) {
	switch result.State {
	case daemonctl.StartStateAlreadyRunning:
		fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", result.PID)
	default:
		fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
	}
}

func printStopResult(stdout io.Writer, result daemonctl.StopResult) {
	if result.StopAcknowledged {
		fmt.Fprintln(stdout, "Stopping daemon...")
	} else {
		fmt.Fprintln(stdout, "Stop request sent")
	}
	if result.ForcedKill && result.PID > 0 {
		fmt.Fprintf(stdout, "Daemon did not exit in time; killed pid %d\n", result.PID)
	}
	fmt.Fprintln(stdout, "Daemon stopped")
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext, logLevel string) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{LogLevel: strings.TrimSpace(logLevel)}
	if _, err := ctx.ensureConfig(); err == nil && ctx.configPath != "" {
		opts.ConfigPath = ctx.configPath
	} else if ctx.configFlag != nil {
		opts.ConfigPath = strings.TrimSpace(*ctx.configFlag)
	}
	return opts
}
