package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"laserlink/internal/api"
)

const defaultSessionLimit = 20

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Inspect recorded handshake sessions",
	}
	cmd.AddCommand(newSessionsListCommand(ctx))
	cmd.AddCommand(newSessionsShowCommand(ctx))
	cmd.AddCommand(newSessionsHealthCommand(ctx))
	return cmd
}

func newSessionsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var limit int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return errors.New("--limit must be zero or positive")
			}
			return withSessionAPI(ctx, func(svc sessionAPI) error {
				list, err := svc.List(cmd.Context(), statuses, limit)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, list)
				}
				stdout := cmd.OutOrStdout()
				if len(list) == 0 {
					fmt.Fprintln(stdout, "No sessions found")
					return nil
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"ID", "Started", "MO", "NEEDPSN", "Status", "Stage", "Cycle", "Detail"},
					buildSessionListRows(list, shouldColorize(stdout)),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (running, passed, failed); repeatable")
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultSessionLimit, "Maximum sessions to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newSessionsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one session and its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if id == "" {
				return errors.New("session id is required")
			}
			return withSessionAPI(ctx, func(svc sessionAPI) error {
				detail, err := svc.Describe(cmd.Context(), id)
				if err != nil {
					return err
				}
				if detail == nil {
					return fmt.Errorf("session %s not found", id)
				}
				if jsonOut {
					return writeJSON(cmd, detail)
				}
				renderSessionDetail(cmd.OutOrStdout(), detail, shouldColorize(cmd.OutOrStdout()))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func buildSessionListRows(list []api.Session, colorize bool) [][]string {
	rows := make([][]string, 0, len(list))
	for _, s := range list {
		rows = append(rows, []string{
			shortID(s.ID),
			formatDisplayTime(s.StartedAt),
			orDash(s.MO),
			orDash(s.NeedPSN),
			colorText(outcomeKind(s.Status), s.Status, colorize),
			s.Stage,
			formatCycle(s),
			sessionDetail(s),
		})
	}
	return rows
}

func renderSessionDetail(stdout io.Writer, detail *api.SessionDetail, colorize bool) {
	s := detail.Session
	printSection(stdout, "Session "+s.ID, colorize)
	lines := []api.StatusLine{
		{Label: "Status", Severity: severityForOutcome(s.Status), Detail: s.Status},
		{Label: "Stage", Severity: "info", Detail: s.Stage},
		{Label: "MO", Severity: "info", Detail: orDash(s.MO)},
		{Label: "NEEDPSN", Severity: "info", Detail: orDash(s.NeedPSN)},
		{Label: "Model", Severity: "info", Detail: orDash(s.Model)},
		{Label: "Started", Severity: "info", Detail: formatDisplayTime(s.StartedAt)},
		{Label: "Finished", Severity: "info", Detail: formatDisplayTime(s.FinishedAt)},
		{Label: "Cycle", Severity: "info", Detail: formatCycle(s)},
	}
	if s.FinalResult != "" {
		lines = append(lines, api.StatusLine{Label: "Final result", Severity: severityForOutcome(s.FinalResult), Detail: s.FinalResult})
	}
	if s.Error != "" {
		lines = append(lines, api.StatusLine{Label: "Error", Severity: "error", Detail: s.Error})
	}
	for _, line := range renderStatusLines(lines, colorize) {
		fmt.Fprintln(stdout, line)
	}

	fmt.Fprintln(stdout)
	printSection(stdout, "Transcript", colorize)
	if len(detail.Messages) == 0 {
		fmt.Fprintln(stdout, "No messages recorded")
		return
	}
	rows := make([][]string, 0, len(detail.Messages))
	for _, msg := range detail.Messages {
		rows = append(rows, []string{
			fmt.Sprintf("%d", msg.Seq),
			formatClock(msg.RecordedAt),
			msg.Direction,
			msg.Payload,
		})
	}
	fmt.Fprintln(stdout, renderTable([]string{"#", "Time", "Direction", "Payload"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft}))
}

func sessionDetail(s api.Session) string {
	if s.Error != "" {
		return truncate(s.Error, 48)
	}
	return s.FinalResult
}

func formatCycle(s api.Session) string {
	if s.CycleMS <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1fs", float64(s.CycleMS)/1000)
}

func formatDisplayTime(value string) string {
	parsed := api.ParseTime(value)
	if parsed.IsZero() {
		return "-"
	}
	return parsed.Local().Format("2006-01-02 15:04:05")
}

func formatClock(value string) string {
	parsed := api.ParseTime(value)
	if parsed.IsZero() {
		return "-"
	}
	return parsed.Local().Format("15:04:05.000")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-1]) + "…"
}

func formatDurationMS(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return (time.Duration(ms) * time.Millisecond).Round(100 * time.Millisecond).String()
}
