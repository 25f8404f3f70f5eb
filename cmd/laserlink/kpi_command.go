package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"laserlink/internal/config"
	"laserlink/internal/ipc"
	"laserlink/internal/kpi"
	"laserlink/internal/sessions"
)

func newKPICommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var all bool
	cmd := &cobra.Command{
		Use:   "kpi",
		Short: "Show shift production counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := loadKPIReport(cmd.Context(), ctx)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, report)
			}
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)
			days := []kpi.DayReport{report.Active()}
			if all {
				days = report.Days
			}
			for i, day := range days {
				if i > 0 {
					fmt.Fprintln(stdout)
				}
				renderKPIDay(stdout, day, report, colorize)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&all, "all", false, "Show every retained day, not only the active one")
	return cmd
}

// loadKPIReport asks the daemon and rebuilds the counters from the sessions
// database when it is not running.
func loadKPIReport(cmdCtx context.Context, ctx *commandContext) (kpi.Report, error) {
	if client, err := ipc.Dial(ctx.socketPath()); err == nil {
		defer client.Close()
		resp, err := client.KPI()
		if err != nil {
			return kpi.Report{}, err
		}
		return resp.Report, nil
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return kpi.Report{}, err
	}
	return offlineKPIReport(cmdCtx, cfg, time.Now())
}

func offlineKPIReport(ctx context.Context, cfg *config.Config, now time.Time) (kpi.Report, error) {
	opts, err := kpi.OptionsFromConfig(cfg)
	if err != nil {
		return kpi.Report{}, err
	}
	tracker := kpi.NewTracker(opts)
	store, err := sessions.Open(cfg)
	if err != nil {
		return kpi.Report{}, err
	}
	defer store.Close()
	outcomes, err := store.Outcomes(ctx, tracker.Since(now))
	if err != nil {
		return kpi.Report{}, err
	}
	tracker.Rebuild(outcomes)
	return tracker.Report(now), nil
}

func renderKPIDay(stdout io.Writer, day kpi.DayReport, report kpi.Report, colorize bool) {
	printSection(stdout, "KPI "+day.Key, colorize)
	fmt.Fprintln(stdout, statusIndent+day.Summary())
	if day.Key == report.ActiveDay {
		fmt.Fprintf(stdout, "%sActive shift: %s, current hour %d/%d\n", statusIndent,
			report.ActiveShift, report.CurrentHour.Pass, report.CurrentHour.Total)
	}
	fmt.Fprintf(stdout, "%sAverage cycle: %s\n", statusIndent, formatDurationMS(day.AvgCycleMS))

	for _, shift := range []kpi.ShiftReport{day.Day, day.Night} {
		if len(shift.Buckets) == 0 {
			continue
		}
		rows := make([][]string, 0, len(shift.Buckets))
		for _, bucket := range shift.Buckets {
			rows = append(rows, []string{
				bucket.Label,
				fmt.Sprintf("%d", bucket.Pass),
				fmt.Sprintf("%d", bucket.Total-bucket.Pass),
				fmt.Sprintf("%d", bucket.Total),
			})
		}
		fmt.Fprintln(stdout, renderTableSpec(tableSpec{
			Title:   fmt.Sprintf("%s shift", formatStatusLabel(string(shift.Shift))),
			Headers: []string{"Hour", "Pass", "Fail", "Total"},
			Rows:    rows,
			Footer: []string{
				fmt.Sprintf("%.1f%%", shift.PassRate),
				fmt.Sprintf("%d", shift.Pass),
				fmt.Sprintf("%d", shift.Fail),
				fmt.Sprintf("%d", shift.Total),
			},
			Aligns: []columnAlignment{alignLeft, alignRight, alignRight, alignRight},
		}))
	}
}
