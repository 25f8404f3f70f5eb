package kpi_test

import (
	"testing"
	"time"

	"laserlink/internal/kpi"
	"laserlink/internal/sessions"
	"laserlink/internal/testsupport"
)

func at(day, hour, minute int) time.Time {
	return time.Date(2026, 3, day, hour, minute, 0, 0, time.UTC)
}

func newTracker(keep int) *kpi.Tracker {
	return kpi.NewTracker(kpi.Options{DayStart: 7*60 + 30, NightStart: 19*60 + 30, KeepDays: keep, Location: time.UTC})
}

func TestLocateAssignsShifts(t *testing.T) {
	tracker := newTracker(3)
	cases := []struct {
		at    time.Time
		key   string
		shift kpi.Shift
	}{
		{at(2, 7, 29), "2026-03-01", kpi.ShiftNight},
		{at(2, 7, 30), "2026-03-02", kpi.ShiftDay},
		{at(2, 19, 29), "2026-03-02", kpi.ShiftDay},
		{at(2, 19, 30), "2026-03-02", kpi.ShiftNight},
		{at(2, 23, 59), "2026-03-02", kpi.ShiftNight},
		{at(3, 0, 10), "2026-03-02", kpi.ShiftNight},
	}
	for _, tc := range cases {
		key, shift := tracker.Locate(tc.at)
		if key != tc.key || shift != tc.shift {
			t.Fatalf("Locate(%s) = %s/%s, want %s/%s", tc.at.Format(time.Kitchen), key, shift, tc.key, tc.shift)
		}
	}
}

func TestReportBucketsAndTotals(t *testing.T) {
	tracker := newTracker(3)
	tracker.Record(at(2, 8, 15), true, 2*time.Second)
	tracker.Record(at(2, 8, 45), false, 4*time.Second)
	tracker.Record(at(3, 6, 5), true, 0)

	report := tracker.Report(at(3, 6, 30))
	if report.ActiveDay != "2026-03-02" || report.ActiveShift != kpi.ShiftNight {
		t.Fatalf("unexpected active day %s/%s", report.ActiveDay, report.ActiveShift)
	}
	day := report.Active()
	if day.Total != 3 || day.Pass != 2 || day.Fail != 1 {
		t.Fatalf("unexpected day totals %+v", day)
	}
	if day.Day.Total != 2 || day.Day.PassRate != 50 || day.Day.AvgCycleMS != 3000 {
		t.Fatalf("unexpected day shift %+v", day.Day)
	}
	if day.Night.Total != 1 || day.Night.PassRate != 100 {
		t.Fatalf("unexpected night shift %+v", day.Night)
	}

	if len(day.Day.Buckets) != 13 || len(day.Night.Buckets) != 13 {
		t.Fatalf("expected 13 buckets per shift, got %d/%d", len(day.Day.Buckets), len(day.Night.Buckets))
	}
	wantLabels := map[int]string{0: "07:30-08:00", 1: "08:00-09:00", 12: "19:00-19:30"}
	for idx, label := range wantLabels {
		if day.Day.Buckets[idx].Label != label {
			t.Fatalf("bucket %d label %q, want %q", idx, day.Day.Buckets[idx].Label, label)
		}
	}
	if day.Day.Buckets[1].Total != 2 || day.Day.Buckets[1].Pass != 1 {
		t.Fatalf("unexpected 08:00 bucket %+v", day.Day.Buckets[1])
	}
	if day.Night.Buckets[0].Label != "19:30-20:00" || day.Night.Buckets[12].Label != "07:00-07:30" {
		t.Fatalf("unexpected night bucket labels %q %q", day.Night.Buckets[0].Label, day.Night.Buckets[12].Label)
	}
	if day.Night.Buckets[11].Total != 1 {
		t.Fatalf("expected 06:00 bucket to hold one event, got %+v", day.Night.Buckets[11])
	}

	if report.CurrentHour.Total != 1 || report.CurrentHour.Pass != 1 {
		t.Fatalf("unexpected current hour %+v", report.CurrentHour)
	}
	if len(day.Hours) != 2 || day.Hours[0].Total != 2 {
		t.Fatalf("unexpected clock hours %+v", day.Hours)
	}
	if got := day.Summary(); got != "2026-03-02 | DAY 1/2 (50.0%) | NIGHT 1/1 (100.0%)" {
		t.Fatalf("unexpected summary %q", got)
	}
}

func TestReportCreatesEmptyActiveDay(t *testing.T) {
	tracker := newTracker(3)
	report := tracker.Report(at(5, 12, 0))
	if len(report.Days) != 1 || report.Days[0].Key != "2026-03-05" {
		t.Fatalf("unexpected days %+v", report.Days)
	}
	if report.Days[0].Day.PassRate != 100 || len(report.Days[0].Day.Buckets) != 13 {
		t.Fatalf("unexpected empty day %+v", report.Days[0].Day)
	}
}

func TestKeepDaysEvictsOldest(t *testing.T) {
	tracker := newTracker(2)
	for _, day := range []int{1, 2, 3} {
		if !tracker.Record(at(day, 12, 0), true, time.Second) {
			t.Fatalf("record on day %d rejected", day)
		}
	}
	if tracker.Record(at(1, 12, 0), true, time.Second) {
		t.Fatal("expected event older than retained days to be ignored")
	}
	report := tracker.Report(at(3, 13, 0))
	if len(report.Days) != 2 || report.Days[0].Key != "2026-03-03" || report.Days[1].Key != "2026-03-02" {
		t.Fatalf("unexpected retained days %+v", report.Days)
	}
}

func TestSinceAndRebuild(t *testing.T) {
	tracker := newTracker(3)
	if got, want := tracker.Since(at(3, 10, 0)), at(1, 7, 30); !got.Equal(want) {
		t.Fatalf("Since = %s, want %s", got, want)
	}
	if got, want := tracker.Since(at(3, 6, 0)), time.Date(2026, 2, 28, 7, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("Since before day start = %s, want %s", got, want)
	}

	tracker.Record(at(2, 9, 0), true, time.Second)
	tracker.Rebuild([]sessions.Outcome{
		{FinishedAt: at(3, 9, 0), Passed: true, CycleMS: 1500},
		{FinishedAt: at(3, 9, 30), Passed: false, CycleMS: 2500},
	})
	report := tracker.Report(at(3, 10, 0))
	if len(report.Days) != 1 {
		t.Fatalf("rebuild must drop old state, got %d days", len(report.Days))
	}
	if report.Days[0].Total != 2 || report.Days[0].AvgCycleMS != 2000 {
		t.Fatalf("unexpected rebuilt day %+v", report.Days[0])
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.KPI.DayStart = "06:00"
	cfg.KPI.NightStart = "18:00"
	opts, err := kpi.OptionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("OptionsFromConfig: %v", err)
	}
	if opts.DayStart != 360 || opts.NightStart != 1080 || opts.KeepDays != cfg.KPI.KeepDays {
		t.Fatalf("unexpected options %+v", opts)
	}
	cfg.KPI.DayStart = "25:00"
	if _, err := kpi.OptionsFromConfig(cfg); err == nil {
		t.Fatal("expected invalid clock error")
	}
}
