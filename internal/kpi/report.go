package kpi

import (
	"fmt"
	"sort"
	"time"
)

// Bucket is one hourly slice of a shift.
type Bucket struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Total int       `json:"total"`
	Pass  int       `json:"pass"`
}

// ShiftReport summarises one shift.
type ShiftReport struct {
	Shift      Shift     `json:"shift"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Total      int       `json:"total"`
	Pass       int       `json:"pass"`
	Fail       int       `json:"fail"`
	PassRate   float64   `json:"pass_rate"`
	AvgCycleMS int64     `json:"avg_cycle_ms"`
	Buckets    []Bucket  `json:"buckets"`
}

// HourCount is the production of one clock hour.
type HourCount struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Total int       `json:"total"`
	Pass  int       `json:"pass"`
}

// DayReport summarises one KPI day.
type DayReport struct {
	Key        string      `json:"key"`
	Total      int         `json:"total"`
	Pass       int         `json:"pass"`
	Fail       int         `json:"fail"`
	AvgCycleMS int64       `json:"avg_cycle_ms"`
	Day        ShiftReport `json:"day"`
	Night      ShiftReport `json:"night"`
	Hours      []HourCount `json:"hours"`
}

// Report is the tracker state at one instant.
type Report struct {
	ActiveDay   string      `json:"active_day"`
	ActiveShift Shift       `json:"active_shift"`
	CurrentHour HourCount   `json:"current_hour"`
	GeneratedAt time.Time   `json:"generated_at"`
	Days        []DayReport `json:"days"`
}

// Active returns the report of the active KPI day.
func (r Report) Active() DayReport {
	for _, day := range r.Days {
		if day.Key == r.ActiveDay {
			return day
		}
	}
	return DayReport{Key: r.ActiveDay}
}

// Summary renders the one-line shift overview shown by the CLI.
func (d DayReport) Summary() string {
	return fmt.Sprintf("%s | DAY %d/%d (%.1f%%) | NIGHT %d/%d (%.1f%%)",
		d.Key,
		d.Day.Pass, d.Day.Total, d.Day.PassRate,
		d.Night.Pass, d.Night.Total, d.Night.PassRate,
	)
}

// Report returns a copy of the retained days, newest first. The KPI day
// containing now is created with empty buckets when it has no events yet.
func (t *Tracker) Report(now time.Time) Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	now = now.In(t.opts.Location)
	activeKey, activeShift := t.Locate(now)
	t.ensureDay(activeKey)

	report := Report{ActiveDay: activeKey, ActiveShift: activeShift, GeneratedAt: now}
	hour := floorHour(now)
	report.CurrentHour = HourCount{Start: hour, End: hour.Add(time.Hour)}
	if day, ok := t.days[activeKey]; ok {
		if hc, ok := day.hours[hour]; ok {
			report.CurrentHour.Total = hc.total
			report.CurrentHour.Pass = hc.pass
		}
	}

	keys := t.sortedKeys()
	for i := len(keys) - 1; i >= 0; i-- {
		report.Days = append(report.Days, t.days[keys[i]].report())
	}
	return report
}

func (d *dayState) report() DayReport {
	out := DayReport{
		Key:   d.key,
		Day:   d.shifts[ShiftDay].report(ShiftDay),
		Night: d.shifts[ShiftNight].report(ShiftNight),
	}
	var all counter
	for _, s := range d.shifts {
		all.total += s.total
		all.pass += s.pass
		all.sumCycle += s.sumCycle
		all.nCycle += s.nCycle
	}
	out.Total = all.total
	out.Pass = all.pass
	out.Fail = all.total - all.pass
	out.AvgCycleMS = all.avgCycleMS()

	hours := make([]time.Time, 0, len(d.hours))
	for h := range d.hours {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool { return hours[i].Before(hours[j]) })
	for _, h := range hours {
		c := d.hours[h]
		out.Hours = append(out.Hours, HourCount{Start: h, End: h.Add(time.Hour), Total: c.total, Pass: c.pass})
	}
	return out
}

func (s *shiftState) report(shift Shift) ShiftReport {
	out := ShiftReport{
		Shift:      shift,
		Start:      s.start,
		End:        s.end,
		Total:      s.total,
		Pass:       s.pass,
		Fail:       s.total - s.pass,
		PassRate:   passRate(s.pass, s.total),
		AvgCycleMS: s.avgCycleMS(),
		Buckets:    make([]Bucket, 0, len(s.buckets)),
	}
	for _, b := range s.buckets {
		out.Buckets = append(out.Buckets, Bucket{
			Label: b.start.Format("15:04") + "-" + b.end.Format("15:04"),
			Start: b.start,
			End:   b.end,
			Total: b.total,
			Pass:  b.pass,
		})
	}
	return out
}

func (c counter) avgCycleMS() int64 {
	if c.nCycle == 0 {
		return 0
	}
	return (c.sumCycle / time.Duration(c.nCycle)).Milliseconds()
}

// passRate is 100 for an empty shift.
func passRate(pass, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(pass) / float64(total) * 100
}
