package kpi

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"laserlink/internal/config"
	"laserlink/internal/sessions"
)

const dayKeyLayout = "2006-01-02"

// Shift names one half of a KPI day.
type Shift string

const (
	ShiftDay   Shift = "day"
	ShiftNight Shift = "night"
)

// Options configure shift boundaries in minutes after midnight.
type Options struct {
	DayStart   int
	NightStart int
	KeepDays   int
	Location   *time.Location
}

// OptionsFromConfig reads the [kpi] section.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	day, err := config.ParseClock(cfg.KPI.DayStart)
	if err != nil {
		return Options{}, fmt.Errorf("kpi.day_start: %w", err)
	}
	night, err := config.ParseClock(cfg.KPI.NightStart)
	if err != nil {
		return Options{}, fmt.Errorf("kpi.night_start: %w", err)
	}
	return Options{DayStart: day, NightStart: night, KeepDays: cfg.KPI.KeepDays}, nil
}

type counter struct {
	total    int
	pass     int
	sumCycle time.Duration
	nCycle   int
}

func (c *counter) add(passed bool, cycle time.Duration) {
	c.total++
	if passed {
		c.pass++
	}
	if cycle > 0 {
		c.sumCycle += cycle
		c.nCycle++
	}
}

type bucket struct {
	start time.Time
	end   time.Time
	counter
}

type shiftState struct {
	start   time.Time
	end     time.Time
	buckets []*bucket
	counter
}

type dayState struct {
	key    string
	shifts map[Shift]*shiftState
	hours  map[time.Time]*counter
}

// Tracker aggregates outcomes per KPI day, shift and hour. It is safe for
// concurrent use.
type Tracker struct {
	opts Options

	mu   sync.Mutex
	days map[string]*dayState
}

// NewTracker returns an empty tracker.
func NewTracker(opts Options) *Tracker {
	if opts.KeepDays <= 0 {
		opts.KeepDays = 3
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.NightStart <= opts.DayStart {
		opts.DayStart, opts.NightStart = 7*60+30, 19*60+30
	}
	return &Tracker{opts: opts, days: make(map[string]*dayState)}
}

// Locate returns the KPI day key and shift an instant belongs to.
func (t *Tracker) Locate(at time.Time) (string, Shift) {
	at = at.In(t.opts.Location)
	minute := at.Hour()*60 + at.Minute()
	switch {
	case minute >= t.opts.DayStart && minute < t.opts.NightStart:
		return at.Format(dayKeyLayout), ShiftDay
	case minute < t.opts.DayStart:
		return at.AddDate(0, 0, -1).Format(dayKeyLayout), ShiftNight
	default:
		return at.Format(dayKeyLayout), ShiftNight
	}
}

// Since returns the start of the oldest KPI day the tracker keeps when now is
// the current time. Callers load outcomes from this instant on.
func (t *Tracker) Since(now time.Time) time.Time {
	key, _ := t.Locate(now)
	date, _ := time.ParseInLocation(dayKeyLayout, key, t.opts.Location)
	return t.at(date.AddDate(0, 0, -(t.opts.KeepDays - 1)), t.opts.DayStart)
}

// Record counts one finished session. Events older than the retained days
// are ignored and reported as false.
func (t *Tracker) Record(at time.Time, passed bool, cycle time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record(at, passed, cycle)
}

// Rebuild drops all state and replays outcomes.
func (t *Tracker) Rebuild(outcomes []sessions.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.days = make(map[string]*dayState)
	for _, outcome := range outcomes {
		t.record(outcome.FinishedAt, outcome.Passed, time.Duration(outcome.CycleMS)*time.Millisecond)
	}
}

func (t *Tracker) record(at time.Time, passed bool, cycle time.Duration) bool {
	at = at.In(t.opts.Location)
	key, shift := t.Locate(at)
	day := t.ensureDay(key)
	if day == nil {
		return false
	}
	state := day.shifts[shift]
	state.add(passed, cycle)
	state.bucketFor(at).add(passed, cycle)

	hour := floorHour(at)
	hc, ok := day.hours[hour]
	if !ok {
		hc = &counter{}
		day.hours[hour] = hc
	}
	hc.add(passed, cycle)
	return true
}

// ensureDay returns the state for key, creating it with empty buckets. It
// returns nil when key is older than every retained day and the limit is
// reached.
func (t *Tracker) ensureDay(key string) *dayState {
	if day, ok := t.days[key]; ok {
		return day
	}
	date, err := time.ParseInLocation(dayKeyLayout, key, t.opts.Location)
	if err != nil {
		return nil
	}
	dayStart := t.at(date, t.opts.DayStart)
	nightStart := t.at(date, t.opts.NightStart)
	nextDay := t.at(date.AddDate(0, 0, 1), t.opts.DayStart)
	day := &dayState{
		key: key,
		shifts: map[Shift]*shiftState{
			ShiftDay:   newShiftState(dayStart, nightStart),
			ShiftNight: newShiftState(nightStart, nextDay),
		},
		hours: make(map[time.Time]*counter),
	}
	t.days[key] = day

	keys := t.sortedKeys()
	for len(keys) > t.opts.KeepDays {
		delete(t.days, keys[0])
		keys = keys[1:]
	}
	if _, kept := t.days[key]; !kept {
		return nil
	}
	return day
}

func (t *Tracker) sortedKeys() []string {
	keys := make([]string, 0, len(t.days))
	for key := range t.days {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (t *Tracker) at(date time.Time, minutes int) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), minutes/60, minutes%60, 0, 0, t.opts.Location)
}

func newShiftState(start, end time.Time) *shiftState {
	bounds := hourBoundaries(start, end)
	state := &shiftState{start: start, end: end, buckets: make([]*bucket, 0, len(bounds)-1)}
	for i := 0; i+1 < len(bounds); i++ {
		state.buckets = append(state.buckets, &bucket{start: bounds[i], end: bounds[i+1]})
	}
	return state
}

func (s *shiftState) bucketFor(at time.Time) *bucket {
	for _, b := range s.buckets {
		if !at.Before(b.start) && at.Before(b.end) {
			return b
		}
	}
	return s.buckets[len(s.buckets)-1]
}

// hourBoundaries splits [start, end] at clock hours.
func hourBoundaries(start, end time.Time) []time.Time {
	out := []time.Time{start}
	cur := start
	if !cur.Equal(floorHour(cur)) {
		next := floorHour(cur).Add(time.Hour)
		if next.Before(end) {
			out = append(out, next)
			cur = next
		}
	}
	for cur.Add(time.Hour).Before(end) {
		cur = cur.Add(time.Hour)
		out = append(out, cur)
	}
	if !out[len(out)-1].Equal(end) {
		out = append(out, end)
	}
	return out
}

func floorHour(at time.Time) time.Time {
	return time.Date(at.Year(), at.Month(), at.Day(), at.Hour(), 0, 0, 0, at.Location())
}
