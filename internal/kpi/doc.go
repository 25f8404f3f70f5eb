// Package kpi accounts finished sessions per production shift.
//
// A KPI day starts at the day-shift start (07:30 by default) and runs until
// the same time on the next calendar day. The day shift ends at the night
// shift start; events before the day-shift start belong to the previous KPI
// day's night shift. Each shift is split into hourly buckets aligned to
// clock hours, so 07:30-19:30 yields 07:30-08:00, 08:00-09:00 ... 19:00-19:30.
package kpi
