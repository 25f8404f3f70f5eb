package sessions

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
)

// Stage names the handshake step a session is in or failed at.
type Stage string

const (
	StageInputValidation Stage = "input_validation"
	StageSFCRequest      Stage = "sfc_request"
	StageLaserCarving    Stage = "laser_carving"
	StageSFCFinalize     Stage = "sfc_finalize"
	StageDone            Stage = "done"
)

// Direction tells which way a message travelled.
type Direction string

const (
	DirectionLaserToSFC Direction = "laser_to_sfc"
	DirectionSFCToLaser Direction = "sfc_to_laser"
)

// DaemonStopReason is recorded on sessions left running when the daemon exits.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{StatusRunning, StatusPassed, StatusFailed}

// AllStatuses returns every known status in display order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a string into a Status, ignoring case.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether the session has finished.
func (s Status) IsTerminal() bool {
	return s == StatusPassed || s == StatusFailed
}

// Session is one trigger-to-final handshake.
type Session struct {
	ID          string
	MO          string
	NeedPSN     string
	Model       string
	Status      Status
	Stage       Stage
	Error       string
	FinalResult string
	StartedAt   time.Time
	FinishedAt  *time.Time
	CycleMS     int64
}

// CycleTime returns the recorded cycle duration.
func (s *Session) CycleTime() time.Duration {
	return time.Duration(s.CycleMS) * time.Millisecond
}

// Message is one transcript line of a session.
type Message struct {
	SessionID  string
	Seq        int
	Direction  Direction
	Payload    string
	RecordedAt time.Time
}

// Outcome is the KPI view of a finished session.
type Outcome struct {
	FinishedAt time.Time
	Passed     bool
	CycleMS    int64
}

// ListFilter narrows List results. Zero values list everything.
type ListFilter struct {
	Statuses []Status
	Limit    int
}

// HealthSummary counts sessions by status.
type HealthSummary struct {
	Total   int
	Running int
	Passed  int
	Failed  int
}

// DatabaseHealth describes the database file for diagnostics.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	IntegrityCheck   bool
	TotalSessions    int
	Error            string
}
