package api

import "laserlink/internal/kpi"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Session describes a handshake session in a transport-friendly format.
type Session struct {
	ID          string `json:"id"`
	MO          string `json:"mo"`
	NeedPSN     string `json:"needPsn,omitempty"`
	Model       string `json:"model,omitempty"`
	Status      string `json:"status"`
	Stage       string `json:"stage"`
	Error       string `json:"error,omitempty"`
	FinalResult string `json:"finalResult,omitempty"`
	StartedAt   string `json:"startedAt,omitempty"`
	FinishedAt  string `json:"finishedAt,omitempty"`
	CycleMS     int64  `json:"cycleMs"`
}

// Message is one transcript line.
type Message struct {
	Seq        int    `json:"seq"`
	Direction  string `json:"direction"`
	Payload    string `json:"payload"`
	RecordedAt string `json:"recordedAt,omitempty"`
}

// SessionDetail pairs a session with its transcript.
type SessionDetail struct {
	Session  Session   `json:"session"`
	Messages []Message `json:"messages"`
}

// BridgeStatus mirrors the live bridge snapshot.
type BridgeStatus struct {
	Mode           string `json:"mode"`
	State          string `json:"state"`
	LaserPort      string `json:"laserPort"`
	SFCPort        string `json:"sfcPort"`
	Connected      bool   `json:"connected"`
	LastEvent      string `json:"lastEvent,omitempty"`
	LastStatus     string `json:"lastStatus,omitempty"`
	LastRequest    string `json:"lastRequest,omitempty"`
	LastResponse   string `json:"lastResponse,omitempty"`
	LastError      string `json:"lastError,omitempty"`
	CurrentSession string `json:"currentSession,omitempty"`
	LastSession    string `json:"lastSession,omitempty"`
	Passed         int    `json:"passed"`
	Failed         int    `json:"failed"`
	UpdatedAt      string `json:"updatedAt,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	StartedAt    string         `json:"startedAt,omitempty"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	HotplugWatch bool           `json:"hotplugWatch"`
	SessionStats map[string]int `json:"sessionStats"`
	Bridge       BridgeStatus   `json:"bridge"`
	KPI          string         `json:"kpi,omitempty"`
}

// SessionListResponse wraps a collection of sessions for API responses.
type SessionListResponse struct {
	Sessions []Session `json:"sessions"`
}

// KPIResponse carries the shift report.
type KPIResponse struct {
	Report kpi.Report `json:"report"`
}

// StatusLine is one labelled readiness line shown by the CLI status command.
// Severity is one of ok, info, warn or error.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}
