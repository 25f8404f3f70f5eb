package ipc

import (
	"laserlink/internal/api"
	"laserlink/internal/kpi"
)

// StopRequest asks the daemon to stop the bridge and exit.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse wraps the shared daemon status DTO.
type StatusResponse struct {
	Status api.DaemonStatus `json:"status"`
}

// SessionListRequest filters the session history.
type SessionListRequest struct {
	Statuses []string `json:"statuses"`
	Limit    int      `json:"limit"`
}

// SessionListResponse contains sessions newest first.
type SessionListResponse struct {
	Sessions []api.Session `json:"sessions"`
}

// SessionShowRequest resolves a session id or unique prefix.
type SessionShowRequest struct {
	ID string `json:"id"`
}

// SessionShowResponse contains one session and its transcript.
type SessionShowResponse struct {
	Detail api.SessionDetail `json:"detail"`
}

// KPIRequest fetches the shift report.
type KPIRequest struct{}

// KPIResponse contains the shift report.
type KPIResponse struct {
	Report kpi.Report `json:"report"`
}

// TestNotificationRequest triggers a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// DatabaseHealthRequest fetches store diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse mirrors sessions.DatabaseHealth.
type DatabaseHealthResponse struct {
	DBPath           string `json:"db_path"`
	DatabaseExists   bool   `json:"database_exists"`
	DatabaseReadable bool   `json:"database_readable"`
	SchemaVersion    int    `json:"schema_version"`
	IntegrityCheck   bool   `json:"integrity_check"`
	TotalSessions    int    `json:"total_sessions"`
	Error            string `json:"error"`
}
