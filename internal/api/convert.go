package api

import (
	"time"

	"laserlink/internal/bridge"
	"laserlink/internal/sessions"
)

// FromSession converts a session record to its API representation.
func FromSession(session *sessions.Session) Session {
	if session == nil {
		return Session{}
	}
	dto := Session{
		ID:          session.ID,
		MO:          session.MO,
		NeedPSN:     session.NeedPSN,
		Model:       session.Model,
		Status:      string(session.Status),
		Stage:       string(session.Stage),
		Error:       session.Error,
		FinalResult: session.FinalResult,
		StartedAt:   FormatTime(session.StartedAt),
		CycleMS:     session.CycleMS,
	}
	if session.FinishedAt != nil {
		dto.FinishedAt = FormatTime(*session.FinishedAt)
	}
	return dto
}

// FromSessions converts a slice of session records into API DTOs.
func FromSessions(list []*sessions.Session) []Session {
	if len(list) == 0 {
		return nil
	}
	out := make([]Session, 0, len(list))
	for _, session := range list {
		if session == nil {
			continue
		}
		out = append(out, FromSession(session))
	}
	return out
}

// FromMessages converts a session transcript.
func FromMessages(messages []sessions.Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, msg := range messages {
		out = append(out, Message{
			Seq:        msg.Seq,
			Direction:  string(msg.Direction),
			Payload:    msg.Payload,
			RecordedAt: FormatTime(msg.RecordedAt),
		})
	}
	return out
}

// FromBridgeStatus converts a bridge snapshot.
func FromBridgeStatus(status bridge.Status) BridgeStatus {
	return BridgeStatus{
		Mode:           status.Mode,
		State:          status.State,
		LaserPort:      status.LaserPort,
		SFCPort:        status.SFCPort,
		Connected:      status.Connected,
		LastEvent:      status.LastEvent,
		LastStatus:     status.LastStatus,
		LastRequest:    status.LastRequest,
		LastResponse:   status.LastResponse,
		LastError:      status.LastError,
		CurrentSession: status.CurrentSession,
		LastSession:    status.LastSession,
		Passed:         status.Passed,
		Failed:         status.Failed,
		UpdatedAt:      FormatTime(status.UpdatedAt),
	}
}

// MergeSessionStats returns counts for every known status, including zeros.
func MergeSessionStats(stats map[sessions.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for _, status := range sessions.AllStatuses() {
		out[string(status)] = 0
	}
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// ParseTime reads a timestamp written by the converters. The zero time is
// returned for empty or malformed values.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

// FormatTime renders value for API payloads; the zero time renders empty.
func FormatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(dateTimeFormat)
}
