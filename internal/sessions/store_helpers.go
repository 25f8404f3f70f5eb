package sessions

import (
	"database/sql"
	"errors"
	"time"
)

// timeLayout has a fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const sessionColumns = "id, mo, need_psn, model, status, stage, error, final_result, started_at, finished_at, cycle_ms"

func scanSession(scanner interface{ Scan(dest ...any) error }) (*Session, error) {
	var (
		id          string
		mo          string
		needPSN     string
		model       sql.NullString
		status      string
		stage       string
		errorText   sql.NullString
		finalResult sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
		cycleMS     int64
	)
	if err := scanner.Scan(
		&id,
		&mo,
		&needPSN,
		&model,
		&status,
		&stage,
		&errorText,
		&finalResult,
		&startedRaw,
		&finishedRaw,
		&cycleMS,
	); err != nil {
		return nil, err
	}

	session := &Session{
		ID:          id,
		MO:          mo,
		NeedPSN:     needPSN,
		Model:       model.String,
		Status:      Status(status),
		Stage:       Stage(stage),
		Error:       errorText.String,
		FinalResult: finalResult.String,
		CycleMS:     cycleMS,
	}
	if started, err := parseTimeString(startedRaw); err == nil {
		session.StartedAt = started
	}
	if finishedRaw.Valid {
		if finished, err := parseTimeString(finishedRaw.String); err == nil {
			session.FinishedAt = &finished
		}
	}
	return session, nil
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
