package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Stats returns a count of sessions grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM sessions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health aggregates session counts for status output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	var health HealthSummary
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusRunning:
			health.Running += count
		case StatusPassed:
			health.Passed += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

// CheckHealth returns diagnostic information about the database file.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("sessions database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat sessions database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("sessions database path %q is a directory", s.path)
	}
	health.DatabaseExists = true

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping sessions database: %w", err)
	}
	health.DatabaseReadable = true

	version, err := s.schemaVersion(connCtx)
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	health.SchemaVersion = version

	if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM sessions").Scan(&health.TotalSessions); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("count sessions: %w", err)
	}

	var integrity string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")
	return health, nil
}

// FailInFlight fails every session still marked running. The daemon calls it
// on start because a session cannot survive a restart.
func (s *Store) FailInFlight(ctx context.Context, reason string) (int64, error) {
	if strings.TrimSpace(reason) == "" {
		reason = DaemonStopReason
	}
	now := s.now()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE sessions SET status = ?, error = ?, finished_at = ? WHERE status = ?`,
		StatusFailed,
		reason,
		formatTime(now),
		StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("fail in-flight sessions: %w", err)
	}
	return res.RowsAffected()
}

// Prune deletes finished sessions (and their transcripts) that finished
// before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stamp := formatTime(cutoff)
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM session_messages WHERE session_id IN (
                SELECT id FROM sessions WHERE status != ? AND finished_at < ?)`,
			StatusRunning, stamp,
		); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE status != ? AND finished_at < ?`, StatusRunning, stamp)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return removed, nil
}

// Outcomes lists finished sessions since the given time, oldest first.
func (s *Store) Outcomes(ctx context.Context, since time.Time) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, finished_at, cycle_ms FROM sessions
        WHERE status IN (?, ?) AND finished_at >= ? ORDER BY finished_at`,
		StatusPassed, StatusFailed, formatTime(since),
	)
	if err != nil {
		return nil, fmt.Errorf("session outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			status   string
			finished string
			cycleMS  int64
		)
		if err := rows.Scan(&status, &finished, &cycleMS); err != nil {
			return nil, err
		}
		at, err := parseTimeString(finished)
		if err != nil {
			continue
		}
		out = append(out, Outcome{FinishedAt: at, Passed: Status(status) == StatusPassed, CycleMS: cycleMS})
	}
	return out, rows.Err()
}
