package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when updating a session that does not exist.
var ErrNotFound = errors.New("session not found")

// NewSession describes a session about to start.
type NewSession struct {
	// ID defaults to a random UUID.
	ID        string
	MO        string
	NeedPSN   string
	Model     string
	StartedAt time.Time
}

// FinishParams close out a session.
type FinishParams struct {
	Status      Status
	Stage       Stage
	Error       string
	FinalResult string
	FinishedAt  time.Time
}

// Create inserts a running session at the input validation stage.
func (s *Store) Create(ctx context.Context, params NewSession) (*Session, error) {
	id := strings.TrimSpace(params.ID)
	if id == "" {
		id = uuid.NewString()
	}
	started := params.StartedAt
	if started.IsZero() {
		started = s.now()
	}

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO sessions (id, mo, need_psn, model, status, stage, started_at, cycle_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		id,
		params.MO,
		params.NeedPSN,
		nullableString(params.Model),
		StatusRunning,
		StageInputValidation,
		formatTime(started),
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s.Get(ctx, id)
}

// SetStage records the stage a running session has reached.
func (s *Store) SetStage(ctx context.Context, id string, stage Stage) error {
	res, err := s.execWithRetry(ctx, `UPDATE sessions SET stage = ? WHERE id = ?`, stage, id)
	if err != nil {
		return fmt.Errorf("set session stage: %w", err)
	}
	return requireRow(res, id)
}

// AppendMessage adds one transcript line and returns it with its sequence number.
func (s *Store) AppendMessage(ctx context.Context, id string, direction Direction, payload string) (Message, error) {
	msg := Message{SessionID: id, Direction: direction, Payload: payload, RecordedAt: s.now().UTC()}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var seq int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) + 1 FROM session_messages WHERE session_id = ?`, id,
		).Scan(&seq); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_messages (session_id, seq, direction, payload, recorded_at) VALUES (?, ?, ?, ?, ?)`,
			id, seq, direction, payload, formatTime(msg.RecordedAt),
		); err != nil {
			return err
		}
		msg.Seq = seq
		return nil
	})
	if err != nil {
		return Message{}, fmt.Errorf("append session message: %w", err)
	}
	return msg, nil
}

// Finish marks a session passed or failed and stores its cycle time.
func (s *Store) Finish(ctx context.Context, id string, params FinishParams) (*Session, error) {
	if !params.Status.IsTerminal() {
		return nil, fmt.Errorf("finish session %s: status %q is not terminal", id, params.Status)
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("finish session %s: %w", id, ErrNotFound)
	}
	finished := params.FinishedAt
	if finished.IsZero() {
		finished = s.now()
	}
	cycle := finished.Sub(current.StartedAt).Milliseconds()
	if cycle < 0 {
		cycle = 0
	}
	stage := params.Stage
	if stage == "" {
		stage = current.Stage
	}

	if _, err := s.execWithRetry(
		ctx,
		`UPDATE sessions SET status = ?, stage = ?, error = ?, final_result = ?, finished_at = ?, cycle_ms = ?
        WHERE id = ?`,
		params.Status,
		stage,
		nullableString(params.Error),
		nullableString(params.FinalResult),
		formatTime(finished),
		cycle,
		id,
	); err != nil {
		return nil, fmt.Errorf("finish session: %w", err)
	}
	return s.Get(ctx, id)
}

// Get returns the session with id, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// FindByPrefix resolves an abbreviated session id. It returns nil when no
// session matches and an error when the prefix is ambiguous.
func (s *Store) FindByPrefix(ctx context.Context, prefix string) (*Session, error) {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id LIKE ? ESCAPE '\' ORDER BY started_at DESC LIMIT 2`,
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	defer rows.Close()
	var matches []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("session prefix %q is ambiguous", prefix)
	}
}

// List returns sessions newest first.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	args := make([]any, 0, len(filter.Statuses)+1)
	if len(filter.Statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(filter.Statuses)) + `)`
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY started_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, rows.Err()
}

// Messages returns the transcript of a session in order.
func (s *Store) Messages(ctx context.Context, id string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, seq, direction, payload, recorded_at FROM session_messages WHERE session_id = ? ORDER BY seq`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("session messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			msg      Message
			dir      string
			recorded string
		)
		if err := rows.Scan(&msg.SessionID, &msg.Seq, &dir, &msg.Payload, &recorded); err != nil {
			return nil, err
		}
		msg.Direction = Direction(dir)
		if at, err := parseTimeString(recorded); err == nil {
			msg.RecordedAt = at
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
