package api

import (
	"context"
	"fmt"

	"laserlink/internal/sessions"
)

// SessionReader abstracts session persistence needed for API queries.
type SessionReader interface {
	List(ctx context.Context, filter sessions.ListFilter) ([]*sessions.Session, error)
	Stats(ctx context.Context) (map[sessions.Status]int, error)
	FindByPrefix(ctx context.Context, prefix string) (*sessions.Session, error)
	Messages(ctx context.Context, id string) ([]sessions.Message, error)
}

// SessionService exposes read-only session operations returning API DTOs.
type SessionService struct {
	store SessionReader
}

// NewSessionService constructs a SessionService around the provided reader.
func NewSessionService(store SessionReader) *SessionService {
	if store == nil {
		return nil
	}
	return &SessionService{store: store}
}

// List returns sessions newest first. Unknown status names are rejected.
func (s *SessionService) List(ctx context.Context, statuses []string, limit int) ([]Session, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	filter := sessions.ListFilter{Limit: limit}
	for _, name := range statuses {
		status, ok := sessions.ParseStatus(name)
		if !ok {
			return nil, fmt.Errorf("unknown session status %q", name)
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	list, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return FromSessions(list), nil
}

// Stats returns session counts keyed by status string.
func (s *SessionService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return MergeSessionStats(stats), nil
}

// Describe resolves id (or a unique prefix of it) and loads the transcript.
// It returns nil when nothing matches.
func (s *SessionService) Describe(ctx context.Context, id string) (*SessionDetail, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	session, err := s.store.FindByPrefix(ctx, id)
	if err != nil || session == nil {
		return nil, err
	}
	messages, err := s.store.Messages(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	return &SessionDetail{Session: FromSession(session), Messages: FromMessages(messages)}, nil
}
