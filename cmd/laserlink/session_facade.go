package main

import (
	"context"
	"strings"

	"laserlink/internal/api"
	"laserlink/internal/ipc"
	"laserlink/internal/sessions"
)

type sessionAPI interface {
	List(ctx context.Context, statuses []string, limit int) ([]api.Session, error)
	Describe(ctx context.Context, id string) (*api.SessionDetail, error)
}

// --- IPC adapter ---

type sessionIPCAdapter struct {
	client *ipc.Client
}

func (a *sessionIPCAdapter) List(_ context.Context, statuses []string, limit int) ([]api.Session, error) {
	resp, err := a.client.SessionList(statuses, limit)
	if err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (a *sessionIPCAdapter) Describe(_ context.Context, id string) (*api.SessionDetail, error) {
	resp, err := a.client.SessionShow(id)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not found") {
			return nil, nil
		}
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	return &resp.Detail, nil
}

// --- Store adapter ---

type sessionStoreAdapter struct {
	svc *api.SessionService
}

func (a *sessionStoreAdapter) List(ctx context.Context, statuses []string, limit int) ([]api.Session, error) {
	return a.svc.List(ctx, statuses, limit)
}

func (a *sessionStoreAdapter) Describe(ctx context.Context, id string) (*api.SessionDetail, error) {
	return a.svc.Describe(ctx, id)
}

// withSessionAPI prefers the running daemon and falls back to reading the
// sessions database directly.
func withSessionAPI(ctx *commandContext, fn func(sessionAPI) error) error {
	if client, err := ipc.Dial(ctx.socketPath()); err == nil {
		defer client.Close()
		return fn(&sessionIPCAdapter{client: client})
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	store, err := sessions.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(&sessionStoreAdapter{svc: api.NewSessionService(store)})
}
