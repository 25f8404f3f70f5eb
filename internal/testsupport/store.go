package testsupport

import (
	"testing"

	"laserlink/internal/config"
	"laserlink/internal/sessions"
)

// MustOpenStore opens a sessions.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *sessions.Store {
	t.Helper()

	store, err := sessions.Open(cfg)
	if err != nil {
		t.Fatalf("sessions.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
