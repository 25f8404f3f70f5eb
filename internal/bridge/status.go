package bridge

import "time"

// States reported by the bridge. They double as bridge_mode metric labels.
const (
	StateIdle      = "idle"
	StateListening = "listening"
	StateTesting   = "testing"
	StateError     = "error"
	StateStopped   = "stopped"
)

// Events emitted after each relay step or session.
const (
	EventIdle       = "idle"
	EventSFCOK      = "sfc_ok"
	EventSFCTimeout = "sfc_timeout"
	EventSFCError   = "sfc_error"
	EventHold       = "hold"
	EventError      = "error"
)

// Status is a point-in-time snapshot of the bridge. LastStatus is PASS, FAIL,
// UNKNOWN, TIMEOUT or SFC_ERROR.
type Status struct {
	Mode           string    `json:"mode"`
	State          string    `json:"state"`
	LaserPort      string    `json:"laser_port"`
	SFCPort        string    `json:"sfc_port"`
	Connected      bool      `json:"connected"`
	LastEvent      string    `json:"last_event,omitempty"`
	LastStatus     string    `json:"last_status,omitempty"`
	LastRequest    string    `json:"last_request,omitempty"`
	LastResponse   string    `json:"last_response,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	CurrentSession string    `json:"current_session,omitempty"`
	LastSession    string    `json:"last_session,omitempty"`
	Passed         int       `json:"passed"`
	Failed         int       `json:"failed"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Status returns a copy of the current snapshot.
func (b *Bridge) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snapshot := b.status
	snapshot.Mode = b.settings.Mode
	snapshot.LaserPort = b.settings.Laser.Port
	snapshot.SFCPort = b.settings.SFC.Port
	return snapshot
}

func (b *Bridge) updateStatus(fn func(*Status)) {
	b.mu.Lock()
	fn(&b.status)
	b.status.UpdatedAt = b.now()
	state := b.status.State
	b.mu.Unlock()
	if b.metrics != nil {
		b.metrics.SetBridgeMode(state)
	}
}

func (b *Bridge) setState(state string) {
	b.updateStatus(func(s *Status) { s.State = state })
}
