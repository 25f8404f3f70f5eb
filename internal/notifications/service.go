package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"laserlink/internal/config"
)

const userAgent = "LaserLink-Go/0.1.0"

// Event names a notification kind.
type Event string

const (
	EventSessionFailed Event = "session_failed"
	EventPortLost      Event = "port_lost"
	EventPortRestored  Event = "port_restored"
	EventError         Event = "error"
	EventTest          Event = "test"
)

// Payload carries event fields such as "mo", "stage", "error", "role", "port".
type Payload map[string]any

// Service is the notification surface used by the daemon and the bridge.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:      topic,
		client:        &http.Client{Timeout: timeout},
		sessionFailed: cfg.Notifications.SessionFailed,
		portEvents:    cfg.Notifications.PortEvents,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint      string
	client        *http.Client
	sessionFailed bool
	portEvents    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled(event) {
		return nil
	}
	msg, ok := render(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventSessionFailed:
		return n.sessionFailed
	case EventPortLost, EventPortRestored:
		return n.portEvents
	default:
		return true
	}
}

func render(event Event, payload Payload) (message, bool) {
	switch event {
	case EventSessionFailed:
		body := fmt.Sprintf("❌ MO %s failed at %s", orDefault(payload.text("mo"), "unknown"), orDefault(payload.text("stage"), "unknown stage"))
		if reason := payload.text("error"); reason != "" {
			body += ": " + reason
		}
		return message{
			title:    "LaserLink - Session Failed",
			body:     body,
			tags:     []string{"laserlink", "session", "failed"},
			priority: "high",
		}, true
	case EventPortLost:
		return message{
			title:    "LaserLink - Port Lost",
			body:     fmt.Sprintf("⚠️ %s port %s disconnected", orDefault(payload.text("role"), "serial"), payload.text("port")),
			tags:     []string{"laserlink", "port", "lost"},
			priority: "high",
		}, true
	case EventPortRestored:
		return message{
			title: "LaserLink - Port Restored",
			body:  fmt.Sprintf("🔌 %s port %s reconnected", orDefault(payload.text("role"), "serial"), payload.text("port")),
			tags:  []string{"laserlink", "port", "restored"},
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := payload.text("context"); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		builder.WriteString(orDefault(payload.text("error"), "unknown"))
		return message{
			title:    "LaserLink - Error",
			body:     builder.String(),
			tags:     []string{"laserlink", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "LaserLink - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"laserlink", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (p Payload) text(key string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

// NewNoop returns a service that drops every event.
func NewNoop() Service {
	return noopService{}
}
