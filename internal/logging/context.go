package logging

import (
	"context"
	"log/slog"

	"laserlink/internal/services"
)

const (
	// FieldComponent names the subsystem that emitted the record.
	FieldComponent = "component"
	// FieldSessionID identifies a handshake session.
	FieldSessionID = "session_id"
	// FieldStage is the handshake stage.
	FieldStage = "stage"
	// FieldPort is the serial device path.
	FieldPort = "port"
	// FieldDirection is the message direction (laser->sfc or sfc->laser).
	FieldDirection = "direction"
	// FieldPayload is a serial line as seen on the wire.
	FieldPayload = "payload"
	// FieldCorrelationID ties CLI and API requests to daemon log lines.
	FieldCorrelationID = "correlation_id"
	FieldEventType     = "event_type"
	FieldErrorHint     = "error_hint"
	FieldImpact        = "impact"
	// FieldAlert flags anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.SessionIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSessionID, id))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if port, ok := services.PortFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldPort, port))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
