// Package api defines wire-format types and converters for the IPC and HTTP
// API layer. It translates session records and bridge snapshots into
// transport-friendly DTOs that the CLI and dashboards can render without
// coupling to internal types.
//
// # Key Types
//
// Session: one handshake with its outcome, stage and cycle time.
//
// SessionDetail: a session plus its ordered message transcript.
//
// BridgeStatus and DaemonStatus: the live bridge snapshot and the daemon
// runtime around it.
//
// # Converters
//
// FromSession, FromSessions, FromMessages and FromBridgeStatus map internal
// models to DTOs. SessionService wraps a session reader for read-only queries.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Enums (sessions.Status, sessions.Stage,
// sessions.Direction) are exposed as lowercase strings and timestamps use
// RFC3339 with milliseconds.
package api
