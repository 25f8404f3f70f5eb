// Package sessions persists handshake sessions and their message transcripts
// in SQLite.
//
// A session is created when the laser sends a trigger, moves through the
// handshake stages, and finishes as passed or failed. Every line that crosses
// the bridge is appended to the session transcript with its direction. The
// KPI tracker rebuilds its counters from Outcomes on start.
//
// Schema changes bump schemaVersion in schema.go; additive changes go into
// migrations/.
package sessions
