// Package logging assembles the slog loggers used by the daemon, the bridge,
// and the CLI.
//
// It owns the console and JSON handlers, level and output plumbing, and
// context helpers that tag log lines with the session id, handshake stage,
// and serial port taken from a context. Console output is coloured when it
// goes to a terminal. A no-op logger is provided for tests and wiring code
// that cannot fail.
package logging
