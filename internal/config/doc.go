// Package config loads, normalizes, and validates LaserLink configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides for the two
// serial ports and the ntfy topic. Break rules and the production model table
// are validated here so the bridge never starts with rules it cannot compile.
//
// Watcher reloads the file on change so a running daemon can pick up new
// timeouts, break rules, and production settings without a restart.
package config
