// Package services defines shared utilities consumed by the bridge, the
// simulator roles and the daemon plumbing.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, handshake stages, serial port
//     names, and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so a failed exchange can be
//     classified (timeout, rejected by the SFC, bad input, transport failure)
//     without string matching.
//
// Use these helpers when wiring new exchange logic so operational behaviour
// (error reporting, log fields) stays uniform across the bridge.
package services
