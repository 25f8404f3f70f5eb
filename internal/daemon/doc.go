// Package daemon coordinates the long-running LaserLink process and its
// system integration points.
//
// It wires configuration, the sessions store, the bridge and the KPI tracker
// into a single lifecycle with flock-based locking to prevent two daemons from
// opening the same serial ports. On start it fails sessions a previous run
// left open and rebuilds the shift counters; while running it listens for tty
// hotplug events and serves the read-only HTTP API and Prometheus metrics.
//
// Keep orchestration logic here: the handshake itself lives in the bridge
// package while the daemon focuses on startup, shutdown, and high level
// coordination.
package daemon
