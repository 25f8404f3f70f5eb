// Package main hosts the laserlink CLI entrypoint and command graph.
//
// The Cobra command tree runs the bridge daemon in the foreground, controls a
// detached daemon over its IPC socket, inspects session history and KPI
// counters, and offers the bench tools used during commissioning: port
// listing, one-off sends, simulated laser and SFC peers, and capture replay.
//
// Add behaviour to the internal packages first and surface it here.
package main
