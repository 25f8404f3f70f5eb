// Package preflight provides readiness checks for the serial devices,
// directories and services LaserLink depends on.
//
// The daemon runner logs failed checks at startup without refusing to start,
// since a port may appear later through hotplug. The CLI "laserlink status"
// command prints the same results.
package preflight
