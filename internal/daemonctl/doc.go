// Package daemonctl holds the CLI side of daemon lifecycle management:
// launching a detached daemon, stopping it over IPC with a forced-kill
// fallback, and assembling the status snapshot shown by `laserlink status`.
package daemonctl
