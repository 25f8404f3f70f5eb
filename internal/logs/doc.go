// Package logs reads the daemon log file for `laserlink logs`: the last N
// lines, then new lines as they are appended. Follow mode reacts to fsnotify
// write events and falls back to polling when the watch cannot be set up.
// A file that shrinks (rotation or truncation) is read again from the start.
package logs
