// Package serialport opens RS-232 devices and runs line-oriented exchanges on
// them.
//
// A Link owns exactly one read loop per port. The loop frames CRLF lines,
// numbers them, keeps a bounded history, and hands them to whichever caller is
// waiting in Next, Receive, Exchange, or Collect. Callers never read the port
// directly, so two readers can never race for the same bytes.
package serialport
