// Package wire implements the line protocol spoken between the laser marker
// and the SFC host: CRLF-terminated lines of comma-separated fields.
//
// Framer turns a raw byte stream into decoded messages. Message, Classify and
// InferStatus interpret the positional fields the way the floor uses them
// (trigger, acknowledgement, DSN list, carve result, final result).
package wire
