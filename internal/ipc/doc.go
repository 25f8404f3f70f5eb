// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// Responses reuse the DTOs from the api package so the CLI renders the same
// shapes the HTTP API serves. Add new endpoints as service methods with the
// net/rpc `(req, *resp) error` signature and a typed client wrapper.
package ipc
