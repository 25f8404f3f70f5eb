// Package bridge joins the laser port and the SFC port.
//
// In handshake mode every laser trigger opens a session that walks the
// request, carving and finalize stages, recording each message and the
// outcome. Relay mode forwards laser frames to the SFC and writes replies
// back until a hold point ends the testing chain.
package bridge
