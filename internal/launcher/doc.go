// Package launcher starts a bundled interpreter on a script that ships next
// to it, forwarding arguments and the child's exit code.
//
// The base folder is always an explicit option: the launcher never changes
// its own working directory, only the child's.
package launcher
