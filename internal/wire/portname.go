package wire

import (
	"regexp"
	"strings"
)

var comPattern = regexp.MustCompile(`(?i)^COM\d+$`)

// IsCOMName reports whether name is a Windows-style COM<n> port.
func IsCOMName(name string) bool {
	return comPattern.MatchString(strings.TrimSpace(name))
}

// ValidPortName reports whether name looks like a serial device: COM<n> or a
// /dev path.
func ValidPortName(name string) bool {
	name = strings.TrimSpace(name)
	return comPattern.MatchString(name) || strings.HasPrefix(name, "/dev/")
}
