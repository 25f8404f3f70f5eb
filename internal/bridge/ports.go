package bridge

import (
	"io"

	"laserlink/internal/serialport"
)

// Role identifies which side of the bridge a port serves.
type Role string

const (
	RoleLaser Role = "laser"
	RoleSFC   Role = "sfc"
)

// Opener opens the device for one side of the bridge.
type Opener interface {
	Open(role Role, cfg serialport.Config) (io.ReadWriteCloser, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(role Role, cfg serialport.Config) (io.ReadWriteCloser, error)

// Open calls f.
func (f OpenerFunc) Open(role Role, cfg serialport.Config) (io.ReadWriteCloser, error) {
	return f(role, cfg)
}

// DeviceOpener opens real serial devices with advisory locks.
var DeviceOpener Opener = OpenerFunc(func(_ Role, cfg serialport.Config) (io.ReadWriteCloser, error) {
	return serialport.Open(cfg)
})
