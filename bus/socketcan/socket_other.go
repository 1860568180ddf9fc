//go:build !linux

package socketcan

import (
	"errors"
	"io"
)

// Dial is only supported on Linux.
func Dial(iface string) (io.ReadWriteCloser, error) {
	return nil, errors.New("socketcan: not supported on this platform")
}

func queueFull(error) bool {
	return false
}
