package transport

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isNack reports the errnos the i2c-dev driver returns for an address or
// data byte that was not acknowledged.
func isNack(err error) bool {
	return errors.Is(err, unix.EREMOTEIO) || errors.Is(err, unix.ENXIO)
}
