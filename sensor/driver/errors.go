package driver

import (
	"errors"
	"fmt"
)

var (
	// ErrImplausible is returned for a value a healthy device never reports.
	ErrImplausible = errors.New("driver: implausible value")
	ErrNotReady    = errors.New("driver: measurement not ready")
)

// ChipIDError reports a device that answered with an unexpected identity.
type ChipIDError struct {
	Chip string
	Want uint8
	Got  uint8
}

func (e ChipIDError) Error() string {
	return fmt.Sprintf("%s: chip id 0x%02X, want 0x%02X", e.Chip, e.Got, e.Want)
}

// CRCError reports a corrupted response.
type CRCError struct {
	Chip string
	Want uint8
	Got  uint8
}

func (e CRCError) Error() string {
	return fmt.Sprintf("%s: crc 0x%02X, want 0x%02X", e.Chip, e.Got, e.Want)
}
