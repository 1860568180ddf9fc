package bus

import (
	"errors"
	"fmt"
)

var (
	ErrNotInitialized = errors.New("bus: transceiver not initialized")
	ErrRecovering     = errors.New("bus: bus-off recovery in progress")
	ErrTimeout        = errors.New("bus: transmit timed out")
	ErrClosed         = errors.New("bus: closed")
)

// TransceiverError reports which controller operation failed.
type TransceiverError struct {
	Op  string
	Err error
}

func (e TransceiverError) Error() string {
	return fmt.Sprintf("bus: %s failed: %v", e.Op, e.Err)
}

func (e TransceiverError) Unwrap() error {
	return e.Err
}
