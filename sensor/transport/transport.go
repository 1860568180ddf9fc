// Package transport moves bytes between sensor drivers and devices on an I2C
// bus, either through the kernel's hardware controller or bit-banged on two
// GPIO lines.
package transport

import (
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/jpillora/maplock"
)

var (
	// ErrNack is returned when a device does not acknowledge a byte.
	ErrNack = errors.New("transport: no acknowledge")
	// ErrBusStuck is returned when a device holds the clock low for too long.
	ErrBusStuck = errors.New("transport: clock held low")
)

// Lock serialises transactions per physical bus, keyed by bus name, so
// drivers sharing a bus never interleave.
var Lock = maplock.New()

// Transport performs one write-then-read transaction with the device at addr.
// Either w or r may be empty.
type Transport interface {
	Name() string
	Tx(addr uint16, w, r []byte) error
}

// Serialized wraps a transport so each transaction holds the bus lock and
// a NACK is retried up to attempts times.
func Serialized(t Transport, attempts uint, delay time.Duration) Transport {
	if attempts == 0 {
		attempts = 1
	}
	return &serialized{inner: t, attempts: attempts, delay: delay}
}

type serialized struct {
	inner    Transport
	attempts uint
	delay    time.Duration
}

func (s *serialized) Name() string {
	return s.inner.Name()
}

func (s *serialized) Tx(addr uint16, w, r []byte) error {
	key := s.inner.Name()
	Lock.Lock(key)
	defer Lock.Unlock(key)

	err := retry.Do(func() error {
		return s.inner.Tx(addr, w, r)
	},
		retry.Attempts(s.attempts),
		retry.Delay(s.delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrNack)
		}),
	)
	if err != nil {
		return fmt.Errorf("%s addr 0x%02X: %w", key, addr, err)
	}
	return nil
}
