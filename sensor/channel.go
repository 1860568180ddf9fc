package sensor

import "time"

// Channel is one sensor and its health.
type Channel struct {
	Kind   Kind
	Driver Driver

	State HealthState
	// Last is the last valid reading, meaningful when HasReading is set.
	Last       Reading
	HasReading bool
	// LastCheck is the time of the last configuration, probe or failed read.
	LastCheck time.Time
	LastErr   error

	Failures   uint64
	Recoveries uint64

	// restoredAt is the tick of the last successful probe. Reads of that
	// same tick skip the channel.
	restoredAt time.Time
}

// NewChannel returns an Uninitialized channel.
func NewChannel(kind Kind, driver Driver) *Channel {
	return &Channel{Kind: kind, Driver: driver}
}

// Healthy reports whether the channel produces frames.
func (ch *Channel) Healthy() bool {
	return ch.State == OK
}

// Status is a point-in-time view of a channel for diagnostics.
type Status struct {
	Kind       string `json:"kind"`
	State      string `json:"state"`
	Failures   uint64 `json:"failures"`
	Recoveries uint64 `json:"recoveries"`
	LastErr    string `json:"last_error,omitempty"`
}

func (ch *Channel) Status() Status {
	s := Status{
		Kind:       ch.Kind.String(),
		State:      ch.State.String(),
		Failures:   ch.Failures,
		Recoveries: ch.Recoveries,
	}
	if ch.LastErr != nil {
		s.LastErr = ch.LastErr.Error()
	}
	return s
}
