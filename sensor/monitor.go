package sensor

import (
	"log/slog"
	"time"
)

// DefaultProbeInterval is the cadence of liveness probes of failed channels.
const DefaultProbeInterval = 10 * time.Second

// Monitor drives the health state machine of channels.
//
//	UNINITIALIZED --configure ok--> OK
//	UNINITIALIZED --configure err-> FAILED
//	OK            --read err------> FAILED
//	FAILED        --probe+configure ok (every probe interval)--> OK
//
// Channels are independent: an operation only ever touches the channel it
// was given.
type Monitor struct {
	probeInterval time.Duration
	logger        *slog.Logger
}

func NewMonitor(probeInterval time.Duration, logger *slog.Logger) *Monitor {
	if probeInterval <= 0 {
		probeInterval = DefaultProbeInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		probeInterval: probeInterval,
		logger:        logger.With("component", "sensor"),
	}
}

// ProbeInterval returns the probe cadence.
func (m *Monitor) ProbeInterval() time.Duration {
	return m.probeInterval
}

// Boot configures an Uninitialized channel once.
func (m *Monitor) Boot(ch *Channel, now time.Time) {
	if ch.State != Uninitialized {
		return
	}
	ch.LastCheck = now
	if err := ch.Driver.Configure(); err != nil {
		m.fail(ch, DeviceError{Kind: ch.Kind, Op: "configure", Err: err})
		return
	}
	ch.State = OK
	m.logger.Info("sensor configured", "sensor", ch.Kind.String())
}

// Read samples an OK channel. It reports false when the channel is not OK,
// was restored during this tick, or the read failed.
func (m *Monitor) Read(ch *Channel, now time.Time) (Reading, bool) {
	if ch.State != OK {
		return Reading{}, false
	}
	if !ch.restoredAt.IsZero() && !now.After(ch.restoredAt) {
		return Reading{}, false
	}

	r, err := ch.Driver.Read()
	if err != nil {
		ch.LastCheck = now
		m.fail(ch, DeviceError{Kind: ch.Kind, Op: "read", Err: err})
		return Reading{}, false
	}
	if r.At.IsZero() {
		r.At = now
	}
	ch.Last = r
	ch.HasReading = true
	return r, true
}

// ProbeDue reports whether a Failed channel is due for a probe.
func (m *Monitor) ProbeDue(ch *Channel, now time.Time) bool {
	return ch.State == Failed && now.Sub(ch.LastCheck) >= m.probeInterval
}

// Probe makes one reconnection attempt on a Failed channel if it is due:
// a liveness probe, then the full configuration. It reports whether the
// channel was restored.
func (m *Monitor) Probe(ch *Channel, now time.Time) bool {
	if !m.ProbeDue(ch, now) {
		return false
	}
	ch.LastCheck = now

	if err := ch.Driver.Probe(); err != nil {
		ch.LastErr = DeviceError{Kind: ch.Kind, Op: "probe", Err: err}
		m.logger.Debug("sensor probe failed", "sensor", ch.Kind.String(), "error", err)
		return false
	}
	if err := ch.Driver.Configure(); err != nil {
		ch.LastErr = DeviceError{Kind: ch.Kind, Op: "configure", Err: err}
		m.logger.Warn("sensor answered probe but configuration failed",
			"sensor", ch.Kind.String(),
			"error", err,
		)
		return false
	}

	ch.State = OK
	ch.restoredAt = now
	ch.LastErr = nil
	ch.Recoveries++
	m.logger.Info("sensor recovered", "sensor", ch.Kind.String(), "recoveries", ch.Recoveries)
	return true
}

// ProbeAll probes every due channel once and returns how many were restored.
func (m *Monitor) ProbeAll(channels []*Channel, now time.Time) int {
	restored := 0
	for _, ch := range channels {
		if m.Probe(ch, now) {
			restored++
		}
	}
	return restored
}

func (m *Monitor) fail(ch *Channel, err error) {
	ch.State = Failed
	ch.LastErr = err
	ch.Failures++
	m.logger.Warn("sensor failed, frames suppressed until recovery",
		"sensor", ch.Kind.String(),
		"retry_in", m.probeInterval,
		"error", err,
	)
}
