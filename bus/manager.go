package bus

import (
	"errors"
	"log/slog"
	"time"

	"github.com/avast/retry-go"

	"github.com/FabianPetersen/cantelemetry"
)

// State is the bus recovery state.
type State int

const (
	StateNormal State = iota
	StateRecovering
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "NORMAL"
	case StateRecovering:
		return "RECOVERING"
	}
	return "UNKNOWN"
}

// DefaultTxTimeout bounds a single transmit attempt.
const DefaultTxTimeout = 500 * time.Millisecond

// Options tunes a Manager.
type Options struct {
	TxTimeout time.Duration
	// InitAttempts is the number of install/start attempts made by Initialize.
	InitAttempts uint
	InitDelay    time.Duration
}

// Stats counts what the manager did since boot.
type Stats struct {
	Sent              uint64
	Failed            uint64
	Skipped           uint64
	RecoveryRequests  uint64
	RestartAttempts   uint64
	RestartFailures   uint64
	AlertsObserved    uint64
	AlertReadFailures uint64
}

// Manager owns the transceiver lifecycle and the bus-off recovery state machine.
//
//	NORMAL     + BUS_OFF       -> InitiateRecovery -> RECOVERING
//	RECOVERING + BUS_OFF       -> no-op
//	RECOVERING + BUS_RECOVERED -> Start            -> NORMAL (stays RECOVERING if Start fails)
//
// Manager is not safe for concurrent use; the scheduler owns it.
type Manager struct {
	tr     Transceiver
	opts   Options
	logger *slog.Logger

	installed bool
	ready     bool
	initErr   error

	state         State
	busOffPending bool
	stats         Stats
}

// NewManager wraps tr. Nothing touches the hardware until Initialize.
func NewManager(tr Transceiver, opts Options, logger *slog.Logger) *Manager {
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = DefaultTxTimeout
	}
	if opts.InitAttempts == 0 {
		opts.InitAttempts = 3
	}
	if opts.InitDelay <= 0 {
		opts.InitDelay = 100 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		tr:      tr,
		opts:    opts,
		logger:  logger.With("component", "bus"),
		initErr: ErrNotInitialized,
	}
}

// Initialize installs and starts the transceiver. A failure leaves the node
// running with telemetry disabled; the error is kept for InitErr.
func (m *Manager) Initialize(bitrate int, filter FilterPolicy) error {
	err := retry.Do(func() error {
		if !m.installed {
			if err := m.tr.Install(bitrate, filter); err != nil {
				return TransceiverError{Op: "install", Err: err}
			}
			m.installed = true
		}
		if err := m.tr.Start(); err != nil {
			return TransceiverError{Op: "start", Err: err}
		}
		return nil
	},
		retry.Attempts(m.opts.InitAttempts),
		retry.Delay(m.opts.InitDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			m.logger.Warn("transceiver init attempt failed", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		m.ready = false
		m.initErr = err
		m.logger.Error("transceiver init failed, telemetry disabled",
			"bitrate", bitrate,
			"filter", filter.String(),
			"error", err,
		)
		return err
	}

	m.ready = true
	m.initErr = nil
	m.state = StateNormal
	m.logger.Info("transceiver started", "bitrate", bitrate, "filter", filter.String())
	return nil
}

// Ready reports whether the transceiver was initialised.
func (m *Manager) Ready() bool {
	return m.ready
}

// InitErr returns the initialisation fault, nil once initialised.
func (m *Manager) InitErr() error {
	return m.initErr
}

// State returns the recovery state.
func (m *Manager) State() State {
	return m.state
}

// Stats returns a copy of the counters.
func (m *Manager) Stats() Stats {
	return m.stats
}

// PollAlerts drains controller alerts and drives the recovery state machine.
// It never blocks and must be called every tick.
func (m *Manager) PollAlerts() Alert {
	if !m.ready {
		return 0
	}

	alerts, err := m.tr.ReadAlerts()
	if err != nil {
		m.stats.AlertReadFailures++
		m.logger.Warn("alert read failed", "error", err)
	}

	for _, a := range alerts.Kinds() {
		m.stats.AlertsObserved++
		m.handle(a)
	}

	// A recovery request that failed earlier is re-issued every poll until
	// the controller accepts it.
	if m.busOffPending && m.state == StateNormal && !alerts.Has(AlertBusOff) {
		m.requestRecovery()
	}
	return alerts
}

func (m *Manager) handle(a Alert) {
	switch a {
	case AlertBusOff:
		m.logger.Error("bus-off", "state", m.state.String())
		m.requestRecovery()

	case AlertBusRecovered:
		if m.state != StateRecovering {
			m.logger.Info("bus recovered alert outside recovery", "state", m.state.String())
			return
		}
		m.restart()

	case AlertErrorPassive:
		m.logger.Warn("controller error passive")
	case AlertErrorActive:
		m.logger.Info("controller error active")
	case AlertArbitrationLost:
		m.logger.Debug("arbitration lost")
	case AlertTxFailed:
		m.logger.Warn("transmit failed on bus")
	case AlertRxQueueFull:
		m.logger.Warn("receive queue full")
	}
}

// requestRecovery is idempotent: while RECOVERING nothing is issued.
func (m *Manager) requestRecovery() {
	if m.state == StateRecovering {
		m.logger.Debug("recovery already in flight")
		return
	}

	m.stats.RecoveryRequests++
	if err := m.tr.InitiateRecovery(); err != nil {
		m.busOffPending = true
		m.logger.Error("initiate recovery failed", "error", TransceiverError{Op: "recover", Err: err})
		return
	}

	m.busOffPending = false
	m.state = StateRecovering
	m.logger.Info("bus recovery initiated", "state", m.state.String())
}

func (m *Manager) restart() {
	m.stats.RestartAttempts++
	if err := m.tr.Start(); err != nil {
		m.stats.RestartFailures++
		m.logger.Error("restart after recovery failed, waiting for next recovery",
			"error", TransceiverError{Op: "start", Err: err},
		)
		return
	}

	m.state = StateNormal
	m.logger.Info("bus restarted", "state", m.state.String())
}

// Transmit makes exactly one attempt to send frame. Failures are logged and
// counted, never retried; the next tick produces a superseding frame.
func (m *Manager) Transmit(frame cantelemetry.Frame) error {
	if !m.ready {
		m.stats.Skipped++
		return ErrNotInitialized
	}
	if m.state == StateRecovering {
		m.stats.Skipped++
		return ErrRecovering
	}

	if err := m.tr.Transmit(frame, m.opts.TxTimeout); err != nil {
		m.stats.Failed++
		m.logger.Warn("frame dropped",
			"id", frame.ID,
			"timeout", m.opts.TxTimeout,
			"error", err,
		)
		return err
	}

	m.stats.Sent++
	m.logger.Debug("frame sent", "frame", frame.String())
	return nil
}

// Close stops and releases the transceiver.
func (m *Manager) Close() error {
	var errs []error
	if m.ready {
		if err := m.tr.Stop(); err != nil {
			errs = append(errs, TransceiverError{Op: "stop", Err: err})
		}
	}
	if err := m.tr.Close(); err != nil {
		errs = append(errs, TransceiverError{Op: "close", Err: err})
	}
	m.ready = false
	m.initErr = ErrClosed
	return errors.Join(errs...)
}
