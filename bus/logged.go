package bus

import (
	"context"
	"log/slog"
	"time"

	"github.com/FabianPetersen/cantelemetry"
)

// LogOption is a bitmask for selecting which transceiver calls to log.
type LogOption uint8

const (
	LogNone     LogOption = 0
	LogTransmit LogOption = 1 << iota
	LogAlerts
	LogControl
	LogAll = LogTransmit | LogAlerts | LogControl
)

// NewLoggedTransceiver wraps inner and logs the selected calls at level.
// Errors are always logged at error level for the selected calls.
func NewLoggedTransceiver(inner Transceiver, logger *slog.Logger, level slog.Level, opts LogOption) Transceiver {
	return &loggedTransceiver{
		inner:  inner,
		logger: logger,
		level:  level,
		opts:   opts,
	}
}

type loggedTransceiver struct {
	inner  Transceiver
	logger *slog.Logger
	level  slog.Level
	opts   LogOption
}

func (l *loggedTransceiver) control(op string, err error, args ...any) {
	if l.opts&LogControl == 0 {
		return
	}
	if err != nil {
		l.logger.Log(context.Background(), slog.LevelError, "transceiver "+op+" error",
			append(args, "error", err)...)
		return
	}
	l.logger.Log(context.Background(), l.level, "transceiver "+op, args...)
}

func (l *loggedTransceiver) Install(bitrate int, filter FilterPolicy) error {
	err := l.inner.Install(bitrate, filter)
	l.control("install", err, "bitrate", bitrate, "filter", filter.String())
	return err
}

func (l *loggedTransceiver) Start() error {
	err := l.inner.Start()
	l.control("start", err)
	return err
}

func (l *loggedTransceiver) Stop() error {
	err := l.inner.Stop()
	l.control("stop", err)
	return err
}

func (l *loggedTransceiver) InitiateRecovery() error {
	err := l.inner.InitiateRecovery()
	l.control("recover", err)
	return err
}

// ReadAlerts logs only non-empty alert sets, polls happen every tick.
func (l *loggedTransceiver) ReadAlerts() (Alert, error) {
	a, err := l.inner.ReadAlerts()
	if l.opts&LogAlerts != 0 {
		if err != nil {
			l.logger.Log(context.Background(), slog.LevelError, "transceiver alerts error", "error", err)
		} else if a != 0 {
			l.logger.Log(context.Background(), l.level, "transceiver alerts", "alerts", a.String())
		}
	}
	return a, err
}

func (l *loggedTransceiver) Transmit(frame cantelemetry.Frame, timeout time.Duration) error {
	if l.opts&LogTransmit != 0 {
		l.logger.Log(context.Background(), l.level, "transceiver transmit",
			"id", frame.ID,
			"data", frame.Data[:],
			"string", frame.String(),
		)
	}
	err := l.inner.Transmit(frame, timeout)
	if l.opts&LogTransmit != 0 && err != nil {
		l.logger.Log(context.Background(), slog.LevelError, "transceiver transmit error",
			"id", frame.ID,
			"error", err,
		)
	}
	return err
}

// Close forwards to the inner transceiver without logging.
func (l *loggedTransceiver) Close() error {
	return l.inner.Close()
}
