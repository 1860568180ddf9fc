package bus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/FabianPetersen/cantelemetry"
)

type fakeTransceiver struct {
	installErr  error
	startErrs   []error // consumed one per Start call, nil when empty
	recoverErr  error
	transmitErr error

	installCalls  int
	startCalls    int
	stopCalls     int
	recoveryCalls int
	closeCalls    int

	pending Alert
	sent    []cantelemetry.Frame
}

func (f *fakeTransceiver) Install(int, FilterPolicy) error {
	f.installCalls++
	return f.installErr
}

func (f *fakeTransceiver) Start() error {
	f.startCalls++
	if len(f.startErrs) == 0 {
		return nil
	}
	err := f.startErrs[0]
	f.startErrs = f.startErrs[1:]
	return err
}

func (f *fakeTransceiver) Stop() error {
	f.stopCalls++
	return nil
}

func (f *fakeTransceiver) InitiateRecovery() error {
	f.recoveryCalls++
	return f.recoverErr
}

func (f *fakeTransceiver) ReadAlerts() (Alert, error) {
	a := f.pending
	f.pending = 0
	return a, nil
}

func (f *fakeTransceiver) Transmit(frame cantelemetry.Frame, _ time.Duration) error {
	if f.transmitErr != nil {
		return f.transmitErr
	}
	f.sent = append(f.sent, frame)
	return nil
}

func (f *fakeTransceiver) Close() error {
	f.closeCalls++
	return nil
}

var errFake = errors.New("fake failure")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordSink struct {
	records []slog.Record
}

func (s *recordSink) Enabled(context.Context, slog.Level) bool { return true }
func (s *recordSink) Handle(_ context.Context, r slog.Record) error {
	s.records = append(s.records, r.Clone())
	return nil
}
func (s *recordSink) WithAttrs([]slog.Attr) slog.Handler { return s }
func (s *recordSink) WithGroup(string) slog.Handler      { return s }

func hasSlogMsg(records []slog.Record, level slog.Level, msg string) bool {
	for _, r := range records {
		if r.Level == level && r.Message == msg {
			return true
		}
	}
	return false
}

func newTestManager(tr *fakeTransceiver) *Manager {
	return NewManager(tr, Options{InitAttempts: 2, InitDelay: time.Millisecond}, discardLogger())
}
