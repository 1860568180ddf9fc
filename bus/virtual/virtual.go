// Package virtual implements an in-memory bus.Transceiver for tests, the
// bench simulator and nodes configured without CAN hardware.
package virtual

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/FabianPetersen/can"

	"github.com/FabianPetersen/cantelemetry"
	"github.com/FabianPetersen/cantelemetry/bus"
)

// Op names a transceiver operation for fault injection.
type Op int

const (
	OpInstall Op = iota
	OpStart
	OpRecover
	OpTransmit
	opCount
)

// DefaultQueueSize is the number of frames buffered for subscribers.
const DefaultQueueSize = 64

var (
	errBusOff  = errors.New("virtual: controller is bus-off")
	errStopped = errors.New("virtual: controller stopped")
)

// Calls counts the operations made on a Transceiver.
type Calls struct {
	Install  int
	Start    int
	Stop     int
	Recover  int
	Transmit int
}

// Transceiver is a simulated CAN controller. Transmitted frames are recorded
// and looped back to subscribers through a can.Bus.
type Transceiver struct {
	// AutoRecover completes a recovery as soon as it is initiated.
	AutoRecover bool

	mu        sync.Mutex
	faults    [opCount]error
	installed bool
	started   bool
	busOff    bool
	bitrate   int
	alerts    bus.Alert
	sent      []cantelemetry.Frame
	calls     Calls

	loop      *loopback
	bus       *can.Bus
	listening bool
}

// New returns a simulated transceiver with queueSize frames of loopback buffer.
func New(queueSize int) *Transceiver {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	loop := newLoopback(queueSize)
	return &Transceiver{
		loop: loop,
		bus:  can.NewBus(can.NewReadWriteCloser(loop), "virtual"),
	}
}

// SetFault makes op fail with err until it is cleared with a nil err.
func (t *Transceiver) SetFault(op Op, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.faults[op] = err
}

func (t *Transceiver) Install(bitrate int, filter bus.FilterPolicy) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls.Install++
	if err := t.faults[OpInstall]; err != nil {
		return err
	}
	t.installed = true
	t.bitrate = bitrate
	return nil
}

func (t *Transceiver) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls.Start++
	if err := t.faults[OpStart]; err != nil {
		return err
	}
	if !t.installed {
		return bus.ErrNotInitialized
	}
	if t.busOff {
		return errBusOff
	}
	t.started = true
	return nil
}

func (t *Transceiver) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls.Stop++
	t.started = false
	return nil
}

func (t *Transceiver) InitiateRecovery() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls.Recover++
	if err := t.faults[OpRecover]; err != nil {
		return err
	}
	if t.AutoRecover {
		t.recoverLocked()
	}
	return nil
}

// RaiseBusOff puts the controller into bus-off and queues the alert.
func (t *Transceiver) RaiseBusOff() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.busOff = true
	t.started = false
	t.alerts |= bus.AlertBusOff
}

// Recover leaves bus-off and queues the recovered alert. The controller
// stays stopped until the next Start.
func (t *Transceiver) Recover() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recoverLocked()
}

func (t *Transceiver) recoverLocked() {
	if !t.busOff {
		return
	}
	t.busOff = false
	t.alerts |= bus.AlertBusRecovered
}

// Raise queues alerts for the next ReadAlerts.
func (t *Transceiver) Raise(a bus.Alert) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.alerts |= a
}

func (t *Transceiver) ReadAlerts() (bus.Alert, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a := t.alerts
	t.alerts = 0
	return a, nil
}

func (t *Transceiver) Transmit(frame cantelemetry.Frame, timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls.Transmit++
	if err := t.faults[OpTransmit]; err != nil {
		return err
	}
	if t.busOff {
		return errBusOff
	}
	if !t.started {
		return errStopped
	}

	t.sent = append(t.sent, frame)
	if t.listening {
		if err := t.bus.PublishMinDuration(frame.CANFrame(), 0); err != nil {
			t.alerts |= bus.AlertRxQueueFull
		}
	}
	return nil
}

// Subscribe calls fn with every frame transmitted from now on. fn runs on
// the loopback reader goroutine.
func (t *Transceiver) Subscribe(fn func(cantelemetry.Frame)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bus.SubscribeFunc(func(frm can.Frame) {
		if cantelemetry.IsDataFrame(frm) {
			fn(cantelemetry.TelemetryFrame(frm))
		}
	})
	if !t.listening {
		t.listening = true
		go t.bus.ConnectAndPublish()
	}
}

// Close stops the loopback reader.
func (t *Transceiver) Close() error {
	return t.bus.Disconnect()
}

// Sent returns the frames accepted by Transmit.
func (t *Transceiver) Sent() []cantelemetry.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]cantelemetry.Frame(nil), t.sent...)
}

// Calls returns the operation counters.
func (t *Transceiver) Calls() Calls {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Bitrate returns the installed bitrate.
func (t *Transceiver) Bitrate() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bitrate
}

// BusOff reports whether the controller is bus-off.
func (t *Transceiver) BusOff() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.busOff
}

// loopback is a pipe whose reads return its writes. Each write carries one
// marshalled can_frame, each read returns one.
type loopback struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

var errQueueFull = errors.New("virtual: loopback queue full")

func newLoopback(size int) *loopback {
	return &loopback{
		frames: make(chan []byte, size),
		closed: make(chan struct{}),
	}
}

func (l *loopback) Read(p []byte) (int, error) {
	select {
	case b := <-l.frames:
		return copy(p, b), nil
	case <-l.closed:
		// Not io.EOF: can.Bus keeps reading after an EOF.
		return 0, io.ErrClosedPipe
	}
}

func (l *loopback) Write(p []byte) (int, error) {
	select {
	case <-l.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	select {
	case l.frames <- append([]byte(nil), p...):
		return len(p), nil
	default:
		return 0, errQueueFull
	}
}

func (l *loopback) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}
