// Package socketcan implements bus.Transceiver on a Linux SocketCAN interface.
//
// Frames go through a can.Bus over a raw CAN socket that also receives the
// controller's error frames. Error frames are turned into alerts, collected on
// the bus reader goroutine and drained by ReadAlerts.
package socketcan

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/FabianPetersen/can"

	"github.com/FabianPetersen/cantelemetry"
	"github.com/FabianPetersen/cantelemetry/bus"
)

// DialFunc opens a raw CAN socket on an interface. Each read and write
// carries one 16-byte can_frame.
type DialFunc func(iface string) (io.ReadWriteCloser, error)

// Config describes a SocketCAN transceiver.
type Config struct {
	// Interface is the network interface name, e.g. "can0".
	Interface string
	// Link defaults to IPLink on Interface.
	Link Link
	// Dial defaults to a raw CAN socket with the error filter enabled.
	Dial DialFunc
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Transceiver is a SocketCAN bus.Transceiver.
type Transceiver struct {
	iface  string
	link   Link
	dial   DialFunc
	logger *slog.Logger

	mu        sync.Mutex
	installed bool
	conn      io.ReadWriteCloser
	bus       *can.Bus
	done      chan struct{}
	alerts    bus.Alert
}

// New returns a transceiver for cfg.Interface. Nothing is opened until Start.
func New(cfg Config, logger *slog.Logger) *Transceiver {
	if cfg.Link == nil {
		cfg.Link = IPLink{Name: cfg.Interface}
	}
	if cfg.Dial == nil {
		cfg.Dial = Dial
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transceiver{
		iface:  cfg.Interface,
		link:   cfg.Link,
		dial:   cfg.Dial,
		logger: logger.With("component", "socketcan", "iface", cfg.Interface),
	}
}

// Install brings the link down and sets the bitrate. Only FilterAcceptAll is
// supported, the raw socket has no identifier filter installed.
func (t *Transceiver) Install(bitrate int, filter bus.FilterPolicy) error {
	if filter != bus.FilterAcceptAll {
		return fmt.Errorf("socketcan: unsupported filter %s", filter)
	}
	if bitrate <= 0 {
		return fmt.Errorf("socketcan: invalid bitrate %d", bitrate)
	}
	if err := t.link.Down(); err != nil {
		return err
	}
	if err := t.link.Configure(bitrate); err != nil {
		return err
	}

	t.mu.Lock()
	t.installed = true
	t.mu.Unlock()
	return nil
}

// Start brings the link up and opens the socket if it is not open yet. It is
// called again after a bus-off restart, the socket then stays as it is.
func (t *Transceiver) Start() error {
	t.mu.Lock()
	installed := t.installed
	t.mu.Unlock()
	if !installed {
		return bus.ErrNotInitialized
	}

	if err := t.link.Up(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bus != nil {
		return nil
	}

	conn, err := t.dial(t.iface)
	if err != nil {
		return fmt.Errorf("socketcan: open %s: %w", t.iface, err)
	}
	b := can.NewBus(can.NewReadWriteCloser(conn), t.iface)
	b.SubscribeFunc(t.handleFrame)
	done := make(chan struct{})
	t.conn, t.bus, t.done = conn, b, done

	go func() {
		defer close(done)
		err := b.ConnectAndPublish()

		t.mu.Lock()
		stale := t.bus == b
		if stale {
			t.conn, t.bus, t.done = nil, nil, nil
		}
		t.mu.Unlock()
		if stale && err != nil {
			t.logger.Error("socket reader stopped", "error", err)
		}
	}()
	return nil
}

// Stop closes the socket and brings the link down.
func (t *Transceiver) Stop() error {
	disconnectErr := t.disconnect()
	if err := t.link.Down(); err != nil {
		return errors.Join(disconnectErr, err)
	}
	return disconnectErr
}

func (t *Transceiver) InitiateRecovery() error {
	return t.link.Restart()
}

// ReadAlerts drains the alerts collected since the last call. It never blocks.
func (t *Transceiver) ReadAlerts() (bus.Alert, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	a := t.alerts
	t.alerts = 0
	return a, nil
}

// Transmit writes one frame. timeout bounds the wait for room in the
// interface's transmit queue.
func (t *Transceiver) Transmit(frame cantelemetry.Frame, timeout time.Duration) error {
	t.mu.Lock()
	b, conn := t.bus, t.conn
	t.mu.Unlock()
	if b == nil {
		return bus.ErrNotInitialized
	}

	if d, ok := conn.(writeDeadliner); ok && timeout > 0 {
		if err := d.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	if err := b.PublishMinDuration(frame.CANFrame(), 0); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) || queueFull(err) {
			return fmt.Errorf("%w: %v", bus.ErrTimeout, err)
		}
		return err
	}
	return nil
}

// Close releases the socket. The link is left as it is.
func (t *Transceiver) Close() error {
	return t.disconnect()
}

func (t *Transceiver) disconnect() error {
	t.mu.Lock()
	b, done := t.bus, t.done
	t.conn, t.bus, t.done = nil, nil, nil
	t.mu.Unlock()
	if b == nil {
		return nil
	}

	err := b.Disconnect()
	<-done
	return err
}

func (t *Transceiver) handleFrame(frm can.Frame) {
	a := AlertsFromErrorFrame(frm)
	if a == 0 {
		return
	}
	t.mu.Lock()
	t.alerts |= a
	t.mu.Unlock()
}
