// Package node wires a loaded profile into a runnable node.
package node

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/FabianPetersen/cantelemetry"
	"github.com/FabianPetersen/cantelemetry/bus"
	"github.com/FabianPetersen/cantelemetry/bus/socketcan"
	"github.com/FabianPetersen/cantelemetry/bus/virtual"
	"github.com/FabianPetersen/cantelemetry/config"
	"github.com/FabianPetersen/cantelemetry/scheduler"
	"github.com/FabianPetersen/cantelemetry/sensor"
	"github.com/FabianPetersen/cantelemetry/sensor/driver"
	"github.com/FabianPetersen/cantelemetry/sensor/transport"
)

// I2C transactions are retried this often on a NACK.
const (
	nackAttempts = 3
	nackDelay    = time.Millisecond
)

// Node is a built node, ready to Boot.
type Node struct {
	Config    *config.Config
	Scheduler *scheduler.Scheduler
	Manager   *bus.Manager
	// Virtual is set when the profile selects the simulated bus.
	Virtual *virtual.Transceiver
	// Sims holds the simulated drivers by kind.
	Sims map[sensor.Kind]*driver.Sim

	sensors *builder
}

// Build constructs every component of the profile. Nothing touches the
// hardware until the scheduler boots; a sensor bus that cannot be opened
// only fails the sensors on it.
func Build(cfg *config.Config, clock scheduler.Clock, logger *slog.Logger) (*Node, error) {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Node{
		Config: cfg,
		Sims:   make(map[sensor.Kind]*driver.Sim),
	}

	// ---- bus ----

	var tr bus.Transceiver
	switch cfg.Bus.Driver {
	case config.BusSocketCAN:
		tr = socketcan.New(socketcan.Config{Interface: cfg.Bus.Interface}, logger)
	case config.BusVirtual:
		n.Virtual = virtual.New(virtual.DefaultQueueSize)
		n.Virtual.AutoRecover = true
		tr = n.Virtual
	default:
		return nil, fmt.Errorf("node: unknown bus driver %q", cfg.Bus.Driver)
	}
	tr = bus.NewLoggedTransceiver(tr, logger.With("component", "transceiver"), slog.LevelDebug,
		bus.LogControl|bus.LogAlerts)

	n.Manager = bus.NewManager(tr, bus.Options{
		TxTimeout:    cfg.Bus.TxTimeout(),
		InitAttempts: cfg.Bus.InitAttempts,
	}, logger)

	// ---- sensors ----

	b := &builder{cfg: cfg, logger: logger, buses: make(map[string]transport.Transport)}
	state := scheduler.NewNodeState(cantelemetry.NodeID(cfg.Node.ID))
	for _, ch := range cfg.Sensors.Channels() {
		d, err := b.driver(ch)
		if err != nil {
			return nil, fmt.Errorf("node: sensors.%s: %w", ch.Kind, err)
		}
		if sim, ok := d.(*driver.Sim); ok {
			n.Sims[ch.Kind] = sim
		}
		state.Channels = append(state.Channels, sensor.NewChannel(ch.Kind, d))
	}
	n.sensors = b

	// ---- scheduler ----

	scfg := scheduler.Config{
		Bitrate:    cfg.Bus.Bitrate,
		Filter:     bus.FilterAcceptAll,
		Tick:       cfg.Schedule.Tick(),
		Primary:    cfg.Schedule.Primary(),
		Secondary:  cfg.Schedule.Secondary(),
		Diagnostic: cfg.Schedule.Diagnostic(),
		Cadence:    make(map[cantelemetry.SensorClass]scheduler.Cadence),
	}
	for name, cadence := range cfg.Schedule.Cadence {
		class, ok := cantelemetry.ParseSensorClass(name)
		if !ok {
			continue
		}
		if cadence == config.CadenceSecondary {
			scfg.Cadence[class] = scheduler.Secondary
		} else {
			scfg.Cadence[class] = scheduler.Primary
		}
	}
	monitor := sensor.NewMonitor(cfg.Schedule.Probe(), logger)
	n.Scheduler = scheduler.New(scfg, state, n.Manager, monitor, clock, logger)
	return n, nil
}

// Close stops the bus and releases the sensor buses.
func (n *Node) Close() error {
	errs := []error{n.Manager.Close()}
	n.sensors.mu.Lock()
	defer n.sensors.mu.Unlock()
	for _, c := range n.sensors.closers {
		errs = append(errs, c.Close())
	}
	n.sensors.closers = nil
	return errors.Join(errs...)
}

type builder struct {
	cfg    *config.Config
	logger *slog.Logger
	buses  map[string]transport.Transport

	mu      sync.Mutex
	closers []io.Closer

	hostOnce sync.Once
	hostErr  error
}

func (b *builder) driver(ch config.Channel) (sensor.Driver, error) {
	switch ch.Driver {
	case config.DriverSim:
		return driver.NewSim(driver.SimDefaults(ch.Kind)), nil
	case config.DriverDS18B20:
		return &driver.DS18B20{Root: b.cfg.Sensors.W1Path, Device: ch.Device}, nil
	case config.DriverBME280:
		return driver.NewBME280(b.transport(ch), ch.Address), nil
	case config.DriverSCD4x:
		return driver.NewSCD4x(b.transport(ch), ch.Address), nil
	case config.DriverVL53L0X:
		return driver.NewVL53L0X(b.transport(ch), ch.Address), nil
	}
	return nil, fmt.Errorf("unknown driver %q", ch.Driver)
}

// transport returns the shared transport of the bus ch is on.
func (b *builder) transport(ch config.Channel) transport.Transport {
	var name string
	var open func() (transport.Transport, error)

	if ch.Transport == config.TransportSoftware {
		name = "soft:" + ch.SDA + "/" + ch.SCL
		open = func() (transport.Transport, error) {
			return b.openSoftware(name, ch.SDA, ch.SCL, ch.ClockHz)
		}
	} else {
		name = "i2c:" + ch.Bus
		open = func() (transport.Transport, error) {
			return b.openHardware(ch.Bus)
		}
	}

	if t, ok := b.buses[name]; ok {
		return t
	}
	t := transport.Serialized(transport.Lazy(name, open), nackAttempts, nackDelay)
	b.buses[name] = t
	return t
}

func (b *builder) initHost() error {
	b.hostOnce.Do(func() {
		_, b.hostErr = host.Init()
	})
	return b.hostErr
}

func (b *builder) openHardware(bus string) (transport.Transport, error) {
	if err := b.initHost(); err != nil {
		return nil, err
	}
	h, err := transport.OpenHardware(bus)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.closers = append(b.closers, h)
	b.mu.Unlock()
	b.logger.Info("i2c bus opened", "bus", h.Name())
	return h, nil
}

func (b *builder) openSoftware(name, sda, scl string, hz int) (transport.Transport, error) {
	if err := b.initHost(); err != nil {
		return nil, err
	}
	sdaPin := gpioreg.ByName(sda)
	sclPin := gpioreg.ByName(scl)
	if sdaPin == nil || sclPin == nil {
		return nil, fmt.Errorf("gpio %s/%s not found", sda, scl)
	}
	b.logger.Info("software i2c bus opened", "sda", sdaPin.Name(), "scl", sclPin.Name())
	return transport.NewSoftware(name, transport.GPIOLine{Pin: sdaPin}, transport.GPIOLine{Pin: sclPin}, hz), nil
}

// NewLogger returns the logger selected by the profile.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
