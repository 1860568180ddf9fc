// Package scheduler runs a node's cooperative tick loop.
//
// Every tick runs, in this order: bus alert polling, reconnection probes of
// failed sensors, sensor reads for the cadences due, encoding, transmission,
// then the heartbeat and the diagnostic summary when due. Nothing in a tick
// waits for anything but bounded sensor and bus I/O.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FabianPetersen/cantelemetry"
	"github.com/FabianPetersen/cantelemetry/bus"
	"github.com/FabianPetersen/cantelemetry/codec"
	"github.com/FabianPetersen/cantelemetry/sensor"
)

// Cadence selects the timer a frame class is sent on.
type Cadence int

const (
	Primary Cadence = iota
	Secondary
)

func (c Cadence) String() string {
	if c == Secondary {
		return "secondary"
	}
	return "primary"
}

// Config holds the timing of a node.
type Config struct {
	Bitrate int
	Filter  bus.FilterPolicy

	Tick       time.Duration
	Primary    time.Duration
	Secondary  time.Duration
	Diagnostic time.Duration

	// Cadence overrides the timer of a class. The heartbeat is always secondary.
	Cadence map[cantelemetry.SensorClass]Cadence
}

// DefaultConfig returns the documented timings.
func DefaultConfig() Config {
	return Config{
		Bitrate:    cantelemetry.DefaultBitrate,
		Filter:     bus.FilterAcceptAll,
		Tick:       10 * time.Millisecond,
		Primary:    time.Second,
		Secondary:  5 * time.Second,
		Diagnostic: 30 * time.Second,
		Cadence: map[cantelemetry.SensorClass]Cadence{
			cantelemetry.ClassDualTemperature: Primary,
			cantelemetry.ClassEnvironment:     Primary,
			cantelemetry.ClassCO2:             Secondary,
			cantelemetry.ClassDistance:        Primary,
		},
	}
}

func (c Config) cadence(class cantelemetry.SensorClass) Cadence {
	if class == cantelemetry.ClassHeartbeat {
		return Secondary
	}
	return c.Cadence[class]
}

// Scheduler drives one node. It is not safe for concurrent use.
type Scheduler struct {
	cfg     Config
	state   *NodeState
	bus     *bus.Manager
	monitor *sensor.Monitor
	clock   Clock
	logger  *slog.Logger

	primary    Timer
	secondary  Timer
	diagnostic Timer
}

// New returns a scheduler. Zero timings in cfg take their defaults.
func New(cfg Config, state *NodeState, mgr *bus.Manager, monitor *sensor.Monitor, clock Clock, logger *slog.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.Bitrate == 0 {
		cfg.Bitrate = def.Bitrate
	}
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.Primary <= 0 {
		cfg.Primary = def.Primary
	}
	if cfg.Secondary <= 0 {
		cfg.Secondary = def.Secondary
	}
	if cfg.Diagnostic <= 0 {
		cfg.Diagnostic = def.Diagnostic
	}
	if cfg.Cadence == nil {
		cfg.Cadence = def.Cadence
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:        cfg,
		state:      state,
		bus:        mgr,
		monitor:    monitor,
		clock:      clock,
		logger:     logger.With("component", "scheduler", "node", int(state.Node)),
		primary:    Timer{Interval: cfg.Primary},
		secondary:  Timer{Interval: cfg.Secondary},
		diagnostic: Timer{Interval: cfg.Diagnostic},
	}
}

// State returns the node state.
func (s *Scheduler) State() *NodeState {
	return s.state
}

// Boot initialises the bus and configures every sensor once. A bus failure
// is returned but leaves the scheduler runnable with telemetry disabled.
func (s *Scheduler) Boot() error {
	now := s.clock.Now()
	s.state.Boot = now
	s.diagnostic.Reset(now)

	busErr := s.bus.Initialize(s.cfg.Bitrate, s.cfg.Filter)
	for _, ch := range s.state.Channels {
		s.monitor.Boot(ch, now)
	}

	args := []any{"bus_ready", s.bus.Ready()}
	for _, ch := range s.state.Channels {
		args = append(args, ch.Kind.String(), ch.State.String())
	}
	s.logger.Info("node booted", args...)
	return busErr
}

// Tick runs one pass of the loop.
func (s *Scheduler) Tick() {
	now := s.clock.Now()

	s.bus.PollAlerts()
	s.monitor.ProbeAll(s.state.Channels, now)

	due := map[Cadence]bool{
		Primary:   s.primary.Take(now),
		Secondary: s.secondary.Take(now),
	}
	if due[Primary] && !s.bus.Ready() {
		s.logger.Warn("telemetry disabled, transceiver not initialized", "error", s.bus.InitErr())
	}
	if due[Primary] || due[Secondary] {
		for _, frame := range s.frames(now, due) {
			s.transmit(frame)
		}
	}

	if s.diagnostic.Take(now) {
		s.logDiagnostics(now)
	}
}

// frames reads the channels of every class due and encodes their frames.
func (s *Scheduler) frames(now time.Time, due map[Cadence]bool) []cantelemetry.Frame {
	var out []cantelemetry.Frame
	node := s.state.Node
	for _, class := range cantelemetry.Classes {
		if !due[s.cfg.cadence(class)] {
			continue
		}

		payload, ok := s.encode(class, now)
		if !ok {
			continue
		}
		s.state.Frames[class].Built++
		out = append(out, cantelemetry.NewFrame(node, class, payload))
	}
	return out
}

func (s *Scheduler) read(kind sensor.Kind, now time.Time) (sensor.Reading, bool) {
	ch := s.state.Channel(kind)
	if ch == nil {
		return sensor.Reading{}, false
	}
	return s.monitor.Read(ch, now)
}

func (s *Scheduler) encode(class cantelemetry.SensorClass, now time.Time) (codec.Payload, bool) {
	switch class {
	case cantelemetry.ClassDualTemperature:
		dry, dryOK := s.read(sensor.DryTempProbe, now)
		wet, wetOK := s.read(sensor.WetTempProbe, now)
		if !dryOK && !wetOK {
			return codec.Payload{}, false
		}
		nan := sensor.NewReading()
		if !dryOK {
			dry = nan
		}
		if !wetOK {
			wet = nan
		}
		p := codec.DualTemperature(dry.Temperature, wet.Temperature, s.state.Counter)
		s.state.Counter++
		return p, true

	case cantelemetry.ClassEnvironment:
		r, ok := s.read(sensor.EnvironmentCombo, now)
		return codec.Environment(r.Temperature, r.Humidity, r.Pressure), ok

	case cantelemetry.ClassCO2:
		r, ok := s.read(sensor.CO2Sensor, now)
		return codec.CO2(r.CO2, r.Temperature, r.Humidity), ok

	case cantelemetry.ClassDistance:
		r, ok := s.read(sensor.DistanceSensor, now)
		return codec.Distance(r.Distance, r.Ambient, r.Signal), ok

	case cantelemetry.ClassHeartbeat:
		return codec.Heartbeat(s.state.Uptime(now)), true
	}
	return codec.Payload{}, false
}

func (s *Scheduler) transmit(frame cantelemetry.Frame) {
	class, err := frame.Class()
	if err != nil {
		s.logger.Error("frame with foreign identifier", "frame", frame.String(), "error", err)
		return
	}
	stats := &s.state.Frames[class]
	if err := s.bus.Transmit(frame); err != nil {
		stats.Dropped++
		return
	}
	stats.Sent++
}

// Run ticks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Diagnostics is a point-in-time summary of a node.
type Diagnostics struct {
	Node     cantelemetry.NodeID
	Uptime   time.Duration
	BusReady bool
	BusState bus.State
	InitErr  error
	Bus      bus.Stats
	Counter  uint16
	Frames   map[string]ClassStats
	Sensors  []sensor.Status
}

// Diagnostics summarises the node at now.
func (s *Scheduler) Diagnostics(now time.Time) Diagnostics {
	d := Diagnostics{
		Node:     s.state.Node,
		Uptime:   s.state.Uptime(now),
		BusReady: s.bus.Ready(),
		BusState: s.bus.State(),
		InitErr:  s.bus.InitErr(),
		Bus:      s.bus.Stats(),
		Counter:  s.state.Counter,
		Frames:   make(map[string]ClassStats),
	}
	for _, class := range cantelemetry.Classes {
		if st := s.state.Frames[class]; st != (ClassStats{}) {
			d.Frames[class.String()] = st
		}
	}
	for _, ch := range s.state.Channels {
		d.Sensors = append(d.Sensors, ch.Status())
	}
	return d
}

func (s *Scheduler) logDiagnostics(now time.Time) {
	d := s.Diagnostics(now)

	args := []any{
		"uptime", d.Uptime.Truncate(time.Second).String(),
		"bus_ready", d.BusReady,
		"bus_state", d.BusState.String(),
		slog.Group("frames",
			"sent", d.Bus.Sent,
			"failed", d.Bus.Failed,
			"skipped", d.Bus.Skipped,
		),
		slog.Group("recovery",
			"requests", d.Bus.RecoveryRequests,
			"restarts", d.Bus.RestartAttempts,
			"restart_failures", d.Bus.RestartFailures,
		),
	}
	for _, st := range d.Sensors {
		args = append(args, slog.Group(st.Kind,
			"state", st.State,
			"failures", st.Failures,
			"recoveries", st.Recoveries,
		))
	}

	if d.InitErr != nil {
		args = append(args, "init_error", d.InitErr.Error())
		s.logger.Error("diagnostics", args...)
		return
	}
	s.logger.Info("diagnostics", args...)
}

func (d Diagnostics) String() string {
	return fmt.Sprintf("node %d up %s bus %s ready=%t sent=%d failed=%d skipped=%d counter=%d",
		d.Node, d.Uptime.Truncate(time.Millisecond), d.BusState, d.BusReady,
		d.Bus.Sent, d.Bus.Failed, d.Bus.Skipped, d.Counter)
}
