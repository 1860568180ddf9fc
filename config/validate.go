package config

import (
	"fmt"

	"github.com/Masterminds/semver"
	"golang.org/x/exp/slices"

	"github.com/FabianPetersen/cantelemetry"
	"github.com/FabianPetersen/cantelemetry/sensor"
)

// Bitrates are the CAN bitrates a profile may select.
var Bitrates = []int{10000, 20000, 50000, 100000, 125000, 250000, 500000, 800000, 1000000}

var (
	busDrivers = []string{BusSocketCAN, BusVirtual}
	transports = []string{TransportHardware, TransportSoftware}
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
	cadences   = []string{CadencePrimary, CadenceSecondary}

	// drivers lists the drivers that can serve each kind.
	drivers = map[sensor.Kind][]string{
		sensor.DryTempProbe:     {DriverDS18B20, DriverSim},
		sensor.WetTempProbe:     {DriverDS18B20, DriverSim},
		sensor.EnvironmentCombo: {DriverBME280, DriverSim},
		sensor.CO2Sensor:        {DriverSCD4x, DriverSim},
		sensor.DistanceSensor:   {DriverVL53L0X, DriverSim},
	}
	i2cDrivers = []string{DriverBME280, DriverSCD4x, DriverVL53L0X}
)

// oneOf accepts the empty string, which Normalize replaces by a default.
func oneOf(v string, allowed []string) bool {
	return v == "" || slices.Contains(allowed, v)
}

// Validate checks the profile. It never mutates it.
func Validate(cfg *Config) error {
	if cfg.Version != "" {
		v, err := semver.NewVersion(cfg.Version)
		if err != nil {
			return fmt.Errorf("version %q: %w", cfg.Version, err)
		}
		c, err := semver.NewConstraint(SchemaConstraint)
		if err != nil {
			return err
		}
		if !c.Check(v) {
			return fmt.Errorf("version %s not supported, require %s", cfg.Version, SchemaConstraint)
		}
	}

	if err := cantelemetry.NodeID(cfg.Node.ID).Validate(); err != nil {
		return fmt.Errorf("node.id: %w", err)
	}

	// ---- bus ----

	b := cfg.Bus
	if !oneOf(b.Driver, busDrivers) {
		return fmt.Errorf("bus.driver %q: must be one of %v", b.Driver, busDrivers)
	}
	if b.Bitrate != 0 && !slices.Contains(Bitrates, b.Bitrate) {
		return fmt.Errorf("bus.bitrate %d: must be one of %v", b.Bitrate, Bitrates)
	}
	if b.TxTimeoutMs < 0 {
		return fmt.Errorf("bus.tx_timeout_ms must not be negative")
	}

	// ---- schedule ----

	s := cfg.Schedule
	for name, v := range map[string]int{
		"tick_ms":       s.TickMs,
		"primary_ms":    s.PrimaryMs,
		"secondary_ms":  s.SecondaryMs,
		"probe_ms":      s.ProbeMs,
		"diagnostic_ms": s.DiagnosticMs,
	} {
		if v < 0 {
			return fmt.Errorf("schedule.%s must not be negative", name)
		}
	}
	// Compare what Normalize will produce, unset values take their defaults.
	tick, primary := effective(s.TickMs, DefaultTickMs), effective(s.PrimaryMs, DefaultPrimaryMs)
	if tick > primary {
		return fmt.Errorf("schedule.tick_ms %d exceeds primary_ms %d", tick, primary)
	}
	for name, cadence := range s.Cadence {
		class, ok := cantelemetry.ParseSensorClass(name)
		if !ok {
			return fmt.Errorf("schedule.cadence: unknown class %q", name)
		}
		if class == cantelemetry.ClassHeartbeat {
			return fmt.Errorf("schedule.cadence: heartbeat is always secondary")
		}
		if !slices.Contains(cadences, cadence) {
			return fmt.Errorf("schedule.cadence.%s %q: must be one of %v", name, cadence, cadences)
		}
	}

	// ---- sensors ----

	for _, ch := range cfg.Sensors.byKind() {
		if !ch.Enabled {
			continue
		}
		if err := validateSensor(ch); err != nil {
			return fmt.Errorf("sensors.%s: %w", ch.Kind, err)
		}
	}

	// ---- log ----

	if !oneOf(cfg.Log.Level, logLevels) {
		return fmt.Errorf("log.level %q: must be one of %v", cfg.Log.Level, logLevels)
	}
	if !oneOf(cfg.Log.Format, logFormats) {
		return fmt.Errorf("log.format %q: must be one of %v", cfg.Log.Format, logFormats)
	}
	return nil
}

func validateSensor(ch Channel) error {
	allowed := drivers[ch.Kind]
	if !slices.Contains(allowed, ch.Driver) {
		return fmt.Errorf("driver %q: must be one of %v", ch.Driver, allowed)
	}

	switch {
	case ch.Driver == DriverDS18B20:
		if ch.Device == "" {
			return fmt.Errorf("device: 1-Wire slave id required")
		}

	case slices.Contains(i2cDrivers, ch.Driver):
		if !oneOf(ch.Transport, transports) {
			return fmt.Errorf("transport %q: must be one of %v", ch.Transport, transports)
		}
		if ch.Transport == TransportSoftware && (ch.SDA == "" || ch.SCL == "") {
			return fmt.Errorf("software transport requires sda and scl pins")
		}
		if ch.Address > 0x7F {
			return fmt.Errorf("address 0x%X is not a 7-bit I2C address", ch.Address)
		}
		if ch.ClockHz < 0 {
			return fmt.Errorf("clock_hz must not be negative")
		}
	}
	return nil
}

func effective(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
