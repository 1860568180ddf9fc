// Package config loads the node profile: which node this is, how the bus is
// reached and which sensors are fitted. One profile replaces per-variant
// builds.
package config

import (
	"time"

	"github.com/FabianPetersen/cantelemetry/sensor"
)

// SchemaConstraint is the range of profile versions this build reads.
const SchemaConstraint = "^1.0"

type Config struct {
	Version  string         `yaml:"version" env:"CANNODE_VERSION"`
	Node     NodeConfig     `yaml:"node"`
	Bus      BusConfig      `yaml:"bus"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Sensors  SensorsConfig  `yaml:"sensors"`
	Log      LogConfig      `yaml:"log"`
}

// ---- NODE ----

type NodeConfig struct {
	ID uint8 `yaml:"id" env:"CANNODE_NODE_ID"`
}

// ---- BUS ----

const (
	BusSocketCAN = "socketcan"
	BusVirtual   = "virtual"
)

type BusConfig struct {
	Driver       string `yaml:"driver" env:"CANNODE_BUS_DRIVER"`
	Interface    string `yaml:"interface" env:"CANNODE_BUS_INTERFACE"`
	Bitrate      int    `yaml:"bitrate" env:"CANNODE_BUS_BITRATE"`
	TxTimeoutMs  int    `yaml:"tx_timeout_ms" env:"CANNODE_BUS_TX_TIMEOUT_MS"`
	InitAttempts uint   `yaml:"init_attempts"`
}

// TxTimeout returns the bound of a single transmit.
func (b BusConfig) TxTimeout() time.Duration {
	return time.Duration(b.TxTimeoutMs) * time.Millisecond
}

// ---- SCHEDULE ----

const (
	CadencePrimary   = "primary"
	CadenceSecondary = "secondary"
)

type ScheduleConfig struct {
	TickMs       int `yaml:"tick_ms" env:"CANNODE_TICK_MS"`
	PrimaryMs    int `yaml:"primary_ms"`
	SecondaryMs  int `yaml:"secondary_ms"`
	ProbeMs      int `yaml:"probe_ms" env:"CANNODE_PROBE_MS"`
	DiagnosticMs int `yaml:"diagnostic_ms"`

	// Cadence maps a frame class name to primary or secondary.
	Cadence map[string]string `yaml:"cadence"`
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

func (s ScheduleConfig) Tick() time.Duration       { return ms(s.TickMs) }
func (s ScheduleConfig) Primary() time.Duration    { return ms(s.PrimaryMs) }
func (s ScheduleConfig) Secondary() time.Duration  { return ms(s.SecondaryMs) }
func (s ScheduleConfig) Probe() time.Duration      { return ms(s.ProbeMs) }
func (s ScheduleConfig) Diagnostic() time.Duration { return ms(s.DiagnosticMs) }

// ---- SENSORS ----

// Driver names.
const (
	DriverDS18B20 = "ds18b20"
	DriverBME280  = "bme280"
	DriverSCD4x   = "scd4x"
	DriverVL53L0X = "vl53l0x"
	DriverSim     = "sim"
)

// Transport names for I2C drivers.
const (
	TransportHardware = "hardware"
	TransportSoftware = "software"
)

type SensorsConfig struct {
	// W1Path is the sysfs directory of 1-Wire slaves.
	W1Path      string       `yaml:"w1_path" env:"CANNODE_W1_PATH"`
	DryTemp     SensorConfig `yaml:"dry_temp" envPrefix:"CANNODE_DRY_TEMP_"`
	WetTemp     SensorConfig `yaml:"wet_temp" envPrefix:"CANNODE_WET_TEMP_"`
	Environment SensorConfig `yaml:"environment" envPrefix:"CANNODE_ENVIRONMENT_"`
	CO2         SensorConfig `yaml:"co2" envPrefix:"CANNODE_CO2_"`
	Distance    SensorConfig `yaml:"distance" envPrefix:"CANNODE_DISTANCE_"`
}

type SensorConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Driver  string `yaml:"driver" env:"DRIVER"`

	// I2C drivers.
	Transport string `yaml:"transport" env:"TRANSPORT"`
	Bus       string `yaml:"bus" env:"BUS"`
	SDA       string `yaml:"sda"`
	SCL       string `yaml:"scl"`
	ClockHz   int    `yaml:"clock_hz"`
	Address   uint16 `yaml:"address" env:"ADDRESS"`

	// Device is the 1-Wire slave id.
	Device string `yaml:"device" env:"DEVICE"`
}

// Channel is an enabled sensor and its kind.
type Channel struct {
	Kind sensor.Kind
	SensorConfig
}

func (s *SensorsConfig) byKind() []Channel {
	return []Channel{
		{sensor.DryTempProbe, s.DryTemp},
		{sensor.WetTempProbe, s.WetTemp},
		{sensor.EnvironmentCombo, s.Environment},
		{sensor.CO2Sensor, s.CO2},
		{sensor.DistanceSensor, s.Distance},
	}
}

// Channels returns the enabled sensors in kind order.
func (s *SensorsConfig) Channels() []Channel {
	var out []Channel
	for _, ch := range s.byKind() {
		if ch.Enabled {
			out = append(out, ch)
		}
	}
	return out
}

// ---- LOG ----

type LogConfig struct {
	Level  string `yaml:"level" env:"CANNODE_LOG_LEVEL"`
	Format string `yaml:"format" env:"CANNODE_LOG_FORMAT"`
}
