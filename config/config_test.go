package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FabianPetersen/cantelemetry/sensor"
)

// helper to build a minimal valid profile
func profile(node uint8) *Config {
	return &Config{
		Version: "1.0.0",
		Node:    NodeConfig{ID: node},
		Bus:     BusConfig{Driver: BusVirtual},
	}
}

func sim() SensorConfig {
	return SensorConfig{Enabled: true, Driver: DriverSim}
}

const sample = `
version: "1.2.0"
node:
  id: 2
bus:
  driver: socketcan
  interface: can1
  bitrate: 500000
schedule:
  probe_ms: 15000
  cadence:
    co2: primary
sensors:
  dry_temp:
    enabled: true
    driver: ds18b20
    device: 28-0316a2794dff
  environment:
    enabled: true
    driver: bme280
    transport: software
    sda: GPIO2
    scl: GPIO3
    address: 0x77
  distance:
    enabled: false
    driver: vl53l0x
log:
  level: debug
  format: json
`

// ---- validate ----

func TestValidate_Minimal(t *testing.T) {
	if err := Validate(profile(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"node zero", func(c *Config) { c.Node.ID = 0 }, "node.id"},
		{"node four", func(c *Config) { c.Node.ID = 4 }, "node.id"},
		{"version too new", func(c *Config) { c.Version = "2.0.0" }, "not supported"},
		{"version garbage", func(c *Config) { c.Version = "latest" }, "version"},
		{"bus driver", func(c *Config) { c.Bus.Driver = "slcan" }, "bus.driver"},
		{"bitrate", func(c *Config) { c.Bus.Bitrate = 333000 }, "bus.bitrate"},
		{"negative timeout", func(c *Config) { c.Bus.TxTimeoutMs = -1 }, "tx_timeout_ms"},
		{"negative probe", func(c *Config) { c.Schedule.ProbeMs = -5 }, "probe_ms"},
		{"tick slower than primary", func(c *Config) {
			c.Schedule.TickMs = 2000
			c.Schedule.PrimaryMs = 1000
		}, "tick_ms"},
		{"tick slower than default primary", func(c *Config) { c.Schedule.TickMs = 2000 }, "primary_ms 1000"},
		{"primary faster than default tick", func(c *Config) { c.Schedule.PrimaryMs = 5 }, "tick_ms 10"},
		{"unknown class", func(c *Config) { c.Schedule.Cadence = map[string]string{"pressure": "primary"} }, "unknown class"},
		{"heartbeat cadence", func(c *Config) { c.Schedule.Cadence = map[string]string{"heartbeat": "primary"} }, "heartbeat"},
		{"bad cadence", func(c *Config) { c.Schedule.Cadence = map[string]string{"co2": "hourly"} }, "cadence.co2"},
		{"wrong driver for kind", func(c *Config) {
			c.Sensors.CO2 = SensorConfig{Enabled: true, Driver: DriverBME280}
		}, "sensors.co2"},
		{"ds18b20 without device", func(c *Config) {
			c.Sensors.WetTemp = SensorConfig{Enabled: true, Driver: DriverDS18B20}
		}, "sensors.wet_temp"},
		{"software without pins", func(c *Config) {
			c.Sensors.Distance = SensorConfig{Enabled: true, Driver: DriverVL53L0X, Transport: TransportSoftware, SDA: "GPIO2"}
		}, "sda and scl"},
		{"ten bit address", func(c *Config) {
			c.Sensors.Environment = SensorConfig{Enabled: true, Driver: DriverBME280, Address: 0x276}
		}, "7-bit"},
		{"log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		cfg := profile(1)
		tt.mutate(cfg)
		err := Validate(cfg)
		if err == nil {
			t.Errorf("%s: expected error", tt.name)
			continue
		}
		if !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s: error %q does not mention %q", tt.name, err, tt.want)
		}
	}
}

func TestValidate_DisabledSensorsIgnored(t *testing.T) {
	cfg := profile(3)
	cfg.Sensors.CO2 = SensorConfig{Enabled: false, Driver: "nonsense"}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	cfg := profile(1)
	cfg.Sensors.CO2 = sim()
	if err := Validate(cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Bus.Bitrate != 0 || cfg.Schedule.Cadence != nil || cfg.Sensors.CO2.Transport != "" {
		t.Fatalf("Validate mutated config: %+v", cfg)
	}
}

// ---- normalize ----

func TestNormalize_Defaults(t *testing.T) {
	cfg := profile(1)
	cfg.Version = ""
	cfg.Schedule.Cadence = map[string]string{"co2": CadencePrimary}
	Normalize(cfg)

	if cfg.Version != DefaultVersion || cfg.Bus.Bitrate != 250000 || cfg.Bus.TxTimeoutMs != 500 {
		t.Fatalf("bus defaults: %+v", cfg.Bus)
	}
	if cfg.Bus.Driver != BusVirtual {
		t.Fatalf("explicit driver overwritten: %q", cfg.Bus.Driver)
	}
	if cfg.Schedule.TickMs != 10 || cfg.Schedule.ProbeMs != 10000 || cfg.Schedule.DiagnosticMs != 30000 {
		t.Fatalf("schedule defaults: %+v", cfg.Schedule)
	}
	if cfg.Schedule.Cadence["co2"] != CadencePrimary || cfg.Schedule.Cadence["environment"] != CadencePrimary {
		t.Fatalf("cadence: %v", cfg.Schedule.Cadence)
	}
	if cfg.Sensors.Distance.Transport != TransportHardware || cfg.Log.Format != "text" {
		t.Fatalf("sensor/log defaults: %+v %+v", cfg.Sensors.Distance, cfg.Log)
	}
}

// ---- load ----

func TestParse_Sample(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Node.ID != 2 || cfg.Bus.Interface != "can1" || cfg.Bus.Bitrate != 500000 {
		t.Fatalf("parsed %+v", cfg)
	}
	if cfg.Sensors.Environment.Address != 0x77 || cfg.Sensors.Environment.SCL != "GPIO3" {
		t.Fatalf("environment %+v", cfg.Sensors.Environment)
	}

	chs := cfg.Sensors.Channels()
	if len(chs) != 2 || chs[0].Kind != sensor.DryTempProbe || chs[1].Kind != sensor.EnvironmentCombo {
		t.Fatalf("channels %+v", chs)
	}
	if cfg.Schedule.Probe().Seconds() != 15 || cfg.Schedule.Cadence["co2"] != CadencePrimary {
		t.Fatalf("schedule %+v", cfg.Schedule)
	}
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("node:\n  id: 1\n  name: boiler\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParse_Empty(t *testing.T) {
	// An empty profile has no node id.
	if _, err := Parse(nil); err == nil || !strings.Contains(err.Error(), "node.id") {
		t.Fatalf("Parse(nil) = %v", err)
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("CANNODE_NODE_ID", "3")
	t.Setenv("CANNODE_BUS_DRIVER", "virtual")
	t.Setenv("CANNODE_CO2_ENABLED", "true")
	t.Setenv("CANNODE_CO2_DRIVER", "sim")

	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Node.ID != 3 || cfg.Bus.Driver != BusVirtual {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if !cfg.Sensors.CO2.Enabled || cfg.Sensors.CO2.Driver != DriverSim {
		t.Fatalf("co2 %+v", cfg.Sensors.CO2)
	}
	// Untouched values keep the file's.
	if cfg.Bus.Interface != "can1" {
		t.Fatalf("interface %q", cfg.Bus.Interface)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Version != "1.2.0" {
		t.Fatalf("version %q", cfg.Version)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
