package config

import (
	"github.com/FabianPetersen/cantelemetry"
	"github.com/FabianPetersen/cantelemetry/sensor/driver"
)

// Defaults applied by Normalize.
const (
	DefaultVersion      = "1.0.0"
	DefaultInterface    = "can0"
	DefaultTxTimeoutMs  = 500
	DefaultInitAttempts = 3
	DefaultTickMs       = 10
	DefaultPrimaryMs    = 1000
	DefaultSecondaryMs  = 5000
	DefaultProbeMs      = 10000
	DefaultDiagnosticMs = 30000
)

// DefaultCadence is the cadence of classes the profile does not mention.
var DefaultCadence = map[string]string{
	cantelemetry.ClassDualTemperature.String(): CadencePrimary,
	cantelemetry.ClassEnvironment.String():     CadencePrimary,
	cantelemetry.ClassCO2.String():             CadenceSecondary,
	cantelemetry.ClassDistance.String():        CadencePrimary,
}

func setDefault[T comparable](v *T, def T) {
	var zero T
	if *v == zero {
		*v = def
	}
}

// Normalize fills in defaults. It must only be called after Validate.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	setDefault(&cfg.Version, DefaultVersion)

	setDefault(&cfg.Bus.Driver, BusSocketCAN)
	setDefault(&cfg.Bus.Interface, DefaultInterface)
	setDefault(&cfg.Bus.Bitrate, cantelemetry.DefaultBitrate)
	setDefault(&cfg.Bus.TxTimeoutMs, DefaultTxTimeoutMs)
	setDefault(&cfg.Bus.InitAttempts, DefaultInitAttempts)

	s := &cfg.Schedule
	setDefault(&s.TickMs, DefaultTickMs)
	setDefault(&s.PrimaryMs, DefaultPrimaryMs)
	setDefault(&s.SecondaryMs, DefaultSecondaryMs)
	setDefault(&s.ProbeMs, DefaultProbeMs)
	setDefault(&s.DiagnosticMs, DefaultDiagnosticMs)
	if s.Cadence == nil {
		s.Cadence = make(map[string]string)
	}
	for class, cadence := range DefaultCadence {
		if _, ok := s.Cadence[class]; !ok {
			s.Cadence[class] = cadence
		}
	}

	setDefault(&cfg.Sensors.W1Path, driver.DefaultW1Path)
	for _, sc := range []*SensorConfig{
		&cfg.Sensors.DryTemp,
		&cfg.Sensors.WetTemp,
		&cfg.Sensors.Environment,
		&cfg.Sensors.CO2,
		&cfg.Sensors.Distance,
	} {
		setDefault(&sc.Transport, TransportHardware)
	}

	setDefault(&cfg.Log.Level, "info")
	setDefault(&cfg.Log.Format, "text")
}
