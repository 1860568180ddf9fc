// Package sensor tracks the health of every sensor channel of a node.
//
// A channel starts Uninitialized, is configured once at boot and then read
// on each telemetry tick while OK. Any read or configuration failure marks it
// Failed; a Failed channel is only touched again by a slow liveness probe,
// which re-runs the full configuration when the device answers.
package sensor

import (
	"fmt"
	"math"
	"time"

	"github.com/FabianPetersen/cantelemetry"
)

// Kind identifies a sensor channel.
type Kind uint8

const (
	DryTempProbe Kind = iota + 1
	WetTempProbe
	EnvironmentCombo
	CO2Sensor
	DistanceSensor
)

// Kinds lists every channel kind a node can carry.
var Kinds = []Kind{DryTempProbe, WetTempProbe, EnvironmentCombo, CO2Sensor, DistanceSensor}

func (k Kind) String() string {
	switch k {
	case DryTempProbe:
		return "dry_temp"
	case WetTempProbe:
		return "wet_temp"
	case EnvironmentCombo:
		return "environment"
	case CO2Sensor:
		return "co2"
	case DistanceSensor:
		return "distance"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind returns the kind for its configuration name.
func ParseKind(name string) (Kind, bool) {
	for _, k := range Kinds {
		if k.String() == name {
			return k, true
		}
	}
	return 0, false
}

// Class returns the frame class the channel's readings are sent in. Both
// temperature probes share the dual-temperature class.
func (k Kind) Class() cantelemetry.SensorClass {
	switch k {
	case DryTempProbe, WetTempProbe:
		return cantelemetry.ClassDualTemperature
	case EnvironmentCombo:
		return cantelemetry.ClassEnvironment
	case CO2Sensor:
		return cantelemetry.ClassCO2
	case DistanceSensor:
		return cantelemetry.ClassDistance
	}
	return 0
}

// HealthState is the availability of a channel.
type HealthState uint8

const (
	Uninitialized HealthState = iota
	OK
	Failed
)

func (s HealthState) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case OK:
		return "OK"
	case Failed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Reading is one sample of a device. Quantities the device does not
// measure are NaN.
type Reading struct {
	Temperature float64 // °C
	Humidity    float64 // %RH
	Pressure    float64 // hPa
	CO2         float64 // ppm
	Distance    float64 // mm
	Ambient     float64 // raw
	Signal      float64 // raw
	At          time.Time
}

// NewReading returns a reading with every quantity absent.
func NewReading() Reading {
	nan := math.NaN()
	return Reading{
		Temperature: nan,
		Humidity:    nan,
		Pressure:    nan,
		CO2:         nan,
		Distance:    nan,
		Ambient:     nan,
		Signal:      nan,
	}
}

// Driver is the contract a device driver fulfils towards the monitor.
// Every call is bounded by the underlying transport and never blocks
// indefinitely.
type Driver interface {
	// Configure runs the full configuration and verification sequence.
	Configure() error
	// Probe is a lightweight presence check.
	Probe() error
	Read() (Reading, error)
}

// DeviceError reports which driver operation failed on which channel.
type DeviceError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e DeviceError) Error() string {
	return fmt.Sprintf("sensor %s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e DeviceError) Unwrap() error {
	return e.Err
}
