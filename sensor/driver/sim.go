// Package driver holds the device drivers a node's sensor channels run on.
package driver

import (
	"errors"
	"sync"

	"github.com/FabianPetersen/cantelemetry/sensor"
)

// ErrSimulated is returned by a Sim driver told to fail.
var ErrSimulated = errors.New("driver: simulated failure")

// Sim is a driver that returns fixed values. It can be told to fail, which
// makes every call fail until Heal.
type Sim struct {
	mu      sync.Mutex
	value   sensor.Reading
	failing bool
	// failReads makes only Read fail, the device still answers probes.
	failReads bool

	configures int
	probes     int
	reads      int
}

// NewSim returns a healthy simulated device reporting value.
func NewSim(value sensor.Reading) *Sim {
	return &Sim{value: value}
}

// Set changes the reported value.
func (d *Sim) Set(value sensor.Reading) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.value = value
}

// Calls returns how often each operation was invoked.
func (d *Sim) Calls() (configures, probes, reads int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.configures, d.probes, d.reads
}

// Fail disconnects the device.
func (d *Sim) Fail() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing = true
}

// FailReads makes reads fail while the device stays present.
func (d *Sim) FailReads() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failReads = true
}

// Heal reconnects the device.
func (d *Sim) Heal() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing = false
	d.failReads = false
}

func (d *Sim) Configure() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configures++
	if d.failing {
		return ErrSimulated
	}
	return nil
}

func (d *Sim) Probe() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.probes++
	if d.failing {
		return ErrSimulated
	}
	return nil
}

func (d *Sim) Read() (sensor.Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads++
	if d.failing || d.failReads {
		return sensor.Reading{}, ErrSimulated
	}
	return d.value, nil
}

// SimDefaults are plausible room values for each channel kind.
func SimDefaults(kind sensor.Kind) sensor.Reading {
	r := sensor.NewReading()
	switch kind {
	case sensor.DryTempProbe:
		r.Temperature = 23.45
	case sensor.WetTempProbe:
		r.Temperature = 22.10
	case sensor.EnvironmentCombo:
		r.Temperature = 21.8
		r.Humidity = 48.25
		r.Pressure = 1013.2
	case sensor.CO2Sensor:
		r.CO2 = 612
		r.Temperature = 22.4
		r.Humidity = 45.1
	case sensor.DistanceSensor:
		r.Distance = 842
		r.Ambient = 31
		r.Signal = 4120
	}
	return r
}
