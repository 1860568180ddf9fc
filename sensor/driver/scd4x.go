package driver

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/FabianPetersen/cantelemetry/sensor"
	"github.com/FabianPetersen/cantelemetry/sensor/transport"
)

// SCD4x commands.
const (
	scd4xStartPeriodic  = 0x21B1
	scd4xReadMeasure    = 0xEC05
	scd4xStopPeriodic   = 0x3F86
	scd4xGetSerial      = 0x3682
	scd4xDataReady      = 0xE4B8
	scd4xDefaultAddress = 0x62
)

// SCD4x is a photoacoustic CO2 sensor in periodic measurement mode. It
// also reports temperature and humidity.
type SCD4x struct {
	Bus  transport.Transport
	Addr uint16

	// Serial is set by Configure.
	Serial uint64

	last  sensor.Reading
	has   bool
	sleep func(time.Duration)
}

// NewSCD4x returns a driver at addr (0x62 if zero).
func NewSCD4x(bus transport.Transport, addr uint16) *SCD4x {
	if addr == 0 {
		addr = scd4xDefaultAddress
	}
	return &SCD4x{Bus: bus, Addr: addr, sleep: time.Sleep}
}

func (d *SCD4x) command(cmd uint16) error {
	var w [2]byte
	binary.BigEndian.PutUint16(w[:], cmd)
	return d.Bus.Tx(d.Addr, w[:], nil)
}

// read issues cmd, waits for execution and reads n CRC protected words.
func (d *SCD4x) read(cmd uint16, n int, exec time.Duration) ([]uint16, error) {
	if err := d.command(cmd); err != nil {
		return nil, err
	}
	d.sleep(exec)

	buf := make([]byte, 3*n)
	if err := d.Bus.Tx(d.Addr, nil, buf); err != nil {
		return nil, err
	}
	words := make([]uint16, n)
	for i := range words {
		chunk := buf[3*i : 3*i+3]
		if got := crc8(chunk[:2]); got != chunk[2] {
			return nil, CRCError{Chip: "scd4x", Want: got, Got: chunk[2]}
		}
		words[i] = binary.BigEndian.Uint16(chunk[:2])
	}
	return words, nil
}

// scd4xStopDelay is the execution time of stop_periodic_measurement.
const scd4xStopDelay = 500 * time.Millisecond

// Configure checks the serial number and starts periodic measurement. A
// sensor that is still measuring refuses the serial number command; it is
// stopped first, which holds the caller for scd4xStopDelay.
func (d *SCD4x) Configure() error {
	serial, err := d.read(scd4xGetSerial, 3, time.Millisecond)
	if errors.Is(err, transport.ErrNack) {
		if err := d.command(scd4xStopPeriodic); err != nil {
			return err
		}
		d.sleep(scd4xStopDelay)
		serial, err = d.read(scd4xGetSerial, 3, time.Millisecond)
	}
	if err != nil {
		return err
	}
	d.Serial = uint64(serial[0])<<32 | uint64(serial[1])<<16 | uint64(serial[2])

	d.has = false
	return d.command(scd4xStartPeriodic)
}

// Probe asks for the data ready status, one of the few commands accepted
// during periodic measurement.
func (d *SCD4x) Probe() error {
	_, err := d.ready()
	return err
}

func (d *SCD4x) ready() (bool, error) {
	w, err := d.read(scd4xDataReady, 1, time.Millisecond)
	if err != nil {
		return false, err
	}
	return w[0]&0x07FF != 0, nil
}

// Read returns the latest measurement. Between measurements the previous one
// is repeated; before the first one every quantity is absent.
func (d *SCD4x) Read() (sensor.Reading, error) {
	ok, err := d.ready()
	if err != nil {
		return sensor.Reading{}, err
	}
	if !ok {
		if d.has {
			return d.last, nil
		}
		return sensor.NewReading(), nil
	}

	w, err := d.read(scd4xReadMeasure, 3, time.Millisecond)
	if err != nil {
		return sensor.Reading{}, err
	}
	r := sensor.NewReading()
	r.CO2 = float64(w[0])
	r.Temperature = -45 + 175*float64(w[1])/65535
	r.Humidity = 100 * float64(w[2]) / 65535
	d.last, d.has = r, true
	return r, nil
}
