package driver

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/FabianPetersen/cantelemetry/sensor"
	"github.com/FabianPetersen/cantelemetry/sensor/transport"
)

// BME280 registers.
const (
	bme280RegCalib00  = 0x88
	bme280RegChipID   = 0xD0
	bme280RegReset    = 0xE0
	bme280RegCalib26  = 0xE1
	bme280RegCtrlHum  = 0xF2
	bme280RegCtrlMeas = 0xF4
	bme280RegConfig   = 0xF5
	bme280RegData     = 0xF7

	bme280ChipID     = 0x60
	bme280ResetWord  = 0xB6
	bme280DefaultAdr = 0x76

	// Oversampling x1 for every quantity, normal mode, 1000 ms standby.
	bme280CtrlHum  = 0x01
	bme280CtrlMeas = 0x27
	bme280Config   = 0xA0

	// Values reported for a quantity whose measurement was skipped.
	bme280Skipped         = 0x80000
	bme280SkippedHumidity = 0x8000
)

type bme280Calib struct {
	t1         uint16
	t2, t3     int16
	p1         uint16
	p2, p3, p4 int16
	p5, p6, p7 int16
	p8, p9     int16
	h1         uint8
	h2         int16
	h3         uint8
	h4, h5     int16
	h6         int8
}

// BME280 is a temperature, humidity and pressure combo sensor.
type BME280 struct {
	Bus  transport.Transport
	Addr uint16

	calib bme280Calib
	sleep func(time.Duration)
}

// NewBME280 returns a driver at addr (0x76 if zero).
func NewBME280(bus transport.Transport, addr uint16) *BME280 {
	if addr == 0 {
		addr = bme280DefaultAdr
	}
	return &BME280{Bus: bus, Addr: addr, sleep: time.Sleep}
}

func (d *BME280) Probe() error {
	var id [1]byte
	if err := d.Bus.Tx(d.Addr, []byte{bme280RegChipID}, id[:]); err != nil {
		return err
	}
	if id[0] != bme280ChipID {
		return ChipIDError{Chip: "bme280", Want: bme280ChipID, Got: id[0]}
	}
	return nil
}

// Configure resets the device, loads its calibration and starts normal mode.
func (d *BME280) Configure() error {
	if err := d.Probe(); err != nil {
		return err
	}
	if err := d.write(bme280RegReset, bme280ResetWord); err != nil {
		return err
	}
	d.sleep(2 * time.Millisecond)

	var c1 [26]byte
	if err := d.Bus.Tx(d.Addr, []byte{bme280RegCalib00}, c1[:]); err != nil {
		return err
	}
	var c2 [7]byte
	if err := d.Bus.Tx(d.Addr, []byte{bme280RegCalib26}, c2[:]); err != nil {
		return err
	}
	d.calib = parseBME280Calib(c1, c2)

	// ctrl_hum only takes effect after a write to ctrl_meas.
	if err := d.write(bme280RegCtrlHum, bme280CtrlHum); err != nil {
		return err
	}
	if err := d.write(bme280RegConfig, bme280Config); err != nil {
		return err
	}
	return d.write(bme280RegCtrlMeas, bme280CtrlMeas)
}

func (d *BME280) write(reg, v byte) error {
	return d.Bus.Tx(d.Addr, []byte{reg, v}, nil)
}

func parseBME280Calib(c1 [26]byte, c2 [7]byte) bme280Calib {
	le := binary.LittleEndian
	s16 := func(b []byte) int16 { return int16(le.Uint16(b)) }
	return bme280Calib{
		t1: le.Uint16(c1[0:]),
		t2: s16(c1[2:]),
		t3: s16(c1[4:]),
		p1: le.Uint16(c1[6:]),
		p2: s16(c1[8:]),
		p3: s16(c1[10:]),
		p4: s16(c1[12:]),
		p5: s16(c1[14:]),
		p6: s16(c1[16:]),
		p7: s16(c1[18:]),
		p8: s16(c1[20:]),
		p9: s16(c1[22:]),
		h1: c1[25],
		h2: s16(c2[0:]),
		h3: c2[2],
		// 12-bit signed values sharing the nibbles of 0xE5.
		h4: int16(int8(c2[3]))<<4 | int16(c2[4]&0x0F),
		h5: int16(int8(c2[5]))<<4 | int16(c2[4]>>4),
		h6: int8(c2[6]),
	}
}

func (d *BME280) Read() (sensor.Reading, error) {
	var b [8]byte
	if err := d.Bus.Tx(d.Addr, []byte{bme280RegData}, b[:]); err != nil {
		return sensor.Reading{}, err
	}
	adcP := int32(b[0])<<12 | int32(b[1])<<4 | int32(b[2])>>4
	adcT := int32(b[3])<<12 | int32(b[4])<<4 | int32(b[5])>>4
	adcH := int32(b[6])<<8 | int32(b[7])
	if adcT == bme280Skipped {
		return sensor.Reading{}, fmt.Errorf("bme280: %w", ErrNotReady)
	}

	r := sensor.NewReading()
	var tFine float64
	r.Temperature, tFine = d.calib.temperature(float64(adcT))
	if adcP != bme280Skipped {
		r.Pressure = d.calib.pressure(float64(adcP), tFine) / 100
	}
	if adcH != bme280SkippedHumidity {
		r.Humidity = d.calib.humidity(float64(adcH), tFine)
	}
	return r, nil
}

// Compensation formulas in double precision from the BME280 datasheet.

func (c bme280Calib) temperature(adc float64) (float64, float64) {
	v1 := (adc/16384 - float64(c.t1)/1024) * float64(c.t2)
	d := adc/131072 - float64(c.t1)/8192
	v2 := d * d * float64(c.t3)
	tFine := v1 + v2
	return tFine / 5120, tFine
}

// pressure returns Pa.
func (c bme280Calib) pressure(adc, tFine float64) float64 {
	v1 := tFine/2 - 64000
	v2 := v1 * v1 * float64(c.p6) / 32768
	v2 += v1 * float64(c.p5) * 2
	v2 = v2/4 + float64(c.p4)*65536
	v1 = (float64(c.p3)*v1*v1/524288 + float64(c.p2)*v1) / 524288
	v1 = (1 + v1/32768) * float64(c.p1)
	if v1 == 0 {
		return 0
	}
	p := 1048576 - adc
	p = (p - v2/4096) * 6250 / v1
	v1 = float64(c.p9) * p * p / 2147483648
	v2 = p * float64(c.p8) / 32768
	return p + (v1+v2+float64(c.p7))/16
}

func (c bme280Calib) humidity(adc, tFine float64) float64 {
	h := tFine - 76800
	h = (adc - (float64(c.h4)*64 + float64(c.h5)/16384*h)) *
		(float64(c.h2) / 65536 * (1 + float64(c.h6)/67108864*h*(1+float64(c.h3)/67108864*h)))
	h *= 1 - float64(c.h1)*h/524288
	switch {
	case h > 100:
		return 100
	case h < 0:
		return 0
	}
	return h
}
