package driver

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/FabianPetersen/cantelemetry/sensor"
	"github.com/FabianPetersen/cantelemetry/sensor/transport"
)

// VL53L0X registers.
const (
	vl53RegSysRangeStart     = 0x00
	vl53RegInterruptClear    = 0x0B
	vl53RegInterruptStatus   = 0x13
	vl53RegResultRangeStatus = 0x14
	vl53RegI2CMode           = 0x88
	vl53RegVHVConfigPadSCL   = 0x89
	vl53RegModelID           = 0xC0

	vl53ModelID        = 0xEE
	vl53DefaultAddress = 0x29

	// vl53OutOfRange and above mean no target within range.
	vl53OutOfRange = 8190
)

// VL53L0X is a time-of-flight distance sensor used in single shot mode.
type VL53L0X struct {
	Bus  transport.Transport
	Addr uint16
	// Timeout bounds the wait for one ranging.
	Timeout time.Duration

	sleep func(time.Duration)
}

// NewVL53L0X returns a driver at addr (0x29 if zero).
func NewVL53L0X(bus transport.Transport, addr uint16) *VL53L0X {
	if addr == 0 {
		addr = vl53DefaultAddress
	}
	return &VL53L0X{Bus: bus, Addr: addr, Timeout: 50 * time.Millisecond, sleep: time.Sleep}
}

func (d *VL53L0X) reg(r byte, n int) ([]byte, error) {
	b := make([]byte, n)
	if err := d.Bus.Tx(d.Addr, []byte{r}, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (d *VL53L0X) write(r, v byte) error {
	return d.Bus.Tx(d.Addr, []byte{r, v}, nil)
}

func (d *VL53L0X) Probe() error {
	id, err := d.reg(vl53RegModelID, 1)
	if err != nil {
		return err
	}
	if id[0] != vl53ModelID {
		return ChipIDError{Chip: "vl53l0x", Want: vl53ModelID, Got: id[0]}
	}
	return nil
}

// Configure verifies the model and sets 2V8 I/O and standard I2C mode.
func (d *VL53L0X) Configure() error {
	if err := d.Probe(); err != nil {
		return err
	}
	pad, err := d.reg(vl53RegVHVConfigPadSCL, 1)
	if err != nil {
		return err
	}
	if err := d.write(vl53RegVHVConfigPadSCL, pad[0]|0x01); err != nil {
		return err
	}
	if err := d.write(vl53RegI2CMode, 0x00); err != nil {
		return err
	}
	return d.write(vl53RegInterruptClear, 0x01)
}

// Read performs one ranging. A target out of range is reported as an
// absent distance, not as a failure.
func (d *VL53L0X) Read() (sensor.Reading, error) {
	if err := d.write(vl53RegSysRangeStart, 0x01); err != nil {
		return sensor.Reading{}, err
	}

	step := time.Millisecond
	for waited := time.Duration(0); ; waited += step {
		st, err := d.reg(vl53RegInterruptStatus, 1)
		if err != nil {
			return sensor.Reading{}, err
		}
		if st[0]&0x07 != 0 {
			break
		}
		if waited >= d.Timeout {
			return sensor.Reading{}, fmt.Errorf("vl53l0x: %w after %s", ErrNotReady, d.Timeout)
		}
		d.sleep(step)
	}

	b, err := d.reg(vl53RegResultRangeStatus, 12)
	if err != nil {
		return sensor.Reading{}, err
	}
	if err := d.write(vl53RegInterruptClear, 0x01); err != nil {
		return sensor.Reading{}, err
	}

	r := sensor.NewReading()
	r.Signal = float64(binary.BigEndian.Uint16(b[6:8]))
	r.Ambient = float64(binary.BigEndian.Uint16(b[8:10]))
	if mm := binary.BigEndian.Uint16(b[10:12]); mm < vl53OutOfRange {
		r.Distance = float64(mm)
	}
	return r, nil
}
