package driver

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/FabianPetersen/cantelemetry/sensor"
	"github.com/FabianPetersen/cantelemetry/sensor/transport"
)

// regDevice is a register-file device: the first written byte selects the
// register, further written bytes are stored, reads auto-increment.
type regDevice struct {
	addr   uint16
	regs   [256]byte
	writes [][]byte
	err    error
}

func (d *regDevice) Name() string { return "fake-i2c" }

func (d *regDevice) Tx(addr uint16, w, r []byte) error {
	if d.err != nil {
		return d.err
	}
	if addr != d.addr {
		return transport.ErrNack
	}
	if len(w) == 0 {
		return errors.New("register read without pointer")
	}
	ptr := int(w[0])
	if len(w) > 1 {
		d.writes = append(d.writes, append([]byte(nil), w...))
		copy(d.regs[ptr:], w[1:])
	}
	copy(r, d.regs[ptr:])
	return nil
}

func noSleep(time.Duration) {}

func near(got, want, tol float64) bool {
	return math.Abs(got-want) <= tol
}

func TestCRC8(t *testing.T) {
	if got := crc8([]byte{0xBE, 0xEF}); got != 0x92 {
		t.Fatalf("crc8(BEEF) = %02X, want 92", got)
	}
}

func newBME280Device() *regDevice {
	d := &regDevice{addr: 0x76}
	d.regs[bme280RegChipID] = bme280ChipID

	words := []int{27504, 26435, -1000, 36477, -10685, 3024, 2855, 140, -7, 15500, -14600, 6000}
	for i, w := range words {
		binary.LittleEndian.PutUint16(d.regs[0x88+2*i:], uint16(int16(w)))
	}
	d.regs[0xA1] = 75 // H1
	binary.LittleEndian.PutUint16(d.regs[0xE1:], 362)
	d.regs[0xE3] = 0
	// H4 = 313, H5 = 50
	d.regs[0xE4] = 313 >> 4
	d.regs[0xE5] = 313&0x0F | (50&0x0F)<<4
	d.regs[0xE6] = 50 >> 4
	d.regs[0xE7] = 30

	// adcP = 415148, adcT = 519888, adcH = 30000
	copy(d.regs[0xF7:], []byte{0x65, 0x5A, 0xC0, 0x7E, 0xED, 0x00, 0x75, 0x30})
	return d
}

func TestBME280(t *testing.T) {
	dev := newBME280Device()
	d := NewBME280(dev, 0)
	d.sleep = noSleep

	if err := d.Configure(); err != nil {
		t.Fatal(err)
	}
	if d.calib.h4 != 313 || d.calib.h5 != 50 || d.calib.t3 != -1000 {
		t.Fatalf("calibration %+v", d.calib)
	}
	if got := dev.regs[bme280RegCtrlMeas]; got != bme280CtrlMeas {
		t.Fatalf("ctrl_meas = %02X", got)
	}

	r, err := d.Read()
	if err != nil {
		t.Fatal(err)
	}
	if !near(r.Temperature, 25.08, 0.01) {
		t.Errorf("temperature = %v", r.Temperature)
	}
	if !near(r.Pressure, 1006.53, 0.01) {
		t.Errorf("pressure = %v", r.Pressure)
	}
	if !near(r.Humidity, 55.0, 0.01) {
		t.Errorf("humidity = %v", r.Humidity)
	}
	if !math.IsNaN(r.CO2) {
		t.Errorf("co2 = %v, want NaN", r.CO2)
	}
}

func TestBME280SkippedHumidity(t *testing.T) {
	dev := newBME280Device()
	d := NewBME280(dev, 0)
	d.sleep = noSleep
	if err := d.Configure(); err != nil {
		t.Fatal(err)
	}
	// A reset device reports humidity as skipped until reconfigured.
	dev.regs[bme280RegData+6] = 0x80
	dev.regs[bme280RegData+7] = 0x00

	r, err := d.Read()
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(r.Humidity) {
		t.Fatalf("humidity = %v, want NaN", r.Humidity)
	}
	if !near(r.Temperature, 25.08, 0.01) {
		t.Fatalf("temperature = %v", r.Temperature)
	}
}

func TestBME280WrongChip(t *testing.T) {
	dev := newBME280Device()
	dev.regs[bme280RegChipID] = 0x58 // BMP280
	d := NewBME280(dev, 0)

	var ce ChipIDError
	if err := d.Probe(); !errors.As(err, &ce) || ce.Got != 0x58 {
		t.Fatalf("Probe = %v", err)
	}
}

func TestBME280Absent(t *testing.T) {
	d := NewBME280(&regDevice{addr: 0x77}, 0)
	if err := d.Configure(); !errors.Is(err, transport.ErrNack) {
		t.Fatalf("Configure = %v", err)
	}
}

// scd4xDevice answers the commands of a SCD4x.
type scd4xDevice struct {
	cmd      uint16
	ready    bool
	started  bool
	corrupt  bool
	commands []uint16
}

func (d *scd4xDevice) Name() string { return "fake-i2c" }

func (d *scd4xDevice) words(ws ...uint16) []byte {
	var out []byte
	for _, w := range ws {
		b := []byte{byte(w >> 8), byte(w)}
		crc := crc8(b)
		if d.corrupt {
			crc++
		}
		out = append(out, b[0], b[1], crc)
	}
	return out
}

func (d *scd4xDevice) Tx(addr uint16, w, r []byte) error {
	if addr != scd4xDefaultAddress {
		return transport.ErrNack
	}
	if len(w) == 2 {
		cmd := binary.BigEndian.Uint16(w)
		d.commands = append(d.commands, cmd)
		if cmd == scd4xGetSerial && d.started {
			return transport.ErrNack
		}
		d.cmd = cmd
		switch d.cmd {
		case scd4xStartPeriodic:
			d.started = true
		case scd4xStopPeriodic:
			d.started = false
		}
	}
	if len(r) == 0 {
		return nil
	}
	var resp []byte
	switch d.cmd {
	case scd4xGetSerial:
		resp = d.words(0xF896, 0x9F07, 0x3BB5)
	case scd4xDataReady:
		if d.ready {
			resp = d.words(0x8006)
		} else {
			resp = d.words(0x8000)
		}
	case scd4xReadMeasure:
		resp = d.words(0x01F4, 0x6667, 0x5EB9)
	default:
		return errors.New("unexpected read")
	}
	copy(r, resp)
	return nil
}

func TestSCD4x(t *testing.T) {
	dev := &scd4xDevice{}
	d := NewSCD4x(dev, 0)
	d.sleep = noSleep

	if err := d.Configure(); err != nil {
		t.Fatal(err)
	}
	if !dev.started || d.Serial != 0xF8969F073BB5 {
		t.Fatalf("started=%v serial=%X", dev.started, d.Serial)
	}

	// No measurement yet: every quantity absent, not an error.
	r, err := d.Read()
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(r.CO2) {
		t.Fatalf("co2 = %v before first measurement", r.CO2)
	}

	dev.ready = true
	r, err = d.Read()
	if err != nil {
		t.Fatal(err)
	}
	if r.CO2 != 500 || !near(r.Temperature, 25.0, 0.01) || !near(r.Humidity, 37.0, 0.01) {
		t.Fatalf("reading %+v", r)
	}

	// Between measurements the last one is repeated.
	dev.ready = false
	again, err := d.Read()
	if err != nil || again.CO2 != 500 {
		t.Fatalf("repeat = %+v, %v", again, err)
	}
}

func TestSCD4xConfigureIdle(t *testing.T) {
	dev := &scd4xDevice{}
	d := NewSCD4x(dev, 0)
	var slept time.Duration
	d.sleep = func(d time.Duration) { slept += d }

	if err := d.Configure(); err != nil {
		t.Fatal(err)
	}
	for _, cmd := range dev.commands {
		if cmd == scd4xStopPeriodic {
			t.Fatal("idle sensor was stopped")
		}
	}
	if slept >= scd4xStopDelay {
		t.Fatalf("idle configure slept %s", slept)
	}
}

func TestSCD4xConfigureWhileMeasuring(t *testing.T) {
	dev := &scd4xDevice{started: true}
	d := NewSCD4x(dev, 0)
	var slept time.Duration
	d.sleep = func(d time.Duration) { slept += d }

	if err := d.Configure(); err != nil {
		t.Fatal(err)
	}
	want := []uint16{scd4xGetSerial, scd4xStopPeriodic, scd4xGetSerial, scd4xStartPeriodic}
	if !reflect.DeepEqual(dev.commands, want) {
		t.Fatalf("commands %04X, want %04X", dev.commands, want)
	}
	if slept < scd4xStopDelay || d.Serial != 0xF8969F073BB5 || !dev.started {
		t.Fatalf("slept=%s serial=%X started=%v", slept, d.Serial, dev.started)
	}
}

func TestSCD4xCRC(t *testing.T) {
	dev := &scd4xDevice{corrupt: true}
	d := NewSCD4x(dev, 0)
	d.sleep = noSleep

	var ce CRCError
	if err := d.Configure(); !errors.As(err, &ce) {
		t.Fatalf("Configure = %v, want CRCError", err)
	}
}

func newVL53Device(mm uint16) *regDevice {
	d := &regDevice{addr: vl53DefaultAddress}
	d.regs[vl53RegModelID] = vl53ModelID
	d.regs[vl53RegInterruptStatus] = 0x04
	binary.BigEndian.PutUint16(d.regs[vl53RegResultRangeStatus+6:], 4120)
	binary.BigEndian.PutUint16(d.regs[vl53RegResultRangeStatus+8:], 31)
	binary.BigEndian.PutUint16(d.regs[vl53RegResultRangeStatus+10:], mm)
	return d
}

func TestVL53L0X(t *testing.T) {
	dev := newVL53Device(842)
	d := NewVL53L0X(dev, 0)
	d.sleep = noSleep

	if err := d.Configure(); err != nil {
		t.Fatal(err)
	}
	if dev.regs[vl53RegVHVConfigPadSCL]&0x01 == 0 {
		t.Fatal("2V8 mode not set")
	}
	r, err := d.Read()
	if err != nil {
		t.Fatal(err)
	}
	if r.Distance != 842 || r.Ambient != 31 || r.Signal != 4120 {
		t.Fatalf("reading %+v", r)
	}
}

func TestVL53L0XOutOfRange(t *testing.T) {
	d := NewVL53L0X(newVL53Device(8190), 0)
	d.sleep = noSleep

	r, err := d.Read()
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsNaN(r.Distance) {
		t.Fatalf("distance = %v, want NaN", r.Distance)
	}
	if r.Signal != 4120 {
		t.Fatalf("signal = %v", r.Signal)
	}
}

func TestVL53L0XTimeout(t *testing.T) {
	dev := newVL53Device(100)
	dev.regs[vl53RegInterruptStatus] = 0
	d := NewVL53L0X(dev, 0)
	d.sleep = noSleep
	d.Timeout = 5 * time.Millisecond

	if _, err := d.Read(); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Read = %v", err)
	}
}

func writeW1(t *testing.T, root, dev, content string) {
	t.Helper()
	dir := filepath.Join(root, dev)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "w1_slave"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDS18B20(t *testing.T) {
	root := t.TempDir()
	d := &DS18B20{Root: root, Device: "28-0316a2794dff"}

	if err := d.Probe(); err == nil {
		t.Fatal("probe of missing slave succeeded")
	}

	writeW1(t, root, d.Device, "72 01 4b 46 7f ff 0e 10 57 : crc=57 YES\n72 01 4b 46 7f ff 0e 10 57 t=23125\n")
	if err := d.Configure(); err != nil {
		t.Fatal(err)
	}
	r, err := d.Read()
	if err != nil {
		t.Fatal(err)
	}
	if r.Temperature != 23.125 {
		t.Fatalf("temperature = %v", r.Temperature)
	}

	writeW1(t, root, d.Device, "72 01 4b 46 7f ff 0e 10 57 : crc=57 YES\n72 01 4b 46 7f ff 0e 10 57 t=-2500\n")
	if r, err := d.Read(); err != nil || r.Temperature != -2.5 {
		t.Fatalf("negative = %v, %v", r.Temperature, err)
	}
}

func TestDS18B20Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"crc", "72 01 4b 46 7f ff 0e 10 57 : crc=57 NO\n72 01 4b 46 7f ff 0e 10 57 t=23125\n", errW1CRC},
		{"power on", "50 05 4b 46 7f ff 0c 10 1c : crc=1c YES\n50 05 4b 46 7f ff 0c 10 1c t=85000\n", ErrImplausible},
		{"disconnected", "00 00 00 00 00 00 00 00 00 : crc=00 YES\n00 00 00 00 00 00 00 00 00 t=-127000\n", ErrImplausible},
	}
	for _, tt := range tests {
		_, err := parseW1Slave([]byte(tt.content))
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}
	if _, err := parseW1Slave([]byte("garbage")); err == nil {
		t.Error("expected error for short file")
	}
}

func TestSim(t *testing.T) {
	var _ sensor.Driver = (*Sim)(nil)
	var _ sensor.Driver = (*BME280)(nil)
	var _ sensor.Driver = (*SCD4x)(nil)
	var _ sensor.Driver = (*VL53L0X)(nil)
	var _ sensor.Driver = (*DS18B20)(nil)

	d := NewSim(SimDefaults(sensor.CO2Sensor))
	if r, err := d.Read(); err != nil || r.CO2 != 612 {
		t.Fatalf("Read = %+v, %v", r, err)
	}

	d.FailReads()
	if err := d.Probe(); err != nil {
		t.Fatalf("Probe with failing reads = %v", err)
	}
	if _, err := d.Read(); !errors.Is(err, ErrSimulated) {
		t.Fatalf("Read = %v", err)
	}

	d.Fail()
	if err := d.Configure(); !errors.Is(err, ErrSimulated) {
		t.Fatalf("Configure = %v", err)
	}
	d.Heal()
	if err := d.Configure(); err != nil {
		t.Fatal(err)
	}
	if c, p, r := d.Calls(); c != 2 || p != 1 || r != 2 {
		t.Fatalf("calls = %d %d %d", c, p, r)
	}
}
