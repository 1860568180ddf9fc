package driver

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/FabianPetersen/cantelemetry/sensor"
)

var errW1CRC = errors.New("w1 crc mismatch")

// DefaultW1Path is where the kernel w1 bus master exposes its slaves.
const DefaultW1Path = "/sys/bus/w1/devices"

// Markers a DS18B20 reports when it lost power or its data line.
const (
	ds18b20PowerOn      = 85000
	ds18b20Disconnected = -127000
)

// DS18B20 is a 1-Wire temperature probe read through the w1_therm driver.
type DS18B20 struct {
	// Root defaults to DefaultW1Path.
	Root string
	// Device is the slave id, e.g. "28-0316a2794dff".
	Device string
}

func (d *DS18B20) slave() string {
	root := d.Root
	if root == "" {
		root = DefaultW1Path
	}
	return filepath.Join(root, d.Device, "w1_slave")
}

// Configure verifies the probe answers with a valid conversion.
func (d *DS18B20) Configure() error {
	_, err := d.Read()
	return err
}

// Probe checks the slave is still enumerated on the bus.
func (d *DS18B20) Probe() error {
	_, err := os.Stat(d.slave())
	return err
}

func (d *DS18B20) Read() (sensor.Reading, error) {
	b, err := os.ReadFile(d.slave())
	if err != nil {
		return sensor.Reading{}, err
	}
	milli, err := parseW1Slave(b)
	if err != nil {
		return sensor.Reading{}, fmt.Errorf("ds18b20 %s: %w", d.Device, err)
	}

	r := sensor.NewReading()
	r.Temperature = float64(milli) / 1000
	return r, nil
}

// parseW1Slave returns the temperature in m°C from a w1_slave file:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseW1Slave(b []byte) (int, error) {
	sc := bufio.NewScanner(bytes.NewReader(b))
	var lines []string
	for sc.Scan() {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}
	if len(lines) < 2 {
		return 0, fmt.Errorf("short w1_slave: %q", b)
	}
	if !strings.HasSuffix(lines[0], "YES") {
		return 0, errW1CRC
	}

	i := strings.LastIndex(lines[1], "t=")
	if i < 0 {
		return 0, fmt.Errorf("no temperature in %q", lines[1])
	}
	milli, err := strconv.Atoi(lines[1][i+2:])
	if err != nil {
		return 0, err
	}
	switch {
	case milli == ds18b20PowerOn, milli == ds18b20Disconnected:
		return 0, fmt.Errorf("%w: %.1f °C", ErrImplausible, float64(milli)/1000)
	case math.Abs(float64(milli)) > 125000:
		return 0, fmt.Errorf("%w: %.1f °C", ErrImplausible, float64(milli)/1000)
	}
	return milli, nil
}
