package transport

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
)

// Hardware is a kernel I2C bus. host.Init must have been called.
type Hardware struct {
	name string
	bus  i2c.BusCloser
}

// OpenHardware opens the I2C bus registered as name ("" opens the first).
func OpenHardware(name string) (*Hardware, error) {
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("transport: open i2c %q: %w", name, err)
	}
	if name == "" {
		name = b.String()
	}
	return &Hardware{name: name, bus: b}, nil
}

func (h *Hardware) Name() string {
	return h.name
}

func (h *Hardware) Tx(addr uint16, w, r []byte) error {
	if err := h.bus.Tx(addr, w, r); err != nil {
		if isNack(err) {
			return fmt.Errorf("%w: %v", ErrNack, err)
		}
		return err
	}
	return nil
}

func (h *Hardware) Close() error {
	return h.bus.Close()
}
