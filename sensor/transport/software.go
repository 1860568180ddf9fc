package transport

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Line is one open-drain signal of a bit-banged bus.
type Line interface {
	// Release lets the pull-up drive the line high.
	Release() error
	// Low drives the line low.
	Low() error
	// Read samples the line, true is high.
	Read() bool
}

// GPIOLine is a Line on a periph GPIO pin with the internal pull-up enabled.
type GPIOLine struct {
	Pin gpio.PinIO
}

func (l GPIOLine) Release() error {
	return l.Pin.In(gpio.PullUp, gpio.NoEdge)
}

func (l GPIOLine) Low() error {
	return l.Pin.Out(gpio.Low)
}

func (l GPIOLine) Read() bool {
	return l.Pin.Read() == gpio.High
}

// DefaultClock is the software bus clock in Hz.
const DefaultClock = 100000

// Software is an I2C master bit-banged on two lines.
type Software struct {
	name    string
	sda     Line
	scl     Line
	half    time.Duration
	stretch time.Duration
}

// NewSoftware returns a software bus clocked at hz (DefaultClock if zero).
func NewSoftware(name string, sda, scl Line, hz int) *Software {
	if hz <= 0 {
		hz = DefaultClock
	}
	return &Software{
		name:    name,
		sda:     sda,
		scl:     scl,
		half:    time.Second / time.Duration(2*hz),
		stretch: time.Millisecond,
	}
}

func (s *Software) Name() string {
	return s.name
}

func (s *Software) Tx(addr uint16, w, r []byte) (err error) {
	defer func() {
		if stopErr := s.stop(); err == nil {
			err = stopErr
		}
	}()

	// 7-bit address followed by the read/write bit.
	header := byte(addr << 1)
	if len(w) > 0 {
		if err := s.start(); err != nil {
			return err
		}
		if err := s.writeByte(header); err != nil {
			return err
		}
		for _, b := range w {
			if err := s.writeByte(b); err != nil {
				return err
			}
		}
	}
	if len(r) > 0 {
		// Repeated start when a write preceded.
		if err := s.start(); err != nil {
			return err
		}
		if err := s.writeByte(header | 1); err != nil {
			return err
		}
		for i := range r {
			b, err := s.readByte(i == len(r)-1)
			if err != nil {
				return err
			}
			r[i] = b
		}
	}
	return nil
}

func (s *Software) delay() {
	time.Sleep(s.half)
}

// sclHigh releases the clock and waits for a stretching device to let go.
func (s *Software) sclHigh() error {
	if err := s.scl.Release(); err != nil {
		return err
	}
	deadline := time.Now().Add(s.stretch)
	for !s.scl.Read() {
		if time.Now().After(deadline) {
			return ErrBusStuck
		}
	}
	return nil
}

func (s *Software) start() error {
	if err := s.sda.Release(); err != nil {
		return err
	}
	if err := s.sclHigh(); err != nil {
		return err
	}
	s.delay()
	if err := s.sda.Low(); err != nil {
		return err
	}
	s.delay()
	return s.scl.Low()
}

func (s *Software) stop() error {
	if err := s.sda.Low(); err != nil {
		return err
	}
	s.delay()
	if err := s.sclHigh(); err != nil {
		return err
	}
	s.delay()
	return s.sda.Release()
}

func (s *Software) writeBit(bit bool) error {
	var err error
	if bit {
		err = s.sda.Release()
	} else {
		err = s.sda.Low()
	}
	if err != nil {
		return err
	}
	s.delay()
	if err := s.sclHigh(); err != nil {
		return err
	}
	s.delay()
	return s.scl.Low()
}

func (s *Software) readBit() (bool, error) {
	if err := s.sda.Release(); err != nil {
		return false, err
	}
	s.delay()
	if err := s.sclHigh(); err != nil {
		return false, err
	}
	bit := s.sda.Read()
	s.delay()
	return bit, s.scl.Low()
}

func (s *Software) writeByte(b byte) error {
	for i := 7; i >= 0; i-- {
		if err := s.writeBit(b&(1<<uint(i)) != 0); err != nil {
			return err
		}
	}
	nack, err := s.readBit()
	if err != nil {
		return err
	}
	if nack {
		return ErrNack
	}
	return nil
}

func (s *Software) readByte(last bool) (byte, error) {
	var b byte
	for i := 0; i < 8; i++ {
		bit, err := s.readBit()
		if err != nil {
			return 0, err
		}
		b <<= 1
		if bit {
			b |= 1
		}
	}
	// ACK every byte but the last.
	return b, s.writeBit(last)
}
