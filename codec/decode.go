package codec

import (
	"encoding/binary"
	"errors"
	"time"
)

// Value is one decoded field.
type Value struct {
	V     float64
	Valid bool
}

func decodeField(f Field, b []byte) Value {
	v, ok := f.Decode(binary.BigEndian.Uint16(b))
	return Value{V: v, Valid: ok}
}

type DualTemperatureReading struct {
	Dry, Wet Value
	Counter  uint16
}

func DecodeDualTemperature(p Payload) DualTemperatureReading {
	return DualTemperatureReading{
		Dry:     decodeField(Temperature, p[0:2]),
		Wet:     decodeField(Temperature, p[2:4]),
		Counter: binary.LittleEndian.Uint16(p[4:6]),
	}
}

type EnvironmentReading struct {
	Temperature, Humidity, Pressure Value
}

func DecodeEnvironment(p Payload) EnvironmentReading {
	return EnvironmentReading{
		Temperature: decodeField(Temperature, p[0:2]),
		Humidity:    decodeField(Humidity, p[2:4]),
		Pressure:    decodeField(Pressure, p[4:6]),
	}
}

type CO2Reading struct {
	PPM, Temperature, Humidity Value
}

func DecodeCO2(p Payload) CO2Reading {
	return CO2Reading{
		PPM:         decodeField(PPM, p[0:2]),
		Temperature: decodeField(Temperature, p[2:4]),
		Humidity:    decodeField(Humidity, p[4:6]),
	}
}

type DistanceReading struct {
	Millimetres, Ambient, Signal Value
}

func DecodeDistance(p Payload) DistanceReading {
	return DistanceReading{
		Millimetres: decodeField(Millimetres, p[0:2]),
		Ambient:     decodeField(Raw, p[2:4]),
		Signal:      decodeField(Raw, p[4:6]),
	}
}

var ErrBadHeartbeat = errors.New("codec: heartbeat signature mismatch")

// DecodeHeartbeat returns the uptime carried by a heartbeat payload.
func DecodeHeartbeat(p Payload) (time.Duration, error) {
	if p[0] != HeartbeatMagic0 || p[1] != HeartbeatMagic1 {
		return 0, ErrBadHeartbeat
	}
	return time.Duration(binary.BigEndian.Uint32(p[2:6])) * time.Millisecond, nil
}
