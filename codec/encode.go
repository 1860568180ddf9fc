package codec

import (
	"encoding/binary"
	"time"
)

// Payload is the fixed 8-byte body of every telemetry frame.
type Payload = [8]byte

// Heartbeat signature bytes.
const (
	HeartbeatMagic0 byte = 0xAA
	HeartbeatMagic1 byte = 0x55
)

// DualTemperature encodes the dry/wet probe pair.
//
//	[0:2) dry °C x100 int16
//	[2:4) wet °C x100 int16
//	[4:6) message counter, low byte first
//	[6:8) reserved
func DualTemperature(dry, wet float64, counter uint16) Payload {
	var p Payload
	binary.BigEndian.PutUint16(p[0:2], Temperature.Encode(dry))
	binary.BigEndian.PutUint16(p[2:4], Temperature.Encode(wet))
	binary.LittleEndian.PutUint16(p[4:6], counter)
	return p
}

// Environment encodes a combined temperature/humidity/pressure reading.
//
//	[0:2) °C x100 int16
//	[2:4) %RH x100 uint16
//	[4:6) hPa x10 uint16
//	[6:8) reserved
func Environment(temp, humidity, pressure float64) Payload {
	var p Payload
	binary.BigEndian.PutUint16(p[0:2], Temperature.Encode(temp))
	binary.BigEndian.PutUint16(p[2:4], Humidity.Encode(humidity))
	binary.BigEndian.PutUint16(p[4:6], Pressure.Encode(pressure))
	return p
}

// CO2 encodes a CO2 sensor reading.
//
//	[0:2) ppm uint16
//	[2:4) °C x100 int16
//	[4:6) %RH x100 uint16
//	[6:8) reserved
func CO2(ppm, temp, humidity float64) Payload {
	var p Payload
	binary.BigEndian.PutUint16(p[0:2], PPM.Encode(ppm))
	binary.BigEndian.PutUint16(p[2:4], Temperature.Encode(temp))
	binary.BigEndian.PutUint16(p[4:6], Humidity.Encode(humidity))
	return p
}

// Distance encodes a time-of-flight reading.
//
//	[0:2) mm uint16
//	[2:4) ambient raw uint16
//	[4:6) signal raw uint16
//	[6:8) reserved
func Distance(mm, ambient, signal float64) Payload {
	var p Payload
	binary.BigEndian.PutUint16(p[0:2], Millimetres.Encode(mm))
	binary.BigEndian.PutUint16(p[2:4], Raw.Encode(ambient))
	binary.BigEndian.PutUint16(p[4:6], Raw.Encode(signal))
	return p
}

// Heartbeat encodes the liveness frame. Uptime wraps after 2^32 ms.
//
//	[0]   0xAA
//	[1]   0x55
//	[2:6) uptime ms uint32
//	[6:8) reserved
func Heartbeat(uptime time.Duration) Payload {
	var p Payload
	p[0] = HeartbeatMagic0
	p[1] = HeartbeatMagic1
	binary.BigEndian.PutUint32(p[2:6], uint32(uptime.Milliseconds()))
	return p
}
