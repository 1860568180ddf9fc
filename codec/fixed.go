package codec

import "math"

const (
	// SentinelSigned marks an invalid signed 16-bit field.
	SentinelSigned uint16 = 0x7FFF
	// SentinelUnsigned marks an invalid unsigned 16-bit field.
	SentinelUnsigned uint16 = 0xFFFF
)

// Field describes one fixed-point field of a payload.
// Signed fields clamp to [-32768, 32766], unsigned fields to [0, 65534]; the
// top value of each range is reserved for the sentinel.
type Field struct {
	Scale  float64
	Signed bool
}

var (
	Temperature = Field{Scale: 100, Signed: true} // °C
	Humidity    = Field{Scale: 100}               // %RH
	Pressure    = Field{Scale: 10}                // hPa
	PPM         = Field{Scale: 1}                 // CO2 ppm
	Millimetres = Field{Scale: 1}                 // distance
	Raw         = Field{Scale: 1}                 // unscaled counts
)

// Sentinel returns the reserved bit pattern of the field.
func (f Field) Sentinel() uint16 {
	if f.Signed {
		return SentinelSigned
	}
	return SentinelUnsigned
}

func (f Field) bounds() (lo, hi float64) {
	if f.Signed {
		return math.MinInt16, math.MaxInt16 - 1
	}
	return 0, math.MaxUint16 - 1
}

// Encode scales v, rounds half away from zero and clamps it into the
// representable range. NaN becomes the sentinel.
func (f Field) Encode(v float64) uint16 {
	if math.IsNaN(v) {
		return f.Sentinel()
	}
	lo, hi := f.bounds()
	scaled := math.Round(v * f.Scale)
	if scaled < lo {
		scaled = lo
	}
	if scaled > hi {
		scaled = hi
	}
	if f.Signed {
		return uint16(int16(scaled))
	}
	return uint16(scaled)
}

// Decode returns the physical value of raw, reporting false for the sentinel.
func (f Field) Decode(raw uint16) (float64, bool) {
	if raw == f.Sentinel() {
		return math.NaN(), false
	}
	if f.Signed {
		return float64(int16(raw)) / f.Scale, true
	}
	return float64(raw) / f.Scale, true
}

// Step is the quantisation step of the field.
func (f Field) Step() float64 {
	return 1 / f.Scale
}
