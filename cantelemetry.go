package cantelemetry

// SensorClass is the dense per-node offset of a frame class inside the node's
// identifier block.
type SensorClass uint8

const (
	ClassDualTemperature SensorClass = 0x01
	ClassEnvironment     SensorClass = 0x02
	ClassCO2             SensorClass = 0x03
	ClassDistance        SensorClass = 0x04
	ClassHeartbeat       SensorClass = 0x05
)

// Classes lists every class a node can emit, in identifier order.
var Classes = []SensorClass{
	ClassDualTemperature,
	ClassEnvironment,
	ClassCO2,
	ClassDistance,
	ClassHeartbeat,
}

func (c SensorClass) String() string {
	switch c {
	case ClassDualTemperature:
		return "dual_temperature"
	case ClassEnvironment:
		return "environment"
	case ClassCO2:
		return "co2"
	case ClassDistance:
		return "distance"
	case ClassHeartbeat:
		return "heartbeat"
	}
	return "unknown"
}

// ParseSensorClass returns the class for its configuration name.
func ParseSensorClass(name string) (SensorClass, bool) {
	for _, c := range Classes {
		if c.String() == name {
			return c, true
		}
	}
	return 0, false
}

const (
	// MinNodeID and MaxNodeID bound the node identities a bus may carry.
	MinNodeID NodeID = 1
	MaxNodeID NodeID = 3

	// BlockBase is the identifier of the first node block.
	BlockBase uint16 = 0x100
	// BlockSize is the number of identifiers reserved per node.
	BlockSize uint16 = 0x10
	// MaxClassOffset is the highest class offset inside a block.
	MaxClassOffset SensorClass = 0x07
)

// PayloadLength is the fixed DLC of every telemetry frame.
const PayloadLength = 8

// DefaultBitrate is the documented bus bitrate in bit/s.
const DefaultBitrate = 250000

const (
	// MaskIDSff keeps the 11 identifier bits of a standard frame.
	MaskIDSff = 0x000007FF
	// MaskIDEff keeps the 29 identifier bits of an extended frame.
	MaskIDEff = 0x1FFFFFFF
	// MaskErr marks an error frame reported by the controller.
	MaskErr = 0x20000000
	// MaskRtr marks a remote transmission request.
	MaskRtr = 0x40000000
	// MaskEff marks an extended (29-bit) frame.
	MaskEff = 0x80000000
)
