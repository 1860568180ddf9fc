package cantelemetry

import (
	"fmt"
	"strings"

	"github.com/FabianPetersen/can"
)

// A Frame represents one telemetry frame.
type Frame struct {
	// ID is the 11-bit bus identifier produced by Address.
	ID uint16
	// Data is always fully populated, unused bytes are zero.
	Data [PayloadLength]uint8
}

// NewFrame returns the frame of class for node carrying payload.
func NewFrame(node NodeID, class SensorClass, payload [PayloadLength]uint8) Frame {
	return Frame{
		ID:   Address(node, class) & MaskIDSff,
		Data: payload,
	}
}

// TelemetryFrame returns a telemetry frame from a CAN frame.
func TelemetryFrame(frm can.Frame) Frame {
	return Frame{
		ID:   uint16(frm.ID & MaskIDSff),
		Data: frm.Data,
	}
}

// IsDataFrame reports whether frm is a standard data frame, the only kind a
// telemetry frame travels in. Error, remote and extended frames are not.
func IsDataFrame(frm can.Frame) bool {
	return frm.ID&(MaskErr|MaskRtr|MaskEff) == 0
}

// Node returns the node identity encoded in the identifier.
func (frm Frame) Node() (NodeID, error) {
	node, _, err := ParseAddress(frm.ID)
	return node, err
}

// Class returns the frame class encoded in the identifier.
func (frm Frame) Class() (SensorClass, error) {
	_, class, err := ParseAddress(frm.ID)
	return class, err
}

// CANFrame returns a CAN frame representing the telemetry frame.
//
// Telemetry frames are encoded as follows:
//
//	           ---------------------------------------------
//	CAN       | ID        | Length | Flags | Res0 | Res1 | Data |
//	           ---------------------------------------------
//	Telemetry | 11-bit ID | 8      | 0     | 0    | 0    | Data |
//	           ---------------------------------------------
func (frm Frame) CANFrame() can.Frame {
	return can.Frame{
		ID:     uint32(frm.ID) & MaskIDSff,
		Length: PayloadLength,
		Data:   frm.Data,
	}
}

func (frm Frame) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%03X [%d]", frm.ID, PayloadLength)
	for _, b := range frm.Data {
		fmt.Fprintf(&sb, " %02X", b)
	}
	return sb.String()
}
