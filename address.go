package cantelemetry

import "fmt"

// NodeID is the fixed logical index of a sensor node on the bus.
type NodeID uint8

// Validate checks that the node identity is one the addressing scheme supports.
func (n NodeID) Validate() error {
	if n < MinNodeID || n > MaxNodeID {
		return fmt.Errorf("cantelemetry: invalid node id %d (valid %d..%d)", n, MinNodeID, MaxNodeID)
	}
	return nil
}

// Base returns the first identifier of the node's block.
func (n NodeID) Base() uint16 {
	return BlockSize*(uint16(n)-1) + BlockBase
}

// Address maps a node and a frame class to its bus identifier.
//
//	base       = BlockSize * (node - 1) + BlockBase
//	identifier = base + class
func Address(node NodeID, class SensorClass) uint16 {
	return node.Base() + uint16(class)
}

// NodeRange returns the inclusive identifier range owned by node.
func NodeRange(node NodeID) (lo, hi uint16) {
	lo = node.Base()
	return lo, lo + BlockSize - 1
}

// ParseAddress recovers node identity and class from an identifier.
func ParseAddress(id uint16) (NodeID, SensorClass, error) {
	if id < BlockBase {
		return 0, 0, fmt.Errorf("cantelemetry: id 0x%03X below node blocks", id)
	}
	node := NodeID((id-BlockBase)/BlockSize) + 1
	if err := node.Validate(); err != nil {
		return 0, 0, fmt.Errorf("cantelemetry: id 0x%03X outside node blocks", id)
	}
	class := SensorClass((id - BlockBase) % BlockSize)
	if class == 0 || class > MaxClassOffset {
		return 0, 0, fmt.Errorf("cantelemetry: id 0x%03X has no class offset", id)
	}
	return node, class, nil
}
