package scheduler

import (
	"time"

	"golang.org/x/exp/slices"

	"github.com/FabianPetersen/cantelemetry"
	"github.com/FabianPetersen/cantelemetry/sensor"
)

// ClassStats counts the frames of one class.
type ClassStats struct {
	Built   uint64
	Sent    uint64
	Dropped uint64
}

// NodeState is everything the scheduler mutates between ticks. It is owned
// by the scheduler and handed to subsystems by pointer.
type NodeState struct {
	Node     cantelemetry.NodeID
	Channels []*sensor.Channel
	// Counter is carried by the next dual-temperature frame.
	Counter uint16
	Boot    time.Time
	Frames  [cantelemetry.MaxClassOffset + 1]ClassStats
}

// NewNodeState returns the state of node carrying channels.
func NewNodeState(node cantelemetry.NodeID, channels ...*sensor.Channel) *NodeState {
	return &NodeState{Node: node, Channels: channels}
}

// Channel returns the channel of kind, nil when the node has none.
func (s *NodeState) Channel(kind sensor.Kind) *sensor.Channel {
	i := slices.IndexFunc(s.Channels, func(ch *sensor.Channel) bool {
		return ch.Kind == kind
	})
	if i < 0 {
		return nil
	}
	return s.Channels[i]
}

// Uptime returns the time since boot.
func (s *NodeState) Uptime(now time.Time) time.Duration {
	if s.Boot.IsZero() {
		return 0
	}
	return now.Sub(s.Boot)
}
