package bus

import (
	"strings"
	"time"

	"github.com/FabianPetersen/cantelemetry"
)

// FilterPolicy selects the hardware acceptance filter.
type FilterPolicy int

const (
	// FilterAcceptAll receives every identifier. Node and class are told
	// apart by identifier alone, never by hardware filtering.
	FilterAcceptAll FilterPolicy = iota
)

func (f FilterPolicy) String() string {
	switch f {
	case FilterAcceptAll:
		return "accept_all"
	}
	return "unknown"
}

// Alert is a set of controller alert flags.
type Alert uint32

const (
	AlertBusOff Alert = 1 << iota
	AlertBusRecovered
	AlertErrorPassive
	AlertErrorActive
	AlertArbitrationLost
	AlertTxFailed
	AlertRxQueueFull
)

// alertOrder is the order alerts of one poll are handled in. Bus-off is
// handled before bus-recovered so a poll carrying both completes a cycle.
var alertOrder = []Alert{
	AlertErrorPassive,
	AlertErrorActive,
	AlertArbitrationLost,
	AlertTxFailed,
	AlertRxQueueFull,
	AlertBusOff,
	AlertBusRecovered,
}

// Has reports whether every flag of k is set.
func (a Alert) Has(k Alert) bool {
	return k != 0 && a&k == k
}

// Kinds splits the set into single alerts in handling order.
func (a Alert) Kinds() []Alert {
	var out []Alert
	for _, k := range alertOrder {
		if a.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func (a Alert) String() string {
	if a == 0 {
		return "none"
	}
	var names []string
	for _, k := range a.Kinds() {
		switch k {
		case AlertBusOff:
			names = append(names, "BUS_OFF")
		case AlertBusRecovered:
			names = append(names, "BUS_RECOVERED")
		case AlertErrorPassive:
			names = append(names, "ERROR_PASSIVE")
		case AlertErrorActive:
			names = append(names, "ERROR_ACTIVE")
		case AlertArbitrationLost:
			names = append(names, "ARBITRATION_LOST")
		case AlertTxFailed:
			names = append(names, "TX_FAILED")
		case AlertRxQueueFull:
			names = append(names, "RX_QUEUE_FULL")
		}
	}
	return strings.Join(names, "|")
}

// Transceiver abstracts the CAN controller the node transmits through.
// Calls are made from the scheduler goroutine only; implementations that
// collect alerts on other goroutines must synchronise internally.
type Transceiver interface {
	// Install configures the controller. It does not start it.
	Install(bitrate int, filter FilterPolicy) error
	// Start brings an installed controller onto the bus.
	Start() error
	// Stop takes the controller off the bus.
	Stop() error
	// InitiateRecovery asks a bus-off controller to begin recovery.
	InitiateRecovery() error
	// ReadAlerts returns and clears the pending alerts. It never blocks.
	ReadAlerts() (Alert, error)
	// Transmit queues one frame, waiting at most timeout.
	Transmit(frame cantelemetry.Frame, timeout time.Duration) error
	// Close releases the controller.
	Close() error
}
