package socketcan

import (
	"github.com/FabianPetersen/can"

	"github.com/FabianPetersen/cantelemetry"
	"github.com/FabianPetersen/cantelemetry/bus"
)

// Error classes carried in the identifier of an error frame (linux/can/error.h).
const (
	errTxTimeout = 0x00000001
	errLostArb   = 0x00000002
	errCrtl      = 0x00000004
	errBusOff    = 0x00000040
	errRestarted = 0x00000100
)

// Controller status bits in data[1] of a CAN_ERR_CRTL frame.
const (
	crtlRxOverflow = 0x01
	crtlRxPassive  = 0x10
	crtlTxPassive  = 0x20
	crtlActive     = 0x40
)

// errFilter is the CAN_RAW_ERR_FILTER mask: every class we turn into an alert.
const errFilter = errTxTimeout | errLostArb | errCrtl | errBusOff | errRestarted

// IsErrorFrame reports whether frm was generated by the controller.
func IsErrorFrame(frm can.Frame) bool {
	return frm.ID&cantelemetry.MaskErr != 0
}

// AlertsFromErrorFrame maps the error classes of frm to controller alerts.
// Data frames map to no alert.
func AlertsFromErrorFrame(frm can.Frame) bus.Alert {
	if !IsErrorFrame(frm) {
		return 0
	}

	var a bus.Alert
	class := frm.ID & cantelemetry.MaskIDEff
	if class&errTxTimeout != 0 {
		a |= bus.AlertTxFailed
	}
	if class&errLostArb != 0 {
		a |= bus.AlertArbitrationLost
	}
	if class&errCrtl != 0 {
		status := frm.Data[1]
		if status&crtlRxOverflow != 0 {
			a |= bus.AlertRxQueueFull
		}
		if status&(crtlRxPassive|crtlTxPassive) != 0 {
			a |= bus.AlertErrorPassive
		}
		if status&crtlActive != 0 {
			a |= bus.AlertErrorActive
		}
	}
	if class&errBusOff != 0 {
		a |= bus.AlertBusOff
	}
	if class&errRestarted != 0 {
		a |= bus.AlertBusRecovered
	}
	return a
}
