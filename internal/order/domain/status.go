package domain

import "github.com/dmehra2102/order-ledger/pkg/apperror"

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

var Statuses = []Status{StatusPending, StatusProcessing, StatusShipped, StatusCompleted, StatusCancelled}

func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", apperror.InvalidStatus("invalid status %q", s)
}

// HoldsReservations is false only for cancelled orders, whose items keep
// their rows but no longer hold stock.
func (s Status) HoldsReservations() bool {
	return s != StatusCancelled
}

type Effect int

const (
	EffectNone Effect = iota
	// EffectRelease returns the stock of every current item.
	EffectRelease
)

// Transition reports the stock side effect of moving from one status to
// another. Any status may follow any other. Leaving cancelled does not
// reserve stock again.
func Transition(from, to Status) Effect {
	if to == StatusCancelled && from != StatusCancelled {
		return EffectRelease
	}
	return EffectNone
}
