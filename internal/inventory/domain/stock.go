package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog row as seen by the ledger. The catalog owns every
// field except StockQuantity, which only the ledger mutates.
type Product struct {
	ID            int64
	Name          string
	Price         decimal.Decimal
	StockQuantity int
	Active        bool
	UpdatedAt     time.Time
}

type Direction string

const (
	Reserved Direction = "reserve"
	Released Direction = "release"
)

// Movement is one applied stock change, kept so a failed operation can be
// reverted in reverse order.
type Movement struct {
	ProductID int64
	Quantity  int
	Direction Direction
}

// Delta is the signed change applied to the stock counter.
func (m Movement) Delta() int {
	if m.Direction == Reserved {
		return -m.Quantity
	}
	return m.Quantity
}
