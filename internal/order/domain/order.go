package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Customer struct {
	ID   int64
	Name string
}

type Order struct {
	ID           int64
	CustomerID   int64
	CustomerName string
	OrderDate    time.Time
	Status       Status
	Notes        *string
	TotalAmount  decimal.Decimal
	Items        []OrderItem
	CreatedBy    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OrderItem is one reserved line. PriceAtOrder is captured when the line is
// reserved and never changes afterwards.
type OrderItem struct {
	ID           int64
	ProductID    int64
	ProductName  string
	Quantity     int
	PriceAtOrder decimal.Decimal
}

func (i OrderItem) Total() decimal.Decimal {
	return i.PriceAtOrder.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CalculateTotal is the only way TotalAmount is set.
func CalculateTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Total())
	}
	return total
}

// SetItems replaces the item set and recomputes the total.
func (o *Order) SetItems(items []OrderItem) {
	o.Items = items
	o.TotalAmount = CalculateTotal(items)
}

// HoldsReservations reports whether the order's items currently hold stock.
func (o Order) HoldsReservations() bool {
	return o.Status.HoldsReservations()
}

// ProductIDs returns the product ids referenced by the items, in item order.
func ProductIDs(items []OrderItem) []int64 {
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	return ids
}
