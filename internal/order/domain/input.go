package domain

import (
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/order-ledger/pkg/apperror"
)

type ItemInput struct {
	ProductID int64
	Quantity  int
	// Price overrides the catalog price when set.
	Price *decimal.Decimal
}

type CreateInput struct {
	CustomerID int64
	Items      []ItemInput
	Status     *string
	Notes      *string
	ActorID    int64
}

// UpdateInput carries the optional fields of a full order update. A nil
// Items leaves the item set alone; a non-nil one replaces it wholesale.
type UpdateInput struct {
	Status  *string
	Notes   *string
	Items   *[]ItemInput
	ActorID int64
}

func validateItems(items []ItemInput) error {
	if len(items) == 0 {
		return apperror.Validation("order items are required")
	}
	for i, item := range items {
		if item.ProductID <= 0 || item.Quantity <= 0 {
			return apperror.Validation("item %d: product_id and a positive quantity are required", i)
		}
		if item.Price != nil && item.Price.IsNegative() {
			return apperror.Validation("item %d: price must not be negative", i)
		}
	}
	return nil
}

func (in CreateInput) Validate() (Status, error) {
	if in.CustomerID <= 0 {
		return "", apperror.Validation("customer_id is required")
	}
	if err := validateItems(in.Items); err != nil {
		return "", err
	}
	if in.Status == nil {
		return StatusPending, nil
	}
	return ParseStatus(*in.Status)
}

// Validate returns the requested status, if any.
func (in UpdateInput) Validate() (*Status, error) {
	if in.Items != nil {
		if err := validateItems(*in.Items); err != nil {
			return nil, err
		}
	}
	if in.Status == nil {
		return nil, nil
	}
	st, err := ParseStatus(*in.Status)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

type ListFilter struct {
	Page       int
	PerPage    int
	Status     string
	CustomerID int64
}

const maxPerPage = 100

func (f ListFilter) Normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = 10
	}
	if f.PerPage > maxPerPage {
		f.PerPage = maxPerPage
	}
	return f
}

func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.PerPage
}

type Page struct {
	Orders      []Order
	Total       int
	Pages       int
	CurrentPage int
}

func NewPage(orders []Order, total int, f ListFilter) Page {
	pages := 0
	if total > 0 {
		pages = (total + f.PerPage - 1) / f.PerPage
	}
	return Page{Orders: orders, Total: total, Pages: pages, CurrentPage: f.Page}
}
