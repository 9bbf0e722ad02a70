package http

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/order-ledger/internal/order/domain"
)

type itemReq struct {
	ProductID int64            `json:"product_id"`
	Quantity  int              `json:"quantity"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

type itemReqs []itemReq

func (items itemReqs) toInput() []domain.ItemInput {
	out := make([]domain.ItemInput, 0, len(items))
	for _, it := range items {
		out = append(out, domain.ItemInput{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	return out
}

type createOrderReq struct {
	CustomerID int64    `json:"customer_id"`
	Items      itemReqs `json:"items"`
	Status     *string  `json:"status,omitempty"`
	Notes      *string  `json:"notes,omitempty"`
}

// updateOrderReq leaves Items nil when the body has no items key, so the
// item set is only replaced when the caller sends one.
type updateOrderReq struct {
	Status *string   `json:"status,omitempty"`
	Notes  *string   `json:"notes,omitempty"`
	Items  *itemReqs `json:"items,omitempty"`
}

type statusReq struct {
	Status string `json:"status"`
}

type itemResp struct {
	ID           int64   `json:"id"`
	ProductID    int64   `json:"product_id"`
	ProductName  string  `json:"product_name"`
	Quantity     int     `json:"quantity"`
	PriceAtOrder float64 `json:"price_at_order"`
	Total        float64 `json:"total"`
}

type orderResp struct {
	ID           int64      `json:"id"`
	CustomerID   int64      `json:"customer_id"`
	CustomerName string     `json:"customer_name"`
	OrderDate    time.Time  `json:"order_date"`
	Status       string     `json:"status"`
	Notes        *string    `json:"notes"`
	TotalAmount  float64    `json:"total_amount"`
	Items        []itemResp `json:"items"`
	CreatedBy    int64      `json:"created_by"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func newOrderResp(o domain.Order) orderResp {
	items := make([]itemResp, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, itemResp{
			ID:           it.ID,
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			Quantity:     it.Quantity,
			PriceAtOrder: it.PriceAtOrder.InexactFloat64(),
			Total:        it.Total().InexactFloat64(),
		})
	}
	return orderResp{
		ID:           o.ID,
		CustomerID:   o.CustomerID,
		CustomerName: o.CustomerName,
		OrderDate:    o.OrderDate,
		Status:       string(o.Status),
		Notes:        o.Notes,
		TotalAmount:  o.TotalAmount.InexactFloat64(),
		Items:        items,
		CreatedBy:    o.CreatedBy,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

type listResp struct {
	Orders      []orderResp `json:"orders"`
	Total       int         `json:"total"`
	Pages       int         `json:"pages"`
	CurrentPage int         `json:"current_page"`
}

type statsResp struct {
	Total        int     `json:"total"`
	Pending      int     `json:"pending"`
	Processing   int     `json:"processing"`
	Shipped      int     `json:"shipped"`
	Completed    int     `json:"completed"`
	Cancelled    int     `json:"cancelled"`
	TotalRevenue float64 `json:"total_revenue"`
}

func newStatsResp(s domain.Stats) statsResp {
	return statsResp{
		Total:        s.Total,
		Pending:      s.Pending,
		Processing:   s.Processing,
		Shipped:      s.Shipped,
		Completed:    s.Completed,
		Cancelled:    s.Cancelled,
		TotalRevenue: s.TotalRevenue.InexactFloat64(),
	}
}

type errorResp struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
