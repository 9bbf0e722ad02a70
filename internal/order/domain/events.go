package domain

import "time"

const (
	EventOrderCreated       = "order.created"
	EventOrderUpdated       = "order.updated"
	EventOrderStatusChanged = "order.status_changed"
	EventOrderDeleted       = "order.deleted"
)

type EventItem struct {
	ProductID    int64  `json:"product_id"`
	Quantity     int    `json:"quantity"`
	PriceAtOrder string `json:"price_at_order"`
}

type OrderCreated struct {
	OrderID     int64       `json:"order_id"`
	CustomerID  int64       `json:"customer_id"`
	Status      Status      `json:"status"`
	TotalAmount string      `json:"total_amount"`
	Items       []EventItem `json:"items"`
	CreatedBy   int64       `json:"created_by"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

type OrderUpdated struct {
	OrderID       int64       `json:"order_id"`
	Status        Status      `json:"status"`
	TotalAmount   string      `json:"total_amount"`
	ItemsReplaced bool        `json:"items_replaced"`
	Items         []EventItem `json:"items"`
	OccurredAt    time.Time   `json:"occurred_at"`
}

type OrderStatusChanged struct {
	OrderID       int64     `json:"order_id"`
	From          Status    `json:"from"`
	To            Status    `json:"to"`
	StockReleased bool      `json:"stock_released"`
	ChangedBy     int64     `json:"changed_by"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type OrderDeleted struct {
	OrderID    int64     `json:"order_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func EventItems(items []OrderItem) []EventItem {
	out := make([]EventItem, 0, len(items))
	for _, item := range items {
		out = append(out, EventItem{
			ProductID:    item.ProductID,
			Quantity:     item.Quantity,
			PriceAtOrder: item.PriceAtOrder.StringFixed(2),
		})
	}
	return out
}
