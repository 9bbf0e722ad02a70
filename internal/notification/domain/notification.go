package domain

import "time"

type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

type Notification struct {
	UserID         int64     `json:"user_id"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	Kind           Kind      `json:"type"`
	RelatedOrderID *int64    `json:"related_order_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
