package application

import (
	"context"

	invapp "github.com/dmehra2102/order-ledger/internal/inventory/application"
	notifdomain "github.com/dmehra2102/order-ledger/internal/notification/domain"
	"github.com/dmehra2102/order-ledger/internal/order/domain"
	"github.com/dmehra2102/order-ledger/pkg/outbox"
)

// Tx is the explicit unit of work every mutating operation runs against.
// Everything written through it commits or rolls back together.
type Tx interface {
	invapp.StockStore

	Customer(ctx context.Context, id int64) (domain.Customer, error)
	InsertOrder(ctx context.Context, o *domain.Order) error
	// LockOrder loads the order with its items and holds its row until the
	// transaction ends.
	LockOrder(ctx context.Context, id int64) (domain.Order, error)
	UpdateOrder(ctx context.Context, o domain.Order) error
	// ReplaceItems deletes the order's items and inserts items, returning
	// them with their new ids.
	ReplaceItems(ctx context.Context, orderID int64, items []domain.OrderItem) ([]domain.OrderItem, error)
	DeleteOrder(ctx context.Context, id int64) error
	AppendOutbox(ctx context.Context, ev outbox.Event) error
}

type UnitOfWork interface {
	// WithinTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type OrderReader interface {
	GetOrder(ctx context.Context, id int64) (domain.Order, error)
	ListOrders(ctx context.Context, f domain.ListFilter) (domain.Page, error)
	StatusTotals(ctx context.Context) ([]domain.StatusTotals, error)
}

type Notifier interface {
	Notify(ctx context.Context, userID int64, title, message string, kind notifdomain.Kind, relatedOrderID int64) error
}

// StatsCache stores computed stats under a version that Invalidate bumps, so
// a computation racing a mutation can never overwrite the newer version.
type StatsCache interface {
	Get(ctx context.Context) (stats domain.Stats, version int64, ok bool, err error)
	Set(ctx context.Context, version int64, stats domain.Stats) error
	Invalidate(ctx context.Context) error
}

type Metrics interface {
	ObserveOperation(op, result string)
	ObserveStock(direction string, units int)
}
