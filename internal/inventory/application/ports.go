package application

import (
	"context"

	"github.com/dmehra2102/order-ledger/internal/inventory/domain"
)

// StockStore is the transaction-scoped view of product stock counters.
type StockStore interface {
	// LockProducts locks the given product rows in ascending id order for the
	// rest of the transaction. Unknown ids are absent from the result.
	LockProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
	// AdjustStock adds delta to the counter. It must refuse, with an
	// insufficient_stock error, any change that would leave the counter negative.
	AdjustStock(ctx context.Context, productID int64, delta int) error
}

type MovementRecorder interface {
	RecordMovement(m domain.Movement)
}
