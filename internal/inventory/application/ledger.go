package application

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/dmehra2102/order-ledger/internal/inventory/domain"
	"github.com/dmehra2102/order-ledger/pkg/apperror"
)

// Ledger applies reservations and releases against a single transaction. It
// is not safe for concurrent use; one Ledger lives for one engine operation.
type Ledger struct {
	log      *slog.Logger
	store    StockStore
	recorder MovementRecorder
	products map[int64]*domain.Product
	journal  []domain.Movement
}

func NewLedger(log *slog.Logger, store StockStore, recorder MovementRecorder) *Ledger {
	return &Ledger{
		log:      log,
		store:    store,
		recorder: recorder,
		products: make(map[int64]*domain.Product),
	}
}

// Acquire locks every product in ids that is not already held. Callers pass
// the full set they will touch up front so that locks are always taken in
// ascending id order.
func (l *Ledger) Acquire(ctx context.Context, ids []int64) error {
	missing := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := l.products[id]; !ok && !slices.Contains(missing, id) {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)

	locked, err := l.store.LockProducts(ctx, missing)
	if err != nil {
		return fmt.Errorf("lock products: %w", err)
	}
	for id, p := range locked {
		l.products[id] = &p
	}
	return nil
}

// Product returns the locked snapshot of a product, reflecting movements made
// so far in this transaction.
func (l *Ledger) Product(ctx context.Context, id int64) (domain.Product, error) {
	if err := l.Acquire(ctx, []int64{id}); err != nil {
		return domain.Product{}, err
	}
	p, ok := l.products[id]
	if !ok {
		return domain.Product{}, apperror.NotFound("product with id %d not found", id)
	}
	return *p, nil
}

func (l *Ledger) Reserve(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return apperror.Validation("quantity must be positive")
	}
	p, err := l.Product(ctx, productID)
	if err != nil {
		return err
	}
	if qty > p.StockQuantity {
		return apperror.InsufficientStock("insufficient stock for product %s", p.Name)
	}
	return l.apply(ctx, domain.Movement{ProductID: productID, Quantity: qty, Direction: domain.Reserved})
}

// Release returns qty units to the product. The ledger does not know which
// reservations are outstanding; callers release exactly once per reservation.
func (l *Ledger) Release(ctx context.Context, productID int64, qty int) error {
	if qty <= 0 {
		return nil
	}
	if err := l.Acquire(ctx, []int64{productID}); err != nil {
		return err
	}
	if _, ok := l.products[productID]; !ok {
		l.log.Warn("release skipped for missing product", "product_id", productID, "quantity", qty)
		return nil
	}
	return l.apply(ctx, domain.Movement{ProductID: productID, Quantity: qty, Direction: domain.Released})
}

func (l *Ledger) apply(ctx context.Context, m domain.Movement) error {
	if err := l.store.AdjustStock(ctx, m.ProductID, m.Delta()); err != nil {
		return err
	}
	l.products[m.ProductID].StockQuantity += m.Delta()
	l.journal = append(l.journal, m)
	return nil
}

// Revert undoes every movement made through this ledger, newest first. Used on
// the error path of an operation before its transaction is rolled back.
func (l *Ledger) Revert(ctx context.Context) error {
	for i := len(l.journal) - 1; i >= 0; i-- {
		m := l.journal[i]
		if err := l.store.AdjustStock(ctx, m.ProductID, -m.Delta()); err != nil {
			return fmt.Errorf("revert product %d: %w", m.ProductID, err)
		}
		l.products[m.ProductID].StockQuantity -= m.Delta()
	}
	l.journal = nil
	return nil
}

// Commit hands the applied movements to the recorder once the surrounding
// transaction has committed.
func (l *Ledger) Commit() {
	if l.recorder != nil {
		for _, m := range l.journal {
			l.recorder.RecordMovement(m)
		}
	}
	l.journal = nil
}

func (l *Ledger) Movements() []domain.Movement {
	return slices.Clone(l.journal)
}
