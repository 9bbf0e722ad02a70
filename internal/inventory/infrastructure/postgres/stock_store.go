package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/order-ledger/internal/inventory/domain"
	"github.com/dmehra2102/order-ledger/pkg/apperror"
)

// StockStore reads and moves stock inside a caller-owned transaction.
type StockStore struct {
	tx pgx.Tx
}

func NewStockStore(tx pgx.Tx) *StockStore {
	return &StockStore{tx: tx}
}

// LockProducts takes row locks in ascending id order. Two transactions
// touching overlapping products queue on the lowest shared id and cannot
// deadlock on each other.
func (s *StockStore) LockProducts(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	rows, err := s.tx.Query(ctx, `SELECT id, name, price::text, stock_quantity, is_active, updated_at
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]domain.Product, len(ids))
	for rows.Next() {
		var (
			p     domain.Product
			price string
		)
		if err := rows.Scan(&p.ID, &p.Name, &price, &p.StockQuantity, &p.Active, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price of product %d: %w", p.ID, err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// AdjustStock applies delta unless it would take the product below zero.
func (s *StockStore) AdjustStock(ctx context.Context, productID int64, delta int) error {
	ct, err := s.tx.Exec(ctx, `UPDATE products
		SET stock_quantity = stock_quantity + $2, updated_at = now()
		WHERE id = $1 AND stock_quantity + $2 >= 0`, productID, delta)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}

	var name string
	err = s.tx.QueryRow(ctx, `SELECT name FROM products WHERE id = $1`, productID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NotFound("product with id %d not found", productID)
	}
	if err != nil {
		return err
	}
	return apperror.InsufficientStock("insufficient stock for product %s", name)
}
