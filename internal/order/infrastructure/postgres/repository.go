package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	invpg "github.com/dmehra2102/order-ledger/internal/inventory/infrastructure/postgres"
	"github.com/dmehra2102/order-ledger/internal/order/application"
	"github.com/dmehra2102/order-ledger/internal/order/domain"
	"github.com/dmehra2102/order-ledger/pkg/apperror"
	"github.com/dmehra2102/order-ledger/pkg/outbox"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the Postgres unit of work and order reader.
type Repository struct {
	log         *slog.Logger
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{log: log, pool: pool, lockTimeout: lockTimeout}
}

func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapError(err)
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if r.lockTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())); err != nil {
			return mapError(err)
		}
	}
	if err := fn(ctx, &pgTx{StockStore: invpg.NewStockStore(tx), tx: tx}); err != nil {
		return mapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, selectOrder+` WHERE o.id = $1`, id))
	if err != nil {
		return domain.Order{}, err
	}
	byOrder, err := loadItems(ctx, r.pool, []int64{o.ID})
	if err != nil {
		return domain.Order{}, err
	}
	o.Items = byOrder[o.ID]
	return o, nil
}

func (r *Repository) ListOrders(ctx context.Context, f domain.ListFilter) (domain.Page, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("o.status = $%d", len(args)))
	}
	if f.CustomerID != 0 {
		args = append(args, f.CustomerID)
		conds = append(conds, fmt.Sprintf("o.customer_id = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM orders o`+where, args...).Scan(&total); err != nil {
		return domain.Page{}, err
	}

	args = append(args, f.PerPage, f.Offset())
	rows, err := r.pool.Query(ctx, selectOrder+where+
		fmt.Sprintf(" ORDER BY o.created_at DESC, o.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return domain.Page{}, err
	}
	defer rows.Close()

	var (
		orders []domain.Order
		ids    []int64
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return domain.Page{}, err
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return domain.Page{}, err
	}

	byOrder, err := loadItems(ctx, r.pool, ids)
	if err != nil {
		return domain.Page{}, err
	}
	for i := range orders {
		orders[i].Items = byOrder[orders[i].ID]
	}
	return domain.NewPage(orders, total, f), nil
}

func (r *Repository) StatusTotals(ctx context.Context) ([]domain.StatusTotals, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, count(*), COALESCE(sum(total_amount), 0)::text FROM orders GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StatusTotals
	for rows.Next() {
		var (
			status string
			t      domain.StatusTotals
			amount string
		)
		if err := rows.Scan(&status, &t.Count, &amount); err != nil {
			return nil, err
		}
		t.Status = domain.Status(status)
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount for %s: %w", status, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type pgTx struct {
	*invpg.StockStore
	tx pgx.Tx
}

func (t *pgTx) Customer(ctx context.Context, id int64) (domain.Customer, error) {
	var c domain.Customer
	err := t.tx.QueryRow(ctx, `SELECT id, name FROM customers WHERE id = $1`, id).Scan(&c.ID, &c.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Customer{}, apperror.NotFound("customer not found")
	}
	return c, err
}

func (t *pgTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	err := t.tx.QueryRow(ctx, `INSERT INTO orders (customer_id, order_date, status, notes, total_amount, created_by, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5::numeric,$6,$7,$8)
		RETURNING id`,
		o.CustomerID, o.OrderDate, string(o.Status), o.Notes, o.TotalAmount.String(), o.CreatedBy, o.CreatedAt, o.UpdatedAt).
		Scan(&o.ID)
	if err != nil {
		return err
	}
	items, err := t.insertItems(ctx, o.ID, o.Items)
	if err != nil {
		return err
	}
	o.Items = items
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, id int64) (domain.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, selectOrder+` WHERE o.id = $1 FOR UPDATE OF o`, id))
	if err != nil {
		return domain.Order{}, err
	}
	byOrder, err := loadItems(ctx, t.tx, []int64{o.ID})
	if err != nil {
		return domain.Order{}, err
	}
	o.Items = byOrder[o.ID]
	return o, nil
}

func (t *pgTx) UpdateOrder(ctx context.Context, o domain.Order) error {
	ct, err := t.tx.Exec(ctx, `UPDATE orders SET status=$2, notes=$3, total_amount=$4::numeric, updated_at=$5 WHERE id=$1`,
		o.ID, string(o.Status), o.Notes, o.TotalAmount.String(), o.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperror.NotFound("order %d not found", o.ID)
	}
	return nil
}

func (t *pgTx) ReplaceItems(ctx context.Context, orderID int64, items []domain.OrderItem) ([]domain.OrderItem, error) {
	if _, err := t.tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
		return nil, err
	}
	return t.insertItems(ctx, orderID, items)
}

func (t *pgTx) DeleteOrder(ctx context.Context, id int64) error {
	ct, err := t.tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperror.NotFound("order %d not found", id)
	}
	return nil
}

func (t *pgTx) AppendOutbox(ctx context.Context, ev outbox.Event) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO outbox (event_id, aggregate_type, aggregate_id, type, payload, headers, traceparent, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',$8)`,
		ev.EventID, ev.AggregateType, ev.AggregateID, ev.Type, ev.Payload, ev.Headers, ev.Traceparent, ev.CreatedAt)
	return err
}

func (t *pgTx) insertItems(ctx context.Context, orderID int64, items []domain.OrderItem) ([]domain.OrderItem, error) {
	if len(items) == 0 {
		return nil, nil
	}
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`INSERT INTO order_items (order_id, product_id, quantity, price_at_order)
			VALUES ($1,$2,$3,$4::numeric)
			RETURNING id`,
			orderID, item.ProductID, item.Quantity, item.PriceAtOrder.String())
	}
	br := t.tx.SendBatch(ctx, batch)
	saved := make([]domain.OrderItem, len(items))
	copy(saved, items)
	for i := range saved {
		if err := br.QueryRow().Scan(&saved[i].ID); err != nil {
			_ = br.Close()
			return nil, err
		}
	}
	if err := br.Close(); err != nil {
		return nil, err
	}
	return saved, nil
}

const selectOrder = `SELECT o.id, o.customer_id, c.name, o.order_date, o.status, o.notes, o.total_amount::text, o.created_by, o.created_at, o.updated_at
	FROM orders o
	JOIN customers c ON c.id = o.customer_id`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o      domain.Order
		status string
		total  string
	)
	err := row.Scan(&o.ID, &o.CustomerID, &o.CustomerName, &o.OrderDate, &status, &o.Notes, &total, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, apperror.NotFound("order not found")
	}
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.Status(status)
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return domain.Order{}, fmt.Errorf("parse total of order %d: %w", o.ID, err)
	}
	return o, nil
}

func loadItems(ctx context.Context, q querier, orderIDs []int64) (map[int64][]domain.OrderItem, error) {
	out := make(map[int64][]domain.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `SELECT i.id, i.order_id, i.product_id, p.name, i.quantity, i.price_at_order::text
		FROM order_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.order_id = ANY($1)
		ORDER BY i.id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item    domain.OrderItem
			orderID int64
			price   string
		)
		if err := rows.Scan(&item.ID, &orderID, &item.ProductID, &item.ProductName, &item.Quantity, &price); err != nil {
			return nil, err
		}
		if item.PriceAtOrder, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse price of item %d: %w", item.ID, err)
		}
		out[orderID] = append(out[orderID], item)
	}
	return out, rows.Err()
}
