package postgres

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/order-ledger/internal/notification/domain"
)

// Store persists notifications for the user inbox. It writes outside any
// order transaction.
type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	return &Store{log: log, pool: pool}
}

func (s *Store) Name() string { return "postgres" }

func (s *Store) Send(ctx context.Context, n domain.Notification) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO notifications (user_id, title, message, type, is_read, related_order_id, created_at)
		VALUES ($1,$2,$3,$4,false,$5,$6)`,
		n.UserID, n.Title, n.Message, string(n.Kind), n.RelatedOrderID, n.CreatedAt)
	return err
}
