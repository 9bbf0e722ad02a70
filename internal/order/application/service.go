package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	invapp "github.com/dmehra2102/order-ledger/internal/inventory/application"
	invdomain "github.com/dmehra2102/order-ledger/internal/inventory/domain"
	notifdomain "github.com/dmehra2102/order-ledger/internal/notification/domain"
	"github.com/dmehra2102/order-ledger/internal/order/domain"
	"github.com/dmehra2102/order-ledger/pkg/apperror"
	"github.com/dmehra2102/order-ledger/pkg/outbox"
)

const aggregateType = "order"

type Service struct {
	log       *slog.Logger
	uow       UnitOfWork
	reader    OrderReader
	notifier  Notifier
	metrics   Metrics
	txTimeout time.Duration
	now       func() time.Time

	cache    StatsCache
	statsTTL time.Duration
	// bypassUntil is the unix nano time until which cached stats are not
	// trusted.
	bypassUntil atomic.Int64
}

type Option func(*Service)

// WithStatsCache serves Stats from c. ttl is how long entries live in c; after
// a failed invalidation the cache is bypassed for that long.
func WithStatsCache(c StatsCache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.statsTTL = ttl
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

func WithTxTimeout(d time.Duration) Option {
	return func(s *Service) { s.txTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(log *slog.Logger, uow UnitOfWork, reader OrderReader, notifier Notifier, opts ...Option) *Service {
	s := &Service{
		log:       log,
		uow:       uow,
		reader:    reader,
		notifier:  notifier,
		metrics:   noopMetrics{},
		txTimeout: 5 * time.Second,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateOrder(ctx context.Context, in domain.CreateInput) (domain.Order, error) {
	status, err := in.Validate()
	if err != nil {
		return domain.Order{}, s.fail("create", err)
	}

	var created domain.Order
	err = s.withinTx(ctx, "create", func(ctx context.Context, tx Tx, ledger *invapp.Ledger) error {
		customer, err := tx.Customer(ctx, in.CustomerID)
		if err != nil {
			return err
		}
		// A cancelled order holds no stock, even when it is born cancelled.
		items, err := s.reserveItems(ctx, ledger, in.Items, status.HoldsReservations())
		if err != nil {
			return err
		}

		now := s.now()
		o := domain.Order{
			CustomerID:   customer.ID,
			CustomerName: customer.Name,
			OrderDate:    now,
			Status:       status,
			Notes:        in.Notes,
			CreatedBy:    in.ActorID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		o.SetItems(items)
		if err := tx.InsertOrder(ctx, &o); err != nil {
			return err
		}
		if err := s.appendEvent(ctx, tx, o.ID, domain.EventOrderCreated, domain.OrderCreated{
			OrderID:     o.ID,
			CustomerID:  o.CustomerID,
			Status:      o.Status,
			TotalAmount: o.TotalAmount.StringFixed(2),
			Items:       domain.EventItems(o.Items),
			CreatedBy:   o.CreatedBy,
			OccurredAt:  now,
		}); err != nil {
			return err
		}
		created = o
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.log.Info("order created", "order_id", created.ID, "customer_id", created.CustomerID, "total_amount", created.TotalAmount.StringFixed(2))
	s.notify(ctx, in.ActorID, "New order created",
		fmt.Sprintf("New order #%d was created for customer %s", created.ID, created.CustomerName),
		notifdomain.KindSuccess, created.ID)
	return created, nil
}

// UpdateOrder applies notes, status and, when in.Items is set, a wholesale
// item replacement in one transaction. Old items are released only if they
// held stock; new items are reserved only if the resulting status holds stock.
func (s *Service) UpdateOrder(ctx context.Context, id int64, in domain.UpdateInput) (domain.Order, error) {
	target, err := in.Validate()
	if err != nil {
		return domain.Order{}, s.fail("update", err)
	}

	var (
		updated domain.Order
		from    domain.Status
	)
	err = s.withinTx(ctx, "update", func(ctx context.Context, tx Tx, ledger *invapp.Ledger) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		from = o.Status
		to := from
		if target != nil {
			to = *target
		}

		released := false
		if in.Items != nil {
			if err := ledger.Acquire(ctx, append(domain.ProductIDs(o.Items), inputProductIDs(*in.Items)...)); err != nil {
				return err
			}
			if from.HoldsReservations() {
				if err := releaseItems(ctx, ledger, o.Items); err != nil {
					return err
				}
				released = true
			}
			items, err := s.reserveItems(ctx, ledger, *in.Items, to.HoldsReservations())
			if err != nil {
				return err
			}
			saved, err := tx.ReplaceItems(ctx, o.ID, items)
			if err != nil {
				return err
			}
			o.SetItems(saved)
		} else if domain.Transition(from, to) == domain.EffectRelease {
			if err := releaseItems(ctx, ledger, o.Items); err != nil {
				return err
			}
			released = true
		}

		now := s.now()
		o.Status = to
		if in.Notes != nil {
			o.Notes = in.Notes
		}
		o.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}

		if err := s.appendEvent(ctx, tx, o.ID, domain.EventOrderUpdated, domain.OrderUpdated{
			OrderID:       o.ID,
			Status:        o.Status,
			TotalAmount:   o.TotalAmount.StringFixed(2),
			ItemsReplaced: in.Items != nil,
			Items:         domain.EventItems(o.Items),
			OccurredAt:    now,
		}); err != nil {
			return err
		}
		if from != to {
			if err := s.appendStatusChanged(ctx, tx, o.ID, from, to, released && domain.Transition(from, to) == domain.EffectRelease, in.ActorID, now); err != nil {
				return err
			}
		}
		updated = o
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.log.Info("order updated", "order_id", updated.ID, "items_replaced", in.Items != nil, "status", updated.Status)
	if from != updated.Status {
		s.notifyStatusChange(ctx, in.ActorID, updated.ID, from, updated.Status)
	}
	return updated, nil
}

// SetStatus moves the order to status. Entering cancelled releases the stock
// of every item; leaving cancelled reserves nothing.
func (s *Service) SetStatus(ctx context.Context, id int64, status string, actorID int64) (domain.Order, error) {
	if status == "" {
		return domain.Order{}, s.fail("set_status", apperror.Validation("status is required"))
	}
	to, err := domain.ParseStatus(status)
	if err != nil {
		return domain.Order{}, s.fail("set_status", err)
	}

	var (
		updated domain.Order
		from    domain.Status
	)
	err = s.withinTx(ctx, "set_status", func(ctx context.Context, tx Tx, ledger *invapp.Ledger) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		from = o.Status

		effect := domain.Transition(from, to)
		if effect == domain.EffectRelease {
			if err := releaseItems(ctx, ledger, o.Items); err != nil {
				return err
			}
		}

		now := s.now()
		o.Status = to
		o.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return err
		}
		if err := s.appendStatusChanged(ctx, tx, o.ID, from, to, effect == domain.EffectRelease, actorID, now); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.log.Info("order status changed", "order_id", updated.ID, "from", from, "to", to)
	s.notifyStatusChange(ctx, actorID, updated.ID, from, to)
	return updated, nil
}

func (s *Service) DeleteOrder(ctx context.Context, id int64) error {
	err := s.withinTx(ctx, "delete", func(ctx context.Context, tx Tx, ledger *invapp.Ledger) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if o.HoldsReservations() {
			if err := releaseItems(ctx, ledger, o.Items); err != nil {
				return err
			}
		}
		if err := tx.DeleteOrder(ctx, o.ID); err != nil {
			return err
		}
		return s.appendEvent(ctx, tx, o.ID, domain.EventOrderDeleted, domain.OrderDeleted{OrderID: o.ID, OccurredAt: s.now()})
	})
	if err != nil {
		return err
	}
	s.log.Info("order deleted", "order_id", id)
	return nil
}

func (s *Service) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	o, err := s.reader.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, normalize(ctx, err)
	}
	return o, nil
}

func (s *Service) ListOrders(ctx context.Context, f domain.ListFilter) (domain.Page, error) {
	page, err := s.reader.ListOrders(ctx, f.Normalize())
	if err != nil {
		return domain.Page{}, normalize(ctx, err)
	}
	return page, nil
}

// Stats counts orders by status and sums revenue over completed orders.
func (s *Service) Stats(ctx context.Context) (domain.Stats, error) {
	var version int64
	useCache := s.cache != nil && s.now().UnixNano() >= s.bypassUntil.Load()
	if useCache {
		stats, v, ok, err := s.cache.Get(ctx)
		switch {
		case err != nil:
			s.log.Warn("stats cache read failed", "err", err)
		case ok:
			return stats, nil
		default:
			version = v
		}
	}

	rows, err := s.reader.StatusTotals(ctx)
	if err != nil {
		return domain.Stats{}, normalize(ctx, err)
	}
	stats := domain.NewStats(rows)

	if useCache {
		if err := s.cache.Set(ctx, version, stats); err != nil {
			s.log.Warn("stats cache write failed", "err", err)
		}
	}
	return stats, nil
}

func (s *Service) withinTx(ctx context.Context, op string, fn func(ctx context.Context, tx Tx, ledger *invapp.Ledger) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var ledger *invapp.Ledger
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		ledger = invapp.NewLedger(s.log, tx, movementRecorder{s.metrics})
		if err := fn(ctx, tx, ledger); err != nil {
			// After a storage failure the transaction is unusable and the
			// rollback alone undoes the movements.
			if apperror.KindOf(err) != apperror.KindInternal {
				if moves := ledger.Movements(); len(moves) > 0 {
					s.log.Debug("reverting stock movements", "op", op, "count", len(moves), "movements", moves)
				}
				if rerr := ledger.Revert(ctx); rerr != nil {
					s.log.Warn("ledger revert failed", "op", op, "err", rerr)
				}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return s.fail(op, normalize(ctx, err))
	}

	ledger.Commit()
	s.metrics.ObserveOperation(op, "ok")
	s.invalidateStats(ctx)
	return nil
}

func (s *Service) reserveItems(ctx context.Context, ledger *invapp.Ledger, inputs []domain.ItemInput, reserve bool) ([]domain.OrderItem, error) {
	if err := ledger.Acquire(ctx, inputProductIDs(inputs)); err != nil {
		return nil, err
	}
	items := make([]domain.OrderItem, 0, len(inputs))
	for _, in := range inputs {
		p, err := ledger.Product(ctx, in.ProductID)
		if err != nil {
			return nil, err
		}
		if reserve {
			if err := ledger.Reserve(ctx, p.ID, in.Quantity); err != nil {
				return nil, err
			}
		}
		price := p.Price
		if in.Price != nil {
			price = *in.Price
		}
		items = append(items, domain.OrderItem{
			ProductID:    p.ID,
			ProductName:  p.Name,
			Quantity:     in.Quantity,
			PriceAtOrder: price.Round(2),
		})
	}
	return items, nil
}

func releaseItems(ctx context.Context, ledger *invapp.Ledger, items []domain.OrderItem) error {
	if err := ledger.Acquire(ctx, domain.ProductIDs(items)); err != nil {
		return err
	}
	for _, item := range items {
		if err := ledger.Release(ctx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func inputProductIDs(inputs []domain.ItemInput) []int64 {
	ids := make([]int64, 0, len(inputs))
	for _, in := range inputs {
		ids = append(ids, in.ProductID)
	}
	return ids
}

func (s *Service) appendEvent(ctx context.Context, tx Tx, orderID int64, eventType string, payload any) error {
	ev, err := outbox.NewEvent(ctx, aggregateType, strconv.FormatInt(orderID, 10), eventType, payload)
	if err != nil {
		return apperror.Internal(err, "build %s event", eventType)
	}
	return tx.AppendOutbox(ctx, ev)
}

func (s *Service) appendStatusChanged(ctx context.Context, tx Tx, orderID int64, from, to domain.Status, released bool, actorID int64, at time.Time) error {
	return s.appendEvent(ctx, tx, orderID, domain.EventOrderStatusChanged, domain.OrderStatusChanged{
		OrderID:       orderID,
		From:          from,
		To:            to,
		StockReleased: released,
		ChangedBy:     actorID,
		OccurredAt:    at,
	})
}

func (s *Service) notifyStatusChange(ctx context.Context, actorID, orderID int64, from, to domain.Status) {
	s.notify(ctx, actorID, "Order status updated",
		fmt.Sprintf("Order #%d status changed from %s to %s", orderID, from, to),
		notifdomain.KindInfo, orderID)
}

// notify runs after commit. The committed order is authoritative, so a
// failed delivery is only logged.
func (s *Service) notify(ctx context.Context, userID int64, title, message string, kind notifdomain.Kind, orderID int64) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(context.WithoutCancel(ctx), userID, title, message, kind, orderID); err != nil {
		s.log.Warn("order notification failed", "order_id", orderID, "user_id", userID, "err", err)
	}
}

func (s *Service) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(context.WithoutCancel(ctx)); err != nil {
		// The entry cached before this mutation may live for up to one TTL.
		s.bypassUntil.Store(s.now().Add(s.statsTTL).UnixNano())
		s.log.Warn("stats cache invalidation failed, bypassing cache", "ttl", s.statsTTL, "err", err)
	}
}

func (s *Service) fail(op string, err error) error {
	s.metrics.ObserveOperation(op, string(apperror.KindOf(err)))
	if apperror.KindOf(err) == apperror.KindInternal {
		s.log.Error("order operation failed", "op", op, "err", err)
	}
	return err
}

// normalize maps any error outside the taxonomy to an internal one.
func normalize(ctx context.Context, err error) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperror.Internal(err, "operation did not complete in time")
	}
	return apperror.Internal(err, "storage failure")
}

type movementRecorder struct{ metrics Metrics }

func (r movementRecorder) RecordMovement(m invdomain.Movement) {
	r.metrics.ObserveStock(string(m.Direction), m.Quantity)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, string) {}
func (noopMetrics) ObserveStock(string, int)        {}
