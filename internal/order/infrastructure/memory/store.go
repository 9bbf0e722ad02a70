package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"

	invdomain "github.com/dmehra2102/order-ledger/internal/inventory/domain"
	"github.com/dmehra2102/order-ledger/internal/order/application"
	"github.com/dmehra2102/order-ledger/internal/order/domain"
	"github.com/dmehra2102/order-ledger/pkg/apperror"
	"github.com/dmehra2102/order-ledger/pkg/outbox"
)

// Store keeps orders and stock in process memory. Transactions run one at a
// time against a private copy of the state, which replaces the shared state
// only on commit.
type Store struct {
	mu    sync.Mutex
	state *state
}

type state struct {
	customers   map[int64]domain.Customer
	products    map[int64]invdomain.Product
	orders      map[int64]domain.Order
	outbox      []outbox.Event
	nextOrderID int64
	nextItemID  int64
	nextEventID int64
}

func NewStore() *Store {
	return &Store{state: &state{
		customers: make(map[int64]domain.Customer),
		products:  make(map[int64]invdomain.Product),
		orders:    make(map[int64]domain.Order),
	}}
}

func (st *state) clone() *state {
	orders := make(map[int64]domain.Order, len(st.orders))
	for id, o := range st.orders {
		o.Items = slices.Clone(o.Items)
		orders[id] = o
	}
	return &state{
		customers:   maps.Clone(st.customers),
		products:    maps.Clone(st.products),
		orders:      orders,
		outbox:      slices.Clone(st.outbox),
		nextOrderID: st.nextOrderID,
		nextItemID:  st.nextItemID,
		nextEventID: st.nextEventID,
	}
}

func (s *Store) AddCustomer(c domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.customers[c.ID] = c
}

func (s *Store) AddProduct(p invdomain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.products[p.ID] = p
}

func (s *Store) Product(id int64) (invdomain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.products[id]
	return p, ok
}

func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.orders)
}

func (s *Store) Outbox() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.outbox)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.state.clone()
	if err := fn(ctx, &tx{st: work}); err != nil {
		return err
	}
	// A context that expired mid-transaction aborts the commit.
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) GetOrder(_ context.Context, id int64) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.state.orders[id]
	if !ok {
		return domain.Order{}, apperror.NotFound("order %d not found", id)
	}
	o.Items = slices.Clone(o.Items)
	return o, nil
}

func (s *Store) ListOrders(_ context.Context, f domain.ListFilter) (domain.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []domain.Order
	for _, o := range s.state.orders {
		if f.Status != "" && string(o.Status) != f.Status {
			continue
		}
		if f.CustomerID != 0 && o.CustomerID != f.CustomerID {
			continue
		}
		o.Items = slices.Clone(o.Items)
		matched = append(matched, o)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	start := min(f.Offset(), total)
	end := min(start+f.PerPage, total)
	return domain.NewPage(matched[start:end], total, f), nil
}

func (s *Store) StatusTotals(_ context.Context) ([]domain.StatusTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byStatus := make(map[domain.Status]*domain.StatusTotals)
	for _, o := range s.state.orders {
		t, ok := byStatus[o.Status]
		if !ok {
			t = &domain.StatusTotals{Status: o.Status}
			byStatus[o.Status] = t
		}
		t.Count++
		t.Amount = t.Amount.Add(o.TotalAmount)
	}
	out := make([]domain.StatusTotals, 0, len(byStatus))
	for _, t := range byStatus {
		out = append(out, *t)
	}
	return out, nil
}

type tx struct {
	st *state
}

func (t *tx) LockProducts(_ context.Context, ids []int64) (map[int64]invdomain.Product, error) {
	out := make(map[int64]invdomain.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.st.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *tx) AdjustStock(_ context.Context, productID int64, delta int) error {
	p, ok := t.st.products[productID]
	if !ok {
		return apperror.NotFound("product with id %d not found", productID)
	}
	if p.StockQuantity+delta < 0 {
		return apperror.InsufficientStock("insufficient stock for product %s", p.Name)
	}
	p.StockQuantity += delta
	t.st.products[productID] = p
	return nil
}

func (t *tx) Customer(_ context.Context, id int64) (domain.Customer, error) {
	c, ok := t.st.customers[id]
	if !ok {
		return domain.Customer{}, apperror.NotFound("customer not found")
	}
	return c, nil
}

func (t *tx) InsertOrder(_ context.Context, o *domain.Order) error {
	t.st.nextOrderID++
	o.ID = t.st.nextOrderID
	o.Items = t.assignItemIDs(o.Items)
	stored := *o
	stored.Items = slices.Clone(o.Items)
	t.st.orders[o.ID] = stored
	return nil
}

func (t *tx) LockOrder(_ context.Context, id int64) (domain.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return domain.Order{}, apperror.NotFound("order %d not found", id)
	}
	o.Items = slices.Clone(o.Items)
	return o, nil
}

func (t *tx) UpdateOrder(_ context.Context, o domain.Order) error {
	cur, ok := t.st.orders[o.ID]
	if !ok {
		return apperror.NotFound("order %d not found", o.ID)
	}
	cur.Status = o.Status
	cur.Notes = o.Notes
	cur.TotalAmount = o.TotalAmount
	cur.UpdatedAt = o.UpdatedAt
	t.st.orders[o.ID] = cur
	return nil
}

func (t *tx) ReplaceItems(_ context.Context, orderID int64, items []domain.OrderItem) ([]domain.OrderItem, error) {
	cur, ok := t.st.orders[orderID]
	if !ok {
		return nil, apperror.NotFound("order %d not found", orderID)
	}
	saved := t.assignItemIDs(items)
	cur.Items = slices.Clone(saved)
	t.st.orders[orderID] = cur
	return saved, nil
}

func (t *tx) DeleteOrder(_ context.Context, id int64) error {
	if _, ok := t.st.orders[id]; !ok {
		return apperror.NotFound("order %d not found", id)
	}
	delete(t.st.orders, id)
	return nil
}

func (t *tx) AppendOutbox(_ context.Context, ev outbox.Event) error {
	t.st.nextEventID++
	ev.ID = t.st.nextEventID
	t.st.outbox = append(t.st.outbox, ev)
	return nil
}

func (t *tx) assignItemIDs(items []domain.OrderItem) []domain.OrderItem {
	out := slices.Clone(items)
	for i := range out {
		t.st.nextItemID++
		out[i].ID = t.st.nextItemID
	}
	return out
}

func (s *Store) Ping(context.Context) error { return nil }
