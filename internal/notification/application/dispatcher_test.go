package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-ledger/internal/notification/domain"
)

type stubSink struct {
	name string
	err  error
	got  []domain.Notification
}

func (s *stubSink) Name() string { return s.name }

func (s *stubSink) Send(ctx context.Context, n domain.Notification) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("missing deadline")
	}
	s.got = append(s.got, n)
	return s.err
}

type countingObserver map[string]int

func (c countingObserver) ObserveNotification(sink string, err error) {
	if err != nil {
		sink += ":error"
	}
	c[sink]++
}

func TestDispatcherNotify_FansOutAndJoinsErrors(t *testing.T) {
	db := &stubSink{name: "postgres"}
	broker := &stubSink{name: "kafka", err: errors.New("no brokers")}
	obs := countingObserver{}
	d := NewDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)), time.Second, obs, db, broker)
	d.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	err := d.Notify(context.Background(), 7, "New order created", "Order #12 created", domain.KindSuccess, 12)

	require.Error(t, err)
	assert.ErrorContains(t, err, "kafka: no brokers")
	require.Len(t, db.got, 1)
	assert.Equal(t, int64(7), db.got[0].UserID)
	require.NotNil(t, db.got[0].RelatedOrderID)
	assert.Equal(t, int64(12), *db.got[0].RelatedOrderID)
	assert.Len(t, broker.got, 1)
	assert.Equal(t, countingObserver{"postgres": 1, "kafka:error": 1}, obs)
}

func TestDispatcherNotify_NoSinks(t *testing.T) {
	d := NewDispatcher(slog.New(slog.NewTextHandler(io.Discard, nil)), time.Second, nil)
	assert.NoError(t, d.Notify(context.Background(), 1, "t", "m", domain.KindInfo, 0))
}
