package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/order-ledger/internal/notification/domain"
)

type Sink interface {
	Name() string
	Send(ctx context.Context, n domain.Notification) error
}

type Observer interface {
	ObserveNotification(sink string, err error)
}

// Dispatcher fans a notification out to every sink. Delivery is best effort:
// each sink gets its own attempt, failures are logged and joined, nothing is
// retried.
type Dispatcher struct {
	log      *slog.Logger
	sinks    []Sink
	timeout  time.Duration
	observer Observer
	now      func() time.Time
}

func NewDispatcher(log *slog.Logger, timeout time.Duration, observer Observer, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		log:      log,
		sinks:    sinks,
		timeout:  timeout,
		observer: observer,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (d *Dispatcher) Notify(ctx context.Context, userID int64, title, message string, kind domain.Kind, relatedOrderID int64) error {
	n := domain.Notification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Kind:      kind,
		CreatedAt: d.now(),
	}
	if relatedOrderID > 0 {
		n.RelatedOrderID = &relatedOrderID
	}
	return d.Dispatch(ctx, n)
}

func (d *Dispatcher) Dispatch(ctx context.Context, n domain.Notification) error {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	var errs []error
	for _, sink := range d.sinks {
		err := sink.Send(ctx, n)
		if d.observer != nil {
			d.observer.ObserveNotification(sink.Name(), err)
		}
		if err != nil {
			d.log.Warn("notification delivery failed", "sink", sink.Name(), "user_id", n.UserID, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
