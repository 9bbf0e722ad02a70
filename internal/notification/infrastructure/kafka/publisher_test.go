package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-ledger/internal/notification/domain"
)

type captureProducer struct{ msgs []kafka.Message }

func (c *captureProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func TestPublisherSend(t *testing.T) {
	prod := &captureProducer{}
	p := NewPublisher(prod, "notifications")
	orderID := int64(9)

	err := p.Send(context.Background(), domain.Notification{
		UserID:         3,
		Title:          "Order status updated",
		Message:        "Order #9 status changed from pending to shipped",
		Kind:           domain.KindInfo,
		RelatedOrderID: &orderID,
		CreatedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Len(t, prod.msgs, 1)

	msg := prod.msgs[0]
	assert.Equal(t, "notifications", msg.Topic)
	assert.Equal(t, "3", string(msg.Key))

	var got map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, "info", got["type"])
	assert.Equal(t, float64(9), got["related_order_id"])
}
