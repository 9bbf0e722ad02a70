package kafka

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/order-ledger/internal/notification/domain"
	"github.com/dmehra2102/order-ledger/pkg/outbox"
	"github.com/dmehra2102/order-ledger/pkg/tracing"
)

type Publisher struct {
	producer outbox.Producer
	topic    string
}

func NewPublisher(producer outbox.Producer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

func (p *Publisher) Name() string { return "kafka" }

func (p *Publisher) Send(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	headers := []kafka.Header{{Key: "notification_type", Value: []byte(n.Kind)}}
	return p.producer.WriteMessages(ctx, kafka.Message{
		Topic:   p.topic,
		Key:     []byte(strconv.FormatInt(n.UserID, 10)),
		Value:   payload,
		Headers: tracing.InjectKafkaHeaders(ctx, headers),
		Time:    n.CreatedAt,
	})
}
