package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fekuna/omnipos-stock-service/internal/ledger"
)

// Producer is satisfied by *broker.KafkaProducer.
type Producer interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// KafkaPublisher sends ledger events keyed by item id, so every movement of
// one item stays ordered on a single partition.
type KafkaPublisher struct {
	producer Producer
}

func NewKafkaPublisher(p Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: p}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event ledger.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.EventType, err)
	}
	if err := p.producer.Publish(ctx, event.ItemID, value); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.EventType, err)
	}
	return nil
}
