package ledger

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
)

type EventType string

const (
	EventTransactionPosted   EventType = "TransactionPosted"
	EventTransactionsRemoved EventType = "TransactionsRemoved"
)

// Event announces a ledger change for one item.
type Event struct {
	EventID      string              `json:"event_id"`
	EventType    EventType           `json:"event_type"`
	ItemID       string              `json:"item_id"`
	Barcode      string              `json:"barcode"`
	Quantity     int                 `json:"quantity"`
	Transactions []model.Transaction `json:"transactions"`
	Timestamp    time.Time           `json:"timestamp"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoopPublisher drops every event. Used when messaging is disabled.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
