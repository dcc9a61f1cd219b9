package listener

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fekuna/omnipos-stock-service/internal/ledger"
	"github.com/fekuna/omnipos-stock-service/internal/ledger/dto"
	"github.com/fekuna/omnipos-stock-service/pkg/logger"
)

const EventSaleCompleted = "SaleCompleted"

// MessageReader is satisfied by *broker.KafkaConsumer.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type SaleListener struct {
	consumer   MessageReader
	uc         ledger.UseCase
	logger     logger.ZapLogger
	retryDelay time.Duration
}

func NewSaleListener(consumer MessageReader, uc ledger.UseCase, logger logger.ZapLogger) *SaleListener {
	return &SaleListener{
		consumer:   consumer,
		uc:         uc,
		logger:     logger,
		retryDelay: time.Second,
	}
}

// Start consumes until ctx is cancelled.
func (l *SaleListener) Start(ctx context.Context) {
	l.logger.Info("Starting sale Kafka listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping sale Kafka listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(l.retryDelay):
				}
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

type SaleCompletedEvent struct {
	EventID   string      `json:"event_id"`
	EventType string      `json:"event_type"`
	Payload   SalePayload `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

type SalePayload struct {
	ID      string            `json:"id"`
	Channel string            `json:"channel"`
	Date    *time.Time        `json:"date"`
	Lines   []SaleLinePayload `json:"lines"`
}

type SaleLinePayload struct {
	ItemID   string `json:"item_id"`
	Barcode  string `json:"barcode"`
	Quantity int    `json:"quantity"`
}

// processMessage books one sale. Rejected sales are logged and skipped; the
// offset still advances so a bad event cannot block the partition.
func (l *SaleListener) processMessage(ctx context.Context, value []byte) {
	var event SaleCompletedEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	if event.EventType != EventSaleCompleted {
		return
	}

	log := l.logger.With(zap.String("sale_id", event.Payload.ID), zap.String("event_id", event.EventID))
	log.Info("Processing SaleCompleted event", zap.Int("lines", len(event.Payload.Lines)))

	input := &dto.SaleInput{
		Channel: event.Payload.Channel,
		Date:    event.Payload.Date,
	}
	for _, line := range event.Payload.Lines {
		input.Lines = append(input.Lines, dto.SaleLine{
			ItemID:   line.ItemID,
			Barcode:  line.Barcode,
			Quantity: line.Quantity,
		})
	}

	res, err := l.uc.CompleteSale(logger.WithContext(ctx, log), input)
	if err != nil {
		log.Error("Failed to complete sale", zap.Error(err))
		return
	}
	log.Info("Sale booked", zap.Int("transactions", len(res.Transactions)))
}
