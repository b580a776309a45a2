// Package worker holds the background Kafka consumers that run alongside
// the HTTP server in the same process, reacting to settlement lifecycle
// events published by internal/events.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/naijaswap/bridge/internal/events"
	"github.com/naijaswap/bridge/internal/funcs"
	"github.com/naijaswap/bridge/internal/store"
	"github.com/naijaswap/bridge/internal/stream"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

type AuditStore interface {
	AppendAuditEvent(ctx context.Context, event store.AuditEvent) error
}

type Worker struct {
	KafkaStream *stream.KafkaStream
	Audit       AuditStore
	Logger      *slog.Logger
}

func New(kafkaStream *stream.KafkaStream, audit AuditStore, logger *slog.Logger) *Worker {
	return &Worker{
		KafkaStream: kafkaStream,
		Audit:       audit,
		Logger:      logger,
	}
}

// ManualSettlementAuditWorker consumes every swap.manual_settlement event
// and appends it to a durable audit trail, independent of and redundant
// with the synchronous email alert the settlement engine already sends.
// This is what an ops dashboard or a reconciliation job would tail.
func (wk *Worker) ManualSettlementAuditWorker(ctx context.Context) {
	consumer, err := wk.KafkaStream.CreateConsumer(&stream.StreamConsumer{
		GroupId: events.NotificationConsumerGroup,
		Topic:   events.TopicManualSettlement,
	})
	if err != nil {
		wk.Logger.Error("manual settlement audit worker failed to start", "error", err)
		return
	}
	defer consumer.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ev := consumer.Poll(200)
		switch e := ev.(type) {
		case *kafka.Message:
			var swapEvent events.SwapEvent
			if err := json.Unmarshal(e.Value, &swapEvent); err != nil {
				wk.Logger.Error("failed to decode swap event", "error", err)
				continue
			}

			if err := wk.Audit.AppendAuditEvent(ctx, store.AuditEvent{
				Reference:  swapEvent.Reference,
				Type:       swapEvent.Type,
				Reason:     swapEvent.Reason,
				AmountNGN:  swapEvent.AmountNGN,
				OccurredAt: swapEvent.OccurredAt,
			}); err != nil {
				wk.Logger.Error("failed to append audit event", "error", err, "reference", swapEvent.Reference)
			}

			wk.Logger.Info("manual settlement audited", "reference", swapEvent.Reference, "reason", swapEvent.Reason, "ngnAmount", funcs.FormatNGN(swapEvent.AmountNGN))

		case kafka.Error:
			wk.Logger.Error("kafka consumer error", "error", e.Error())
		}
	}
}
