// Package events publishes settlement lifecycle events onto Kafka so that
// other services (reconciliation, analytics, the manual-settlement audit
// worker in this same binary) can react without coupling to the settlement engine
// directly.
package events

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/naijaswap/bridge/internal/stream"
)

const (
	TopicSwapInitialized     = "swap.initialized"
	TopicSwapConfirmed       = "swap.confirmed"
	TopicSwapFailed          = "swap.failed"
	TopicManualSettlement    = "swap.manual_settlement"
	NotificationConsumerGroup = "swap-notifications"
)

// SwapEvent is the wire shape published to every swap.* topic. Consumers
// key off Type to decide whether they care.
type SwapEvent struct {
	Type          string    `json:"type"`
	Reference     string    `json:"reference"`
	Direction     string    `json:"direction"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	SenderAddress string    `json:"senderAddress,omitempty"`
	AmountNGN     int64     `json:"amountNGN,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

type Publisher struct {
	kafka  *stream.KafkaStream
	logger *slog.Logger
}

func New(kafka *stream.KafkaStream, logger *slog.Logger) *Publisher {
	return &Publisher{kafka: kafka, logger: logger}
}

// Publish is best-effort: a Kafka outage must never block settlement, so
// failures are logged and swallowed rather than propagated to the caller.
func (p *Publisher) Publish(topic string, event SwapEvent) {
	if p == nil || p.kafka == nil {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal swap event", "error", err, "reference", event.Reference)
		return
	}

	if err := p.kafka.ProduceMessage(topic, string(body)); err != nil {
		p.logger.Error("failed to publish swap event", "error", err, "topic", topic, "reference", event.Reference)
	}
}
