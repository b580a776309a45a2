package events

import (
	"testing"
	"time"
)

func TestPublish_NilPublisherNeverPanics(t *testing.T) {
	var p *Publisher
	p.Publish(TopicSwapInitialized, SwapEvent{Reference: "OFFRAMP_1", OccurredAt: time.Now()})
}

func TestPublish_NilKafkaClientNeverPanics(t *testing.T) {
	p := New(nil, nil)
	p.Publish(TopicSwapConfirmed, SwapEvent{Reference: "OFFRAMP_2", OccurredAt: time.Now()})
}
