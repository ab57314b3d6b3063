package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/AVVKavvk/voz-balance/models"
)

// Producer publishes call transcripts to a direct exchange.
// A single channel is shared; amqp channels are not safe for concurrent
// publishing, so Publish serializes on mu.
type Producer struct {
	exchange string

	mu sync.Mutex
	ch *amqp.Channel
}

func NewProducer(conn *amqp.Connection, exchange string) (*Producer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareExchange(ch, exchange); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &Producer{exchange: exchange, ch: ch}, nil
}

// AppendTranscript publishes one utterance; the consumer stores it.
func (p *Producer) AppendTranscript(ctx context.Context, transcript models.TranscriptModel) error {
	body, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish transcript: %w", err)
	}
	return nil
}

func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.Close()
}
