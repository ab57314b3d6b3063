package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/AVVKavvk/voz-balance/models"
)

// TranscriptStore is where consumed transcripts end up.
type TranscriptStore interface {
	AppendTranscript(ctx context.Context, transcript models.TranscriptModel) error
}

// queueSpec holds the QueueDeclare arguments for the transcript queue.
type queueSpec struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
}

// transcriptQueue is shared by every replica, so each transcript is stored
// once no matter how many processes consume.
func transcriptQueue(name string) queueSpec {
	return queueSpec{Name: name}
}

// Consume binds the shared transcript queue to the exchange and stores every
// delivery until ctx is done or the channel closes.
func Consume(ctx context.Context, conn *amqp.Connection, exchange, queue string, store TranscriptStore) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := declareExchange(ch, exchange); err != nil {
		return err
	}
	spec := transcriptQueue(queue)
	q, err := ch.QueueDeclare(spec.Name, spec.Durable, spec.AutoDelete, spec.Exclusive, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	msgs, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	log.Info().Str("exchange", exchange).Str("queue", q.Name).Msg("waiting for transcripts")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			handleDelivery(ctx, d.Body, store)
		}
	}
}

func handleDelivery(ctx context.Context, body []byte, store TranscriptStore) {
	var transcript models.TranscriptModel
	if err := json.Unmarshal(body, &transcript); err != nil {
		log.Error().Err(err).Bytes("body", body).Msg("drop malformed transcript")
		return
	}
	if err := store.AppendTranscript(ctx, transcript); err != nil {
		log.Error().Err(err).Str("call_sid", transcript.CallId).Msg("store transcript")
	}
}
