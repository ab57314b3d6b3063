package redisClient

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AVVKavvk/voz-balance/models"
)

// AppendTranscript pushes one utterance onto the call's list and refreshes its expiry.
func (s *Store) AppendTranscript(_ context.Context, transcript models.TranscriptModel) error {
	if transcript.CallId == "" {
		return fmt.Errorf("transcript without call id")
	}
	k := key(transcript.CallId)
	pipe := s.rc.TxPipeline()
	pipe.RPush(k, &transcript)
	if s.ttl > 0 {
		pipe.Expire(k, s.ttl)
	}
	if _, err := pipe.Exec(); err != nil {
		return fmt.Errorf("append transcript %s: %w", k, err)
	}
	return nil
}

// GetAllTranscript returns the call's utterances in arrival order.
func (s *Store) GetAllTranscript(_ context.Context, callId string) ([]models.TranscriptModel, error) {
	vals, err := s.rc.LRange(key(callId), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read transcript %s: %w", key(callId), err)
	}

	transcript := make([]models.TranscriptModel, 0, len(vals))
	for _, v := range vals {
		var t models.TranscriptModel
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			return nil, fmt.Errorf("decode transcript entry: %w", err)
		}
		transcript = append(transcript, t)
	}
	return transcript, nil
}
