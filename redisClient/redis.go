package redisClient

import (
	"fmt"
	"time"

	"github.com/go-redis/redis"
)

// NewClient connects to Redis and verifies the connection with a PING.
func NewClient(addr, password string, db int) (*redis.Client, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if _, err := rc.Ping().Result(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("could not connect to redis at %s: %w", addr, err)
	}
	return rc, nil
}

// Store keeps per-call transcripts in Redis lists that expire after TTL.
type Store struct {
	rc  *redis.Client
	ttl time.Duration
}

func NewStore(rc *redis.Client, ttl time.Duration) *Store {
	return &Store{rc: rc, ttl: ttl}
}

func key(callId string) string {
	return "transcript:" + callId
}
