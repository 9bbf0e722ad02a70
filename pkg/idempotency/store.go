package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	Header   = "Idempotency-Key"
	inFlight = "in_flight"
)

type Client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Response is a stored reply replayed for a repeated key.
type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type Store struct {
	rdb Client
	ttl time.Duration
}

func NewStore(rdb Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Key scopes a client key to the acting user and the request target, so the
// same key on two endpoints never collides.
func (s *Store) Key(r *http.Request, userID string) string {
	return fmt.Sprintf("idem:%s:%s:%s:%s", userID, r.Method, r.URL.Path, strings.TrimSpace(r.Header.Get(Header)))
}

// Claim marks key as in flight. When the key was already claimed it returns
// the stored response, or nil while the first request is still running.
func (s *Store) Claim(ctx context.Context, key string) (claimed bool, stored *Response, err error) {
	ok, err := s.rdb.SetNX(ctx, key, inFlight, s.ttl).Result()
	if err != nil {
		return false, nil, err
	}
	if ok {
		return true, nil, nil
	}

	raw, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// Released between the two calls; let the caller retry.
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	if raw == inFlight {
		return false, nil, nil
	}
	var resp Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return false, nil, fmt.Errorf("decode stored response: %w", err)
	}
	return false, &resp, nil
}

func (s *Store) Complete(ctx context.Context, key string, resp Response) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, raw, s.ttl).Err()
}

// Release forgets key so the request can be retried.
func (s *Store) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
