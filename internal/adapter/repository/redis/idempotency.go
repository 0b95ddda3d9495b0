// Package redis implements the idempotency store on Redis. The postgres
// unique index on idempotency_key remains the durable guard; this store
// is the fast path that also serves replayed results without touching
// the database.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tallyhq/tally/internal/domain"
	"github.com/tallyhq/tally/internal/usecase"
)

const (
	statePending   = "pending"
	stateCompleted = "completed"
)

type record struct {
	State  string          `json:"state"`
	Hash   string          `json:"hash"`
	Result json.RawMessage `json:"result,omitempty"`
}

// IdempotencyStore implements usecase.IdempotencyStore using Redis.
// Pending reservations expire after the lease so a crashed holder cannot
// wedge its key; completed records live for the retention window.
type IdempotencyStore struct {
	client    *redis.Client
	prefix    string
	lease     time.Duration
	retention time.Duration
}

// NewIdempotencyStore creates a new IdempotencyStore.
func NewIdempotencyStore(client *redis.Client, lease, retention time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		client:    client,
		prefix:    "idempotency:",
		lease:     lease,
		retention: retention,
	}
}

// Reserve atomically claims the key, or reports the prior outcome for it.
func (s *IdempotencyStore) Reserve(ctx context.Context, key, requestHash string) (*usecase.Reservation, error) {
	fullKey := s.prefix + key

	pending, err := json.Marshal(record{State: statePending, Hash: requestHash})
	if err != nil {
		return nil, err
	}

	set, err := s.client.SetNX(ctx, fullKey, pending, s.lease).Result()
	if err != nil {
		return nil, err
	}
	if set {
		return &usecase.Reservation{}, nil
	}

	raw, err := s.client.Get(ctx, fullKey).Bytes()
	if errors.Is(err, redis.Nil) {
		// The holder expired or released between SetNX and Get; claim it.
		return s.Reserve(ctx, key, requestHash)
	}
	if err != nil {
		return nil, err
	}

	var existing record
	if err := json.Unmarshal(raw, &existing); err != nil {
		return nil, err
	}

	if existing.Hash != requestHash {
		return nil, domain.ErrIdempotencyConflict
	}
	if existing.State == stateCompleted {
		return &usecase.Reservation{Replayed: true, Result: existing.Result}, nil
	}

	return nil, domain.ErrIdempotencyInProgress
}

// Complete stores the final result for the key.
func (s *IdempotencyStore) Complete(ctx context.Context, key string, result []byte) error {
	fullKey := s.prefix + key

	raw, err := s.client.Get(ctx, fullKey).Bytes()
	if err != nil {
		return err
	}

	var existing record
	if err := json.Unmarshal(raw, &existing); err != nil {
		return err
	}

	completed, err := json.Marshal(record{
		State:  stateCompleted,
		Hash:   existing.Hash,
		Result: result,
	})
	if err != nil {
		return err
	}

	return s.client.Set(ctx, fullKey, completed, s.retention).Err()
}

// Release frees an uncompleted reservation so a retry can claim the key.
// Completed records are left in place for replay.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	fullKey := s.prefix + key

	raw, err := s.client.Get(ctx, fullKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	var existing record
	if err := json.Unmarshal(raw, &existing); err != nil {
		return err
	}
	if existing.State == stateCompleted {
		return nil
	}

	return s.client.Del(ctx, fullKey).Err()
}
