package usecase

import "time"

const (
	// DefaultTransactionTimeout bounds a storage transaction so a stuck
	// posting cannot hold account locks indefinitely.
	DefaultTransactionTimeout = 10 * time.Second

	// IdempotencyRetention is how long completed idempotency records are
	// kept so late retries still replay the original result.
	IdempotencyRetention = 24 * time.Hour

	// IdempotencyLease is how long an uncompleted reservation blocks the
	// key before a retry may reclaim it.
	IdempotencyLease = 30 * time.Second
)
