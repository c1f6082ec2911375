// Package idempotency holds the contract shared by the delivering and receiving
// sides of a webhook round.
package idempotency

import (
	"context"
	"time"
)

const (
	HeaderKey    = "X-Idempotency-Key"
	HeaderNoteID = "X-Note-Id"

	DefaultTTL = 24 * time.Hour
)

// Guard records processed keys. Reserve reports true only for the first caller
// of a key within its TTL; the check and the write happen in one step.
type Guard interface {
	Reserve(ctx context.Context, key string) (bool, error)
}
