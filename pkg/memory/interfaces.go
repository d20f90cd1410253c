package memory

import (
	"context"
	"time"
)

// Memory caches answers from remote collaborators. A ttl of zero or less
// keeps the entry until it is deleted. Get on a missing or expired key
// returns an error matching core.ErrNotFound.
type Memory interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
