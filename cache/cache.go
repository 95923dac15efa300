package cache

import (
	"context"
	"time"
)

// Handler is the key/value persistence collaborator consumed by operations
// and flows. Values belong to a small closed set of kinds, each carried with
// a type-appropriate encoding, and every entry tracks creation, update and
// expiry timestamps in a sidecar metadata record.
//
// A ttl of zero or less means the entry never expires. Load and Exists treat
// expired entries as absent; implementations clean them up opportunistically.
type Handler interface {
	Save(ctx context.Context, key string, value Value, ttl time.Duration) error
	Load(ctx context.Context, key string) (Value, bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
}
