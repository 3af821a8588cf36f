package settings

import (
	"context"
	"time"
)

type Repository interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, at time.Time) error
}
