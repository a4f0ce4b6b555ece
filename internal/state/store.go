package state

import "context"

// Store is a small key/value store for process state that must survive a
// restart.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}
