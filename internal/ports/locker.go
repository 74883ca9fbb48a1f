package ports

import "context"

// Locker serializes work on a key. Lock blocks until the key is acquired or
// ctx is done; the returned func releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
