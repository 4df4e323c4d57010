package autosave

import (
	"context"
	"sync"

	"github.com/mamadbah2/mouldtrack/internal/domain/models"
)

type lockKey struct {
	ref   models.UnitRef
	field models.Field
}

// keyLocks serializes saves of the same (unit, field) pair.
type keyLocks struct {
	mu    sync.Mutex
	slots map[lockKey]chan struct{}
}

func newKeyLocks() *keyLocks {
	return &keyLocks{slots: make(map[lockKey]chan struct{})}
}

func (k *keyLocks) acquire(ctx context.Context, key lockKey) (func(), error) {
	k.mu.Lock()
	slot, ok := k.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		k.slots[key] = slot
	}
	k.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
