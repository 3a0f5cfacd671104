// Package lock provides advisory edit locks keyed by entity and held by a session.
//
// A lock only keeps two editors from working on the same form at once. It can
// expire while a form is open, so writes still rely on the database
// transaction for correctness.
package lock

import (
	"context"
	"fmt"
	"time"
)

const DefaultTTL = time.Hour

// Key identifies a lockable entity, e.g. room:12.
type Key struct {
	Kind string
	ID   uint
}

func For(kind string, id uint) Key {
	return Key{Kind: kind, ID: id}
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d", k.Kind, k.ID)
}

type Manager interface {
	// Acquire takes the lock for holder, or refreshes it when holder already has it.
	// It fails with apperr.ErrAlreadyLocked when another holder has a live lock.
	Acquire(ctx context.Context, key Key, holder string) error
	// Release drops the lock if holder has it. Releasing a lock held by
	// someone else, or not held at all, is a no-op.
	Release(ctx context.Context, key Key, holder string) error
	IsHeldBy(ctx context.Context, key Key, holder string) (bool, error)
}
