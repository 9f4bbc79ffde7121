// Package keylock provides per-key mutual exclusion over a lazily
// populated concurrent map. Locks are never removed; the key space is
// bounded by active user/strategy pairs.
package keylock

import (
	"fmt"
	"sync"
)

type KeyLock struct {
	locks sync.Map // string -> *sync.Mutex
}

func New() *KeyLock {
	return &KeyLock{}
}

func (k *KeyLock) lockFor(key string) *sync.Mutex {
	if mu, ok := k.locks.Load(key); ok {
		return mu.(*sync.Mutex)
	}
	mu, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Acquire blocks until the lock for key is held and returns its release
// function. Callers must invoke release exactly once, typically deferred.
func (k *KeyLock) Acquire(key string) (release func()) {
	mu := k.lockFor(key)
	mu.Lock()
	var once sync.Once
	return func() {
		once.Do(mu.Unlock)
	}
}

// UserStrategyKey builds the composite key serializing all reconciliation
// and close paths for one subscriber of one strategy.
func UserStrategyKey(userID int64, strategyID string) string {
	return fmt.Sprintf("%d_%s", userID, strategyID)
}
