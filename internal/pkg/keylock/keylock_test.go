package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserStrategyKey(t *testing.T) {
	assert.Equal(t, "7_btc-momentum", UserStrategyKey(7, "btc-momentum"))
	assert.NotEqual(t, UserStrategyKey(7, "a"), UserStrategyKey(7, "b"))
	assert.NotEqual(t, UserStrategyKey(1, "a"), UserStrategyKey(2, "a"))
}

func TestAcquireSerializesSameKey(t *testing.T) {
	locks := New()
	const workers = 50
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.Acquire("k")
			defer release()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, workers, counter)
}

func TestAcquireDistinctKeysDoNotBlock(t *testing.T) {
	locks := New()
	releaseA := locks.Acquire("a")
	defer releaseA()

	done := make(chan struct{})
	go func() {
		release := locks.Acquire("b")
		release()
		close(done)
	}()
	<-done
}

func TestReleaseIsIdempotent(t *testing.T) {
	locks := New()
	release := locks.Acquire("k")
	release()
	// a second call must not unlock someone else's acquisition
	release()

	reacquired := locks.Acquire("k")
	reacquired()
}
