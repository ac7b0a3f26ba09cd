package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_StartsAtEpoch(t *testing.T) {
	clock := NewClock()
	assert.Equal(t, Epoch, clock.Peek())
	assert.Equal(t, Epoch, clock.Now())
}

func TestClock_NowAdvancesMonotonically(t *testing.T) {
	clock := NewClock()

	first := clock.Now()
	second := clock.Now()
	third := clock.Now()

	assert.Equal(t, time.Second, second.Sub(first))
	assert.Equal(t, time.Second, third.Sub(second))
	assert.Equal(t, Epoch.Add(3*time.Second), clock.Peek())
}

func TestClock_Reset(t *testing.T) {
	clock := NewClock()
	clock.Now()
	clock.Now()

	clock.Reset()
	assert.Equal(t, Epoch, clock.Now())
}

func TestClock_ThreadSafe(t *testing.T) {
	clock := NewClock()
	const goroutines = 50
	const calls = 100

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[time.Time]bool)
	)
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range calls {
				ts := clock.Now()
				mu.Lock()
				seen[ts] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, goroutines*calls)
	assert.Equal(t, Epoch.Add(goroutines*calls*time.Second), clock.Peek())
}

func TestClock_Deterministic(t *testing.T) {
	a, b := NewClock(), NewClock()
	for range 20 {
		assert.Equal(t, a.Now(), b.Now())
	}
}
