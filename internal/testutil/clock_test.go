package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedClock_StaysPut(t *testing.T) {
	start := time.Date(2023, 1, 4, 12, 0, 0, 0, time.UTC)
	clock := NewFixedClock(start)
	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start, clock.Now())
}

func TestFixedClock_Advance(t *testing.T) {
	start := time.Date(2023, 1, 4, 12, 0, 0, 0, time.UTC)
	clock := NewFixedClock(start)
	clock.Advance(36 * time.Hour)
	assert.Equal(t, time.Date(2023, 1, 6, 0, 0, 0, 0, time.UTC), clock.Now())
}

func TestFixedClock_ThreadSafe(t *testing.T) {
	clock := NewFixedClock(time.Unix(0, 0).UTC())
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				clock.Advance(time.Second)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, time.Unix(1000, 0).UTC(), clock.Now())
}
