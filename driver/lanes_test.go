package driver

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLanesRunSameKeyInOrder(t *testing.T) {
	l := newLanes(4)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		i := i
		l.enqueue("gcc", func() {
			defer wg.Done()
			time.Sleep(time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestLanesRunDifferentKeysConcurrently(t *testing.T) {
	l := newLanes(4)

	var inFlight atomic.Int32
	var maxInFlight atomic.Int32
	var wg sync.WaitGroup

	for _, key := range []string{"gcc", "clang", "msvc"} {
		wg.Add(1)
		key := key
		l.enqueue(key, func() {
			defer wg.Done()
			n := inFlight.Add(1)
			for {
				cur := maxInFlight.Load()
				if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
		})
	}
	wg.Wait()

	assert.Greater(t, maxInFlight.Load(), int32(1))
}
