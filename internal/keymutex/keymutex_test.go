package keymutex

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWith_SerializesAccessToSameKey(t *testing.T) {
	m := New()
	var counter int
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.With("user-1", func() {
				cur := counter
				time.Sleep(time.Microsecond)
				counter = cur + 1
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestWith_DoesNotSerializeAcrossDifferentKeys(t *testing.T) {
	m := New()
	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make([]bool, 2)

	for i, key := range []string{"a", "b"} {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			<-start
			m.With(key, func() {
				results[i] = true
				time.Sleep(10 * time.Millisecond)
			})
		}(i, key)
	}
	close(start)
	wg.Wait()
	assert.True(t, results[0])
	assert.True(t, results[1])
}

func TestLockUnlock_RelockAfterUnlock(t *testing.T) {
	m := New()
	m.Lock("k")
	m.Unlock("k")
	m.Lock("k")
	m.Unlock("k")
}
