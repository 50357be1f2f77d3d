package memory

import (
	"sync"
	"testing"
)

func TestKeyLockSerializesSameKey(t *testing.T) {
	l := NewKeyLock()

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := l.Lock("k")
			counter++
			release()
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Errorf("expected 100, got %d", counter)
	}
}

func TestKeyLockDistinctKeysDoNotBlock(t *testing.T) {
	l := NewKeyLock()

	releaseA := l.Lock("a")
	done := make(chan struct{})
	go func() {
		release := l.Lock("b")
		release()
		close(done)
	}()
	<-done
	releaseA()
}

func TestKeyLockMultiKeyAscendingOrder(t *testing.T) {
	l := NewKeyLock()

	// two goroutines each take the same two keys in the same order; key
	// independence means neither can deadlock the other
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 50; n++ {
				r1 := l.Lock("k1")
				r2 := l.Lock("k2")
				r2()
				r1()
			}
		}()
	}
	wg.Wait()
}

func TestKeyLockDropsIdleEntries(t *testing.T) {
	l := NewKeyLock()

	release := l.Lock("k")
	release()

	l.mu.Lock()
	remaining := len(l.entries)
	l.mu.Unlock()
	if remaining != 0 {
		t.Errorf("expected empty table, got %d entries", remaining)
	}
}
