package service

import (
	"sync"
	"testing"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := newKeyedMutex()
	counters := map[string]int{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		key := instanceKey([]string{"a", "b"}[i%2])
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock(key)
			defer unlock()
			mu.Lock()
			counters[key]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	if counters[instanceKey("a")] != 25 || counters[instanceKey("b")] != 25 {
		t.Fatalf("unexpected counts: %v", counters)
	}
	if n := km.size(); n != 0 {
		t.Fatalf("expected idle entries to be released, got %d", n)
	}
}

func TestKeyedMutexKeysAreIndependent(t *testing.T) {
	km := newKeyedMutex()
	unlockA := km.Lock(templateKey("x"))
	done := make(chan struct{})
	go func() {
		unlock := km.Lock(instanceKey("x"))
		unlock()
		close(done)
	}()
	<-done
	unlockA()
}
