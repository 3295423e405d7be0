// File: core/queue/global_queue_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package queue

import (
	"sync"
	"testing"

	"github.com/momentics/hioload-fiber/fiber"
)

// TestGlobalQueueFIFO checks submission order is preserved.
func TestGlobalQueueFIFO(t *testing.T) {
	g := NewGlobalQueue()
	tk := tokens(10)
	for _, a := range tk {
		g.PushAddr(a)
	}
	if g.Len() != len(tk) {
		t.Fatalf("len %d, want %d", g.Len(), len(tk))
	}
	for i, want := range tk {
		a, ok := g.Pop()
		if !ok || a != want {
			t.Fatalf("pop %d: got %v ok=%v, want %v", i, a, ok, want)
		}
	}
	if _, ok := g.Pop(); ok {
		t.Fatal("pop on empty queue returned a value")
	}
}

// TestGlobalQueueConcurrent hammers the queue from multiple producers and
// consumers and checks nothing is lost or duplicated.
func TestGlobalQueueConcurrent(t *testing.T) {
	g := NewGlobalQueue()
	const producers = 4
	const perProducer = 5000
	tk := tokens(producers * perProducer)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(part []fiber.Addr) {
			defer wg.Done()
			for _, a := range part {
				g.PushAddr(a)
			}
		}(tk[p*perProducer : (p+1)*perProducer])
	}

	var mu sync.Mutex
	seen := make(map[fiber.Addr]bool)
	var cg sync.WaitGroup
	producersDone := make(chan struct{})
	for c := 0; c < 4; c++ {
		cg.Add(1)
		go func() {
			defer cg.Done()
			for {
				a, ok := g.Pop()
				if !ok {
					select {
					case <-producersDone:
						if g.Len() == 0 {
							return
						}
					default:
					}
					continue
				}
				mu.Lock()
				if seen[a] {
					mu.Unlock()
					t.Error("address popped twice")
					return
				}
				seen[a] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(producersDone)
	cg.Wait()

	if len(seen) != len(tk) {
		t.Fatalf("popped %d distinct addresses, want %d", len(seen), len(tk))
	}
}
