package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateUnique(t *testing.T) {
	g := &Snowflake{workerID: 1}

	const n = 10000
	seen := make(map[int64]struct{}, n)
	for i := 0; i < n; i++ {
		id := g.Generate()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %d at iteration %d", id, i)
		}
		seen[id] = struct{}{}
	}
}

func TestGenerateConcurrent(t *testing.T) {
	g := &Snowflake{workerID: 2}

	const workers = 8
	const perWorker = 1000

	var mu sync.Mutex
	seen := make(map[int64]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]int64, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				ids = append(ids, g.Generate())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range ids {
				seen[id] = struct{}{}
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestGenerateMonotonic(t *testing.T) {
	g := &Snowflake{workerID: 3}

	prev := g.Generate()
	for i := 0; i < 1000; i++ {
		id := g.Generate()
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestBusinessNumbers(t *testing.T) {
	txn := GenerateTransactionNo()
	assert.True(t, strings.HasPrefix(txn, "TXN"))
	assert.Len(t, txn, 3+14+8)

	rch := GenerateRechargeNo()
	assert.True(t, strings.HasPrefix(rch, "RCH"))
	assert.Len(t, rch, 3+14+8)

	assert.NotEqual(t, txn[3:], rch[3:])
}
