// Package pricetable is the process-wide symbol -> {last, open24h} map fed
// by the market ticker stream (C2) and read by the task scheduler (C10) and
// the HTTP control plane. Sharded the same way the teacher's
// pkg/cache.ShardedPriceCache shards by symbol, but each slot stores an
// atomic pointer to an immutable Ticker so concurrent readers never observe
// a torn {last, open24h} pair.
package pricetable

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
)

const numShards = 16

// Ticker is an immutable snapshot of a symbol's last price and its 24h open.
type Ticker struct {
	Symbol  string
	Last    float64
	Open24h float64
}

// Table is the shared price table (C1).
type Table struct {
	shards [numShards]shard
}

type shard struct {
	items map[string]*atomic.Pointer[Ticker]
	mu    sync.RWMutex
}

// New creates an empty price table.
func New() *Table {
	t := &Table{}
	for i := range t.shards {
		t.shards[i].items = make(map[string]*atomic.Pointer[Ticker])
	}
	return t
}

func shardIndex(symbol string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return h.Sum32() % numShards
}

// Put updates (or creates) the ticker for symbol. Safe for concurrent use
// with any number of readers and writers.
func (t *Table) Put(symbol string, last, open24h float64) {
	s := &t.shards[shardIndex(symbol)]
	snap := &Ticker{Symbol: symbol, Last: last, Open24h: open24h}

	s.mu.RLock()
	slot, ok := s.items[symbol]
	s.mu.RUnlock()
	if ok {
		slot.Store(snap)
		return
	}

	s.mu.Lock()
	slot, ok = s.items[symbol]
	if !ok {
		slot = &atomic.Pointer[Ticker]{}
		s.items[symbol] = slot
	}
	s.mu.Unlock()
	slot.Store(snap)
}

// Get returns the current ticker for symbol, or false if it has never been
// observed. Per §3's invariant, callers must treat absence as "not yet
// available" rather than an error.
func (t *Table) Get(symbol string) (Ticker, bool) {
	s := &t.shards[shardIndex(symbol)]
	s.mu.RLock()
	slot, ok := s.items[symbol]
	s.mu.RUnlock()
	if !ok {
		return Ticker{}, false
	}
	snap := slot.Load()
	if snap == nil {
		return Ticker{}, false
	}
	return *snap, true
}

// Len returns the number of symbols currently tracked.
func (t *Table) Len() int {
	total := 0
	for i := range t.shards {
		t.shards[i].mu.RLock()
		total += len(t.shards[i].items)
		t.shards[i].mu.RUnlock()
	}
	return total
}

// Symbols returns a snapshot of all tracked symbols.
func (t *Table) Symbols() []string {
	out := make([]string, 0, t.Len())
	for i := range t.shards {
		t.shards[i].mu.RLock()
		for sym := range t.shards[i].items {
			out = append(out, sym)
		}
		t.shards[i].mu.RUnlock()
	}
	return out
}
