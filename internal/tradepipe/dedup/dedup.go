package dedup

import (
	"sync"
	"time"
)

// Deduper remembers transaction hashes the pipeline has already handled so
// overlapping backfills and re-scans do not spend classifier calls twice.
// The store's hash uniqueness remains the correctness boundary; this is a
// cost-saving cache in front of it.
type Deduper interface {
	// SeenOrAdd reports whether hash was already recorded and not expired;
	// if not, it records it as of now.
	SeenOrAdd(hash string, now time.Time) (bool, error)
	// Evict drops entries whose TTL has elapsed at now.
	Evict(now time.Time) error
	Close() error
}

// Nop never remembers anything.
type Nop struct{}

func (Nop) SeenOrAdd(string, time.Time) (bool, error) { return false, nil }
func (Nop) Evict(time.Time) error                     { return nil }
func (Nop) Close() error                              { return nil }

// Memory is a TTL deduper backed by a map plus an insertion-order queue for
// cheap eviction. Safe for use from concurrent pipeline workers.
type Memory struct {
	mu   sync.Mutex
	ttl  time.Duration
	m    map[string]int64 // hash -> expire unix sec
	q    []memItem        // insertion order
	head int              // pop index
}

type memItem struct {
	hash     string
	expireTs int64
}

func NewMemory(ttl time.Duration, capHint int) *Memory {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if capHint < 0 {
		capHint = 0
	}
	return &Memory{
		ttl: ttl,
		m:   make(map[string]int64, capHint),
		q:   make([]memItem, 0, capHint),
	}
}

func (d *Memory) Close() error { return nil }

func (d *Memory) SeenOrAdd(hash string, now time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	nowTs := now.Unix()
	if exp, ok := d.m[hash]; ok && exp >= nowTs {
		return true, nil
	}
	// absent or expired: (re)record
	exp := nowTs + int64(d.ttl/time.Second)
	d.m[hash] = exp
	d.q = append(d.q, memItem{hash: hash, expireTs: exp})
	return false, nil
}

func (d *Memory) Evict(now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	nowTs := now.Unix()
	for d.head < len(d.q) {
		it := d.q[d.head]
		if it.expireTs >= nowTs {
			break
		}
		// only drop the map entry if it wasn't refreshed since
		if exp, ok := d.m[it.hash]; ok && exp == it.expireTs {
			delete(d.m, it.hash)
		}
		d.head++
	}

	// compact the queue once the dead prefix dominates
	if d.head > 4096 && d.head*2 > len(d.q) {
		rest := make([]memItem, len(d.q)-d.head)
		copy(rest, d.q[d.head:])
		d.q = rest
		d.head = 0
	}
	return nil
}
