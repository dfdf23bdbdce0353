package cache

import (
	"sync"
	"time"

	"lp-tracker/internal/domain"
)

type matchKey struct {
	puuid   string
	matchID string
}

// Result is what one rank fetch decided for a match: the LP change and the
// snapshot it produced.
type Result struct {
	Delta int
	After domain.RankSnapshot
}

type lpEntry struct {
	result     Result
	computedAt time.Time
}

// MatchLP memoizes the LP change of a (player, match) so every guild tracking the
// player reports the same number. An entry is write-once until it expires.
type MatchLP struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[matchKey]lpEntry
}

func NewMatchLP(ttl time.Duration) *MatchLP {
	return &MatchLP{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[matchKey]lpEntry),
	}
}

// WithClock swaps the time source, used by tests.
func (c *MatchLP) WithClock(now func() time.Time) *MatchLP {
	c.now = now
	return c
}

func (c *MatchLP) Get(puuid, matchID string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[matchKey{puuid, matchID}]
	if !ok || c.expired(e, c.now()) {
		return Result{}, false
	}
	return e.result, true
}

// Put stores r unless a live entry already exists; it reports whether it wrote.
func (c *MatchLP) Put(puuid, matchID string, r Result) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	key := matchKey{puuid, matchID}
	if e, ok := c.entries[key]; ok && !c.expired(e, now) {
		return false
	}
	c.entries[key] = lpEntry{result: r, computedAt: now}
	return true
}

func (c *MatchLP) EvictExpired(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for k, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, k)
			evicted++
		}
	}
	return evicted
}

func (c *MatchLP) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MatchLP) expired(e lpEntry, now time.Time) bool {
	return now.Sub(e.computedAt) > c.ttl
}
