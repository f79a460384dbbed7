package market

import (
	"sync"
	"time"
)

// Entry is a cached tick plus the local time it was written. Staleness checks
// use ReceivedAt so a feed that replays old exchange timestamps cannot keep a
// dead price alive.
type Entry struct {
	Tick       Tick
	ReceivedAt time.Time
}

// PriceCache holds the latest known tick per (exchange, symbol). Writes are
// last-write-wins per key; there is no cross-key coordination. One instance is
// created at startup and injected everywhere a price is read.
type PriceCache struct {
	mu      sync.RWMutex
	entries map[string]map[string]Entry // exchange -> symbol -> entry
	nowFn   func() time.Time
}

func NewPriceCache() *PriceCache {
	return &PriceCache{
		entries: make(map[string]map[string]Entry),
		nowFn:   time.Now,
	}
}

func (c *PriceCache) Put(t Tick) {
	if t.Exchange == "" || t.Symbol == "" {
		return
	}
	c.mu.Lock()
	bysym, ok := c.entries[t.Exchange]
	if !ok {
		bysym = make(map[string]Entry)
		c.entries[t.Exchange] = bysym
	}
	bysym[t.Symbol] = Entry{Tick: t, ReceivedAt: c.nowFn()}
	c.mu.Unlock()
}

func (c *PriceCache) Get(exchange, sym string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bysym, ok := c.entries[exchange]
	if !ok {
		return Entry{}, false
	}
	e, ok := bysym[sym]
	return e, ok
}

// Latest returns the freshest entry for a symbol across all exchanges,
// preferring the most recently received tick.
func (c *PriceCache) Latest(sym string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var best Entry
	found := false
	for _, bysym := range c.entries {
		e, ok := bysym[sym]
		if !ok {
			continue
		}
		if !found || e.ReceivedAt.After(best.ReceivedAt) {
			best = e
			found = true
		}
	}
	return best, found
}

// LatestFresh is Latest restricted to entries younger than maxAge. The second
// return reports whether any entry exists at all, the third whether the
// freshest one is usable.
func (c *PriceCache) LatestFresh(sym string, maxAge time.Duration) (Entry, bool, bool) {
	e, ok := c.Latest(sym)
	if !ok {
		return Entry{}, false, false
	}
	if maxAge > 0 && c.nowFn().Sub(e.ReceivedAt) > maxAge {
		return e, true, false
	}
	return e, true, true
}

// Symbols lists every symbol currently cached on any exchange.
func (c *PriceCache) Symbols() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, bysym := range c.entries {
		for sym := range bysym {
			if _, ok := seen[sym]; ok {
				continue
			}
			seen[sym] = struct{}{}
			out = append(out, sym)
		}
	}
	return out
}
