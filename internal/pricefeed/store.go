// Package pricefeed holds the live price cache and the poller feeding it.
// Consumers only ever read the latest cached value per symbol; nothing in
// the request path blocks on a live update arriving.
package pricefeed

import (
	"sync"
	"time"

	"dexdash-backend/internal/metrics"
)

// PriceUpdate is one observation from the live price source.
type PriceUpdate struct {
	Symbol       string    `json:"symbol"`
	Price        float64   `json:"price"`
	Change24h    float64   `json:"change24h"`
	ChangePct24h float64   `json:"changePct24h"`
	Volume24h    float64   `json:"volume24h"`
	MarketCap    float64   `json:"marketCap"`
	High24h      float64   `json:"high24h"`
	Low24h       float64   `json:"low24h"`
	Timestamp    time.Time `json:"timestamp"`
}

// Store is the injected price state: get-latest, set, subscribe. Writers
// never block on slow subscribers; a subscriber that cannot keep up misses
// updates instead of stalling the feed.
type Store struct {
	mu     sync.RWMutex
	latest map[string]PriceUpdate
	subs   map[int]chan PriceUpdate
	nextID int
}

// NewStore creates an empty price store.
func NewStore() *Store {
	return &Store{
		latest: make(map[string]PriceUpdate),
		subs:   make(map[int]chan PriceUpdate),
	}
}

// Latest returns the most recent update for symbol, if any.
func (s *Store) Latest(symbol string) (PriceUpdate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.latest[symbol]
	return u, ok
}

// Snapshot returns a copy of every cached update.
func (s *Store) Snapshot() map[string]PriceUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]PriceUpdate, len(s.latest))
	for k, v := range s.latest {
		out[k] = v
	}
	return out
}

// Set records an update and fans it out to subscribers without blocking.
// Delivery happens under the lock so a concurrent cancel can never close a
// channel mid-send; the sends are non-blocking, so the lock is held only
// briefly.
func (s *Store) Set(u PriceUpdate) {
	if u.Timestamp.IsZero() {
		u.Timestamp = time.Now()
	}
	s.mu.Lock()
	s.latest[u.Symbol] = u
	for _, ch := range s.subs {
		select {
		case ch <- u:
		default:
		}
	}
	s.mu.Unlock()

	metrics.PriceUpdates.Inc()
}

// Subscribe registers a listener for future updates. The returned cancel
// function must be called to release the subscription; after cancel the
// channel is closed.
func (s *Store) Subscribe() (<-chan PriceUpdate, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan PriceUpdate, 64)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}
