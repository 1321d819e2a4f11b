package pricefeed_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zeebo/assert"

	"dexdash-backend/internal/pricefeed"
)

func update(symbol string, price float64) pricefeed.PriceUpdate {
	return pricefeed.PriceUpdate{Symbol: symbol, Price: price, Timestamp: time.Now()}
}

func TestLatestAndSnapshot(t *testing.T) {
	store := pricefeed.NewStore()

	_, ok := store.Latest("OKB")
	assert.False(t, ok)

	store.Set(update("OKB", 52.45))
	store.Set(update("ETH", 2650))
	store.Set(update("OKB", 53.10))

	u, ok := store.Latest("OKB")
	assert.True(t, ok)
	assert.Equal(t, 53.10, u.Price)

	snap := store.Snapshot()
	assert.Equal(t, 2, len(snap))
	assert.Equal(t, 2650.0, snap["ETH"].Price)
}

func TestTimestampDefaulted(t *testing.T) {
	store := pricefeed.NewStore()
	store.Set(pricefeed.PriceUpdate{Symbol: "OKB", Price: 52.45})

	u, ok := store.Latest("OKB")
	assert.True(t, ok)
	assert.False(t, u.Timestamp.IsZero())
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	store := pricefeed.NewStore()
	ch, cancel := store.Subscribe()
	defer cancel()

	store.Set(update("OKB", 52.45))

	select {
	case u := <-ch:
		assert.Equal(t, "OKB", u.Symbol)
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}
}

func TestSlowSubscriberNeverBlocksSet(t *testing.T) {
	store := pricefeed.NewStore()
	_, cancel := store.Subscribe() // never read
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			store.Set(update("OKB", float64(i)))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Set blocked on a slow subscriber")
	}
}

// Subscribers joining and cancelling while the poller writes must never
// crash the writer: a cancelled subscription's channel may be closed at any
// moment relative to a Set in flight.
func TestSetDuringSubscriberChurn(t *testing.T) {
	store := pricefeed.NewStore()

	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				ch, cancel := store.Subscribe()
				select {
				case <-ch:
				default:
				}
				cancel()
			}
		}()
	}

	for i := 0; i < 2000; i++ {
		store.Set(update("OKB", float64(i)))
	}
	close(done)
	wg.Wait()
}

func TestCancelClosesChannel(t *testing.T) {
	store := pricefeed.NewStore()
	ch, cancel := store.Subscribe()
	cancel()
	cancel() // double cancel is safe

	_, open := <-ch
	assert.False(t, open)
}

// staticSource scripts poll results.
type staticSource struct {
	polls   int64
	updates []pricefeed.PriceUpdate
}

func (s *staticSource) Fetch(ctx context.Context, symbols []string) ([]pricefeed.PriceUpdate, error) {
	atomic.AddInt64(&s.polls, 1)
	return s.updates, nil
}

func TestPollerWritesToStore(t *testing.T) {
	store := pricefeed.NewStore()
	source := &staticSource{updates: []pricefeed.PriceUpdate{update("OKB", 52.45)}}
	poller := pricefeed.NewPoller(source, store, []string{"OKB"}, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	poller.Run(ctx)

	u, ok := store.Latest("OKB")
	assert.True(t, ok)
	assert.Equal(t, 52.45, u.Price)
	assert.True(t, atomic.LoadInt64(&source.polls) >= 2)
}
