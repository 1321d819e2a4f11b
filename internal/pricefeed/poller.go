package pricefeed

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "pricefeed").Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "pricefeed").Logger()
}

// Source fetches current prices for a set of symbols. The production source
// is the OKX spot ticker endpoint; tests inject updates directly.
type Source interface {
	Fetch(ctx context.Context, symbols []string) ([]PriceUpdate, error)
}

// Poller periodically pulls from a Source into a Store.
type Poller struct {
	source   Source
	store    *Store
	symbols  []string
	interval time.Duration
}

// NewPoller creates a poller. interval zero means 5s.
func NewPoller(source Source, store *Store, symbols []string, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{source: source, store: store, symbols: symbols, interval: interval}
}

// Run polls until ctx is cancelled. Fetch failures are logged and retried on
// the next tick; consumers keep reading the last good values meanwhile.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	updates, err := p.source.Fetch(ctx, p.symbols)
	if err != nil {
		log.Warn().Err(err).Msg("price fetch failed")
		return
	}
	for _, u := range updates {
		p.store.Set(u)
	}
	log.Debug().Int("updates", len(updates)).Msg("price poll complete")
}
