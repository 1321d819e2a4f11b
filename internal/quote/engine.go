// Package quote computes swap quotes from cached prices and exposes the
// debounced, last-issued-wins request scheduler the trading form relies on.
package quote

import (
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"dexdash-backend/internal/apperr"
	"dexdash-backend/internal/chains"
	"dexdash-backend/internal/pricefeed"
)

// PriceSource is the read-only view of the live price cache the engine
// consumes. It must never block.
type PriceSource interface {
	Latest(symbol string) (pricefeed.PriceUpdate, bool)
}

// Params are the logical inputs of one quote request. Token identities are
// symbols; address resolution happens at the HTTP layer.
type Params struct {
	TokenIn     string
	TokenOut    string
	AmountIn    string
	ChainID     int64
	SlippagePct float64
}

// Quote is one computed exchange quote. Ephemeral; superseded by any newer
// request for the same inputs.
type Quote struct {
	AmountIn       decimal.Decimal `json:"amountIn"`
	AmountOut      decimal.Decimal `json:"amountOut"`
	ExchangeRate   decimal.Decimal `json:"exchangeRate"`
	PriceImpactPct decimal.Decimal `json:"priceImpactPct"`
	GasEstimate    decimal.Decimal `json:"gasEstimate"`
	Route          []string        `json:"route"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Stale reports whether the quote is older than ttl and must be re-validated
// before authorizing a swap.
func (q *Quote) Stale(now time.Time, ttl time.Duration) bool {
	return now.Sub(q.CreatedAt) > ttl
}

// FallbackRates is the static USD price table used when the live feed has no
// value for a symbol. Mirrors the dashboard's built-in table.
func FallbackRates() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"BTC":   decimal.NewFromInt(43250),
		"ETH":   decimal.NewFromInt(2650),
		"OKB":   decimal.NewFromFloat(52.45),
		"USDT":  decimal.NewFromInt(1),
		"USDC":  decimal.NewFromInt(1),
		"BNB":   decimal.NewFromFloat(315.8),
		"ADA":   decimal.NewFromFloat(0.485),
		"SOL":   decimal.NewFromFloat(98.75),
		"MATIC": decimal.NewFromFloat(0.89),
		"AVAX":  decimal.NewFromFloat(36.2),
	}
}

// impactDepth models the liquidity depth the price impact curve is computed
// against: impact = notional / (notional + depth), in percent.
var impactDepth = decimal.NewFromInt(1_000_000)

// gas cost model: a base swap plus a per-hop surcharge, in native units.
var (
	gasBase   = decimal.NewFromFloat(0.005)
	gasPerHop = decimal.NewFromFloat(0.0015)
)

// Engine computes quotes and schedules debounced requests. One engine
// serves one logical caller (a trading form session); the debounce slot is
// engine-wide.
type Engine struct {
	registry *chains.Registry
	prices   PriceSource
	fallback map[string]decimal.Decimal
	window   time.Duration
	ttl      time.Duration
	defSlip  float64

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	latest  *Quote
	results chan *Quote
}

// NewEngine builds an engine. window is the debounce interval (zero means
// 500ms); defaultSlippage is the slippage percentage applied when a request
// carries none.
func NewEngine(registry *chains.Registry, prices PriceSource, window time.Duration, defaultSlippage float64) *Engine {
	if window <= 0 {
		window = 500 * time.Millisecond
	}
	return &Engine{
		registry: registry,
		prices:   prices,
		fallback: FallbackRates(),
		window:   window,
		ttl:      10 * time.Second,
		defSlip:  defaultSlippage,
		results:  make(chan *Quote, 1),
	}
}

// WithTTL replaces the quote freshness window. Returns the engine for
// chaining during construction; not safe once requests are in flight.
func (e *Engine) WithTTL(ttl time.Duration) *Engine {
	if ttl > 0 {
		e.ttl = ttl
	}
	return e
}

// WithFallback replaces the static rate table. Returns the engine for
// chaining during construction; not safe once requests are in flight.
func (e *Engine) WithFallback(rates map[string]decimal.Decimal) *Engine {
	e.fallback = rates
	return e
}

// validate rejects bad inputs before anything is scheduled or any price is
// read.
func (e *Engine) validate(p Params) (decimal.Decimal, error) {
	if _, err := e.registry.Resolve(p.ChainID); err != nil {
		return decimal.Decimal{}, err
	}
	in := strings.ToUpper(strings.TrimSpace(p.TokenIn))
	out := strings.ToUpper(strings.TrimSpace(p.TokenOut))
	if in == "" || out == "" {
		return decimal.Decimal{}, apperr.Validation("both tokens are required")
	}
	if in == out {
		return decimal.Decimal{}, apperr.Validation("cannot quote %s against itself", in)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(p.AmountIn))
	if err != nil {
		return decimal.Decimal{}, apperr.Validation("amount %q is not a decimal number", p.AmountIn)
	}
	if amount.Sign() <= 0 {
		return decimal.Decimal{}, apperr.Validation("amount must be positive")
	}
	if p.SlippagePct < 0 || p.SlippagePct > 50 {
		return decimal.Decimal{}, apperr.Validation("slippage must be within 0..50")
	}
	return amount, nil
}

// price resolves the USD price of a symbol: live feed first, static table
// second.
func (e *Engine) price(symbol string) (decimal.Decimal, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if e.prices != nil {
		if u, ok := e.prices.Latest(symbol); ok && u.Price > 0 {
			return decimal.NewFromFloat(u.Price), nil
		}
	}
	if rate, ok := e.fallback[symbol]; ok {
		return rate, nil
	}
	return decimal.Decimal{}, apperr.Provider(nil, "no price available for %s", symbol)
}

// QuoteNow validates and computes a quote immediately, bypassing the
// debounce slot. This is the path direct HTTP calls take.
func (e *Engine) QuoteNow(p Params) (*Quote, error) {
	amount, err := e.validate(p)
	if err != nil {
		return nil, err
	}
	return e.compute(p, amount)
}

func (e *Engine) compute(p Params, amount decimal.Decimal) (*Quote, error) {
	priceIn, err := e.price(p.TokenIn)
	if err != nil {
		return nil, err
	}
	priceOut, err := e.price(p.TokenOut)
	if err != nil {
		return nil, err
	}
	if priceOut.Sign() <= 0 {
		return nil, apperr.Provider(nil, "non-positive price for %s", p.TokenOut)
	}

	// Zero means "apply the default"; a literal zero-slippage quote is not
	// representable through this interface.
	slip := p.SlippagePct
	if slip == 0 {
		slip = e.defSlip
	}
	slipFactor := decimal.NewFromFloat(1).Sub(decimal.NewFromFloat(slip / 100))

	rate := priceIn.DivRound(priceOut, 18)
	amountOut := amount.Mul(rate).Mul(slipFactor)

	notional := amount.Mul(priceIn)
	impact := notional.DivRound(notional.Add(impactDepth), 8).Mul(decimal.NewFromInt(100))

	route := []string{strings.ToUpper(p.TokenIn), strings.ToUpper(p.TokenOut)}
	gas := gasBase.Add(gasPerHop.Mul(decimal.NewFromInt(int64(len(route)))))

	return &Quote{
		AmountIn:       amount,
		AmountOut:      amountOut,
		ExchangeRate:   rate,
		PriceImpactPct: impact,
		GasEstimate:    gas,
		Route:          route,
		CreatedAt:      time.Now(),
	}, nil
}

// Request schedules a debounced quote. Only the most recent request inside
// the window executes; an older in-flight computation can never overwrite a
// newer result (last-issued-wins, enforced by a generation counter). The
// executed result lands in Results and Latest.
func (e *Engine) Request(p Params) error {
	amount, err := e.validate(p)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	gen := e.gen
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.window, func() {
		e.execute(gen, p, amount)
	})
	return nil
}

func (e *Engine) execute(gen uint64, p Params, amount decimal.Decimal) {
	q, err := e.compute(p, amount)
	if err != nil {
		// A failed quote leaves the previous result visible; the caller sees
		// staleness through CreatedAt.
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		// Superseded while computing; discard, never merge.
		return
	}
	e.latest = q
	select {
	case e.results <- q:
	default:
		// Drop the unread previous result so the newest is observable.
		select {
		case <-e.results:
		default:
		}
		select {
		case e.results <- q:
		default:
		}
	}
}

// Latest returns the most recent executed quote while it is still within
// the freshness window. A stale quote is reported as absent; the caller
// must request a new one before acting on it.
func (e *Engine) Latest() (*Quote, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.latest == nil || e.latest.Stale(time.Now(), e.ttl) {
		return nil, false
	}
	return e.latest, true
}

// Results delivers executed quotes, newest-wins when the caller lags.
func (e *Engine) Results() <-chan *Quote {
	return e.results
}
