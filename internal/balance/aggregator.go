// Package balance aggregates wallet token balances across a chain with
// bounded concurrency and partial-success semantics: one token's failure is
// recorded and never cancels or delays its siblings.
package balance

import (
	"context"
	"errors"
	"math/big"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dexdash-backend/internal/apperr"
	"dexdash-backend/internal/chains"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "balance").Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "balance").Logger()
}

// Provider is the read surface the aggregator needs from the RPC pool.
type Provider interface {
	NativeBalance(ctx context.Context, chainID int64, addr string) (*big.Int, error)
	ERC20BalanceOf(ctx context.Context, chainID int64, token, wallet string) (*big.Int, error)
	ERC20Decimals(ctx context.Context, chainID int64, token string) (uint8, error)
}

// TokenRef identifies one token to look up. Address is the contract address,
// or the zero-address sentinel for the native coin.
type TokenRef struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

// Entry is one successfully read, positive balance.
type Entry struct {
	Token      TokenRef `json:"token"`
	RawBalance string   `json:"rawBalance"`
	Formatted  string   `json:"formattedBalance"`
}

// Failure records one token whose lookup failed. The token is omitted from
// the entries but the failure stays observable to the caller.
type Failure struct {
	Token  TokenRef `json:"token"`
	Reason string   `json:"reason"`
}

// Result is the partial-success outcome of one aggregation.
type Result struct {
	Entries  []Entry   `json:"entries"`
	Failures []Failure `json:"failures"`
}

// Aggregator fans out per-token balance reads through a provider pool.
type Aggregator struct {
	registry  *chains.Registry
	provider  Provider
	maxTokens int
	maxInFly  int
}

// NewAggregator builds an aggregator. maxTokens caps the token list per
// request (the specific tokens kept beyond the cap are whatever the caller
// sent first, deliberately unspecified); maxInFlight bounds concurrent RPC
// lookups.
func NewAggregator(registry *chains.Registry, provider Provider, maxTokens, maxInFlight int) *Aggregator {
	if maxTokens <= 0 {
		maxTokens = 20
	}
	if maxInFlight <= 0 {
		maxInFlight = 8
	}
	return &Aggregator{
		registry:  registry,
		provider:  provider,
		maxTokens: maxTokens,
		maxInFly:  maxInFlight,
	}
}

// Aggregate reads the wallet's balance for every token in tokens on the
// given chain. Zero balances are silently dropped; per-token failures are
// collected, not propagated. An unknown chain or malformed wallet fails
// the whole request before any RPC call is issued.
func (a *Aggregator) Aggregate(ctx context.Context, wallet string, chainID int64, tokens []TokenRef) (Result, error) {
	cfg, err := a.registry.Resolve(chainID)
	if err != nil {
		return Result{}, err
	}
	if !common.IsHexAddress(wallet) {
		return Result{}, apperr.Validation("malformed wallet address %q", wallet)
	}

	tokens = dedupe(tokens)
	if len(tokens) > a.maxTokens {
		tokens = tokens[:a.maxTokens]
	}

	type slot struct {
		entry *Entry
		fail  *Failure
	}
	slots := make([]slot, len(tokens))

	sem := make(chan struct{}, a.maxInFly)
	var wg sync.WaitGroup
	for i, token := range tokens {
		wg.Add(1)
		go func(i int, token TokenRef) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			entry, err := a.lookup(ctx, cfg, wallet, chainID, token)
			if err != nil {
				log.Debug().
					Int64("chain", chainID).
					Str("token", token.Address).
					Err(err).
					Msg("balance lookup failed")
				slots[i].fail = &Failure{Token: token, Reason: failureReason(err)}
				return
			}
			slots[i].entry = entry
		}(i, token)
	}
	wg.Wait()

	result := Result{Entries: make([]Entry, 0, len(tokens)), Failures: nil}
	for _, s := range slots {
		switch {
		case s.entry != nil:
			result.Entries = append(result.Entries, *s.entry)
		case s.fail != nil:
			result.Failures = append(result.Failures, *s.fail)
		}
	}
	return result, nil
}

// lookup reads one token. A nil entry with nil error means a zero balance.
func (a *Aggregator) lookup(ctx context.Context, cfg chains.ChainConfig, wallet string, chainID int64, token TokenRef) (*Entry, error) {
	if chains.IsNativeToken(token.Address) {
		raw, err := a.provider.NativeBalance(ctx, chainID, wallet)
		if err != nil {
			return nil, err
		}
		if raw.Sign() <= 0 {
			return nil, nil
		}
		native := TokenRef{
			Address:  chains.NativeTokenAddress,
			Symbol:   cfg.NativeSymbol,
			Name:     cfg.NativeName,
			Decimals: cfg.NativeDecimals,
		}
		return newEntry(native, raw), nil
	}

	// balanceOf and decimals are independent reads, issued together. A
	// balance without decimals cannot be formatted, so a decimals failure
	// fails the token even when balanceOf succeeded.
	var (
		raw      *big.Int
		balErr   error
		decimals uint8
		decErr   error
		wg       sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		raw, balErr = a.provider.ERC20BalanceOf(ctx, chainID, token.Address, wallet)
	}()
	go func() {
		defer wg.Done()
		decimals, decErr = a.provider.ERC20Decimals(ctx, chainID, token.Address)
	}()
	wg.Wait()

	if balErr != nil {
		return nil, balErr
	}
	if decErr != nil {
		return nil, decErr
	}
	if raw.Sign() <= 0 {
		return nil, nil
	}
	token.Decimals = decimals
	return newEntry(token, raw), nil
}

func newEntry(token TokenRef, raw *big.Int) *Entry {
	formatted := decimal.NewFromBigInt(raw, -int32(token.Decimals)).String()
	return &Entry{
		Token:      token,
		RawBalance: raw.String(),
		Formatted:  formatted,
	}
}

// dedupe drops repeated token addresses, keeping first occurrence, and
// lowercases addresses so identity comparisons are uniform.
func dedupe(tokens []TokenRef) []TokenRef {
	seen := make(map[string]bool, len(tokens))
	out := make([]TokenRef, 0, len(tokens))
	for _, t := range tokens {
		addr := strings.ToLower(strings.TrimSpace(t.Address))
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		t.Address = addr
		out = append(out, t)
	}
	return out
}

func failureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var e *apperr.E
	if errors.As(err, &e) {
		return e.Msg
	}
	return err.Error()
}
