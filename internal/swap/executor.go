// Package swap drives accepted quotes through the transaction lifecycle:
// pending until the confirmation watcher reports, then exactly one terminal
// transition. The transaction log is append-only for the process lifetime.
package swap

import (
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"dexdash-backend/internal/apperr"
	"dexdash-backend/internal/metrics"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "swap").Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "swap").Logger()
}

// Status is the lifecycle state of a swap transaction.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Transaction is one swap attempt. Immutable once terminal.
type Transaction struct {
	Hash       string    `json:"hash"`
	Status     Status    `json:"status"`
	FromToken  string    `json:"fromToken"`
	ToToken    string    `json:"toToken"`
	FromAmount string    `json:"fromAmount"`
	ToAmount   string    `json:"toAmount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Params describe the swap to execute.
type Params struct {
	FromToken  string
	ToToken    string
	FromAmount string
	ToAmount   string
}

// ErrSwapInFlight is returned when a session tries to start a second swap
// while one is still pending.
var ErrSwapInFlight = apperr.Validation("a swap is already in progress for this session")

// Watcher decides the terminal outcome of a pending transaction and reports
// it back asynchronously. The default simulates on-chain confirmation.
type Watcher func(tx Transaction, confirm func(hash string, success bool))

// SimulatedWatcher confirms after delay with successRate odds of success,
// matching the dashboard's demo confirmation behavior.
func SimulatedWatcher(delay time.Duration, successRate float64) Watcher {
	return func(tx Transaction, confirm func(string, bool)) {
		time.AfterFunc(delay, func() {
			confirm(tx.Hash, rand.Float64() < successRate)
		})
	}
}

type record struct {
	tx      Transaction
	session string
}

// Executor owns the session-scoped single-flight gate and the append-only
// transaction log. Safe for concurrent use by many sessions.
type Executor struct {
	watcher Watcher

	mu      sync.Mutex
	nonce   uint64
	txs     []*record          // append-only, newest last
	byHash  map[string]*record // identity index into txs
	pending map[string]string  // session -> pending tx hash
}

// NewExecutor creates an executor with the given confirmation watcher.
func NewExecutor(watcher Watcher) *Executor {
	return &Executor{
		watcher: watcher,
		byHash:  make(map[string]*record),
		pending: make(map[string]string),
	}
}

// Execute starts a swap for session. It rejects a second concurrent swap
// from the same session, assigns a deterministic unique transaction id and
// appends the pending record before the watcher is started.
func (e *Executor) Execute(session string, p Params) (Transaction, error) {
	if session == "" {
		return Transaction{}, apperr.Validation("session id is required")
	}
	if p.FromToken == "" || p.ToToken == "" || p.FromAmount == "" {
		return Transaction{}, apperr.Validation("fromToken, toToken and fromAmount are required")
	}

	e.mu.Lock()
	if _, busy := e.pending[session]; busy {
		e.mu.Unlock()
		return Transaction{}, ErrSwapInFlight
	}
	e.nonce++
	now := time.Now()
	hash := txHash(session, e.nonce, p, now)
	tx := Transaction{
		Hash:       hash,
		Status:     StatusPending,
		FromToken:  p.FromToken,
		ToToken:    p.ToToken,
		FromAmount: p.FromAmount,
		ToAmount:   p.ToAmount,
		CreatedAt:  now,
	}
	rec := &record{tx: tx, session: session}
	e.txs = append(e.txs, rec)
	e.byHash[hash] = rec
	e.pending[session] = hash
	e.mu.Unlock()

	metrics.SwapsStarted.WithLabelValues(string(StatusPending)).Inc()
	log.Info().Str("hash", hash).Str("session", session).
		Str("from", p.FromToken).Str("to", p.ToToken).Msg("swap started")

	if e.watcher != nil {
		e.watcher(tx, e.Confirm)
	}
	return tx, nil
}

// txHash derives the attempt id from everything that makes the attempt
// unique. The nonce guarantees uniqueness even for identical params within
// one timestamp tick.
func txHash(session string, nonce uint64, p Params, at time.Time) string {
	payload := fmt.Sprintf("%s|%d|%s|%s|%s|%d",
		session, nonce, p.FromToken, p.ToToken, p.FromAmount, at.UnixNano())
	return crypto.Keccak256Hash([]byte(payload)).Hex()
}

// Confirm applies the terminal transition for hash. A confirmation for an
// unknown or already-terminal transaction is a no-op, not an error.
func (e *Executor) Confirm(hash string, success bool) {
	e.mu.Lock()
	rec, ok := e.byHash[hash]
	if !ok || rec.tx.Status != StatusPending {
		e.mu.Unlock()
		return
	}
	if success {
		rec.tx.Status = StatusSuccess
	} else {
		rec.tx.Status = StatusFailed
	}
	status := rec.tx.Status
	delete(e.pending, rec.session)
	e.mu.Unlock()

	metrics.SwapsStarted.WithLabelValues(string(status)).Inc()
	log.Info().Str("hash", hash).Str("status", string(status)).Msg("swap confirmed")
}

// IsSwapping reports whether session has a pending swap.
func (e *Executor) IsSwapping(session string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, busy := e.pending[session]
	return busy
}

// Get returns the transaction for hash.
func (e *Executor) Get(hash string) (Transaction, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.byHash[hash]
	if !ok {
		return Transaction{}, false
	}
	return rec.tx, true
}

// Transactions returns the session's swap log, newest first.
func (e *Executor) Transactions(session string) []Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Transaction, 0, 8)
	for i := len(e.txs) - 1; i >= 0; i-- {
		if e.txs[i].session == session {
			out = append(out, e.txs[i].tx)
		}
	}
	return out
}
