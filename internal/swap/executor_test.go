package swap_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/zeebo/assert"

	"dexdash-backend/internal/swap"
)

func params() swap.Params {
	return swap.Params{FromToken: "OKB", ToToken: "USDT", FromAmount: "100", ToAmount: "5192.55"}
}

func TestExecuteCreatesPendingTransaction(t *testing.T) {
	e := swap.NewExecutor(nil)

	tx, err := e.Execute("session-1", params())
	assert.NoError(t, err)
	assert.Equal(t, swap.StatusPending, tx.Status)
	assert.True(t, len(tx.Hash) == 66) // 0x + 32 bytes hex
	assert.True(t, e.IsSwapping("session-1"))
}

func TestExecuteValidation(t *testing.T) {
	e := swap.NewExecutor(nil)

	_, err := e.Execute("", params())
	assert.Error(t, err)

	_, err = e.Execute("session-1", swap.Params{FromToken: "OKB"})
	assert.Error(t, err)
}

func TestSingleFlightPerSession(t *testing.T) {
	e := swap.NewExecutor(nil)

	first, err := e.Execute("session-1", params())
	assert.NoError(t, err)

	_, err = e.Execute("session-1", params())
	assert.Error(t, err)
	assert.True(t, errors.Is(err, swap.ErrSwapInFlight))

	// A different session is unaffected.
	_, err = e.Execute("session-2", params())
	assert.NoError(t, err)

	// After confirmation the session may swap again.
	e.Confirm(first.Hash, true)
	assert.False(t, e.IsSwapping("session-1"))
	_, err = e.Execute("session-1", params())
	assert.NoError(t, err)
}

func TestUniqueHashesForIdenticalParams(t *testing.T) {
	e := swap.NewExecutor(nil)

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		session := fmt.Sprintf("session-%d", i)
		tx, err := e.Execute(session, params())
		assert.NoError(t, err)
		assert.False(t, seen[tx.Hash])
		seen[tx.Hash] = true
	}
}

func TestTerminalTransitionHappensOnce(t *testing.T) {
	e := swap.NewExecutor(nil)

	tx, err := e.Execute("session-1", params())
	assert.NoError(t, err)

	e.Confirm(tx.Hash, false)
	got, ok := e.Get(tx.Hash)
	assert.True(t, ok)
	assert.Equal(t, swap.StatusFailed, got.Status)

	// A second confirmation, even contradicting, is a no-op.
	e.Confirm(tx.Hash, true)
	got, ok = e.Get(tx.Hash)
	assert.True(t, ok)
	assert.Equal(t, swap.StatusFailed, got.Status)
}

func TestConfirmUnknownHashIsNoop(t *testing.T) {
	e := swap.NewExecutor(nil)
	e.Confirm("0xdeadbeef", true) // must not panic
}

func TestTransactionsNewestFirst(t *testing.T) {
	e := swap.NewExecutor(nil)

	first, err := e.Execute("session-1", params())
	assert.NoError(t, err)
	e.Confirm(first.Hash, true)

	second, err := e.Execute("session-1", params())
	assert.NoError(t, err)

	txs := e.Transactions("session-1")
	assert.Equal(t, 2, len(txs))
	assert.Equal(t, second.Hash, txs[0].Hash)
	assert.Equal(t, first.Hash, txs[1].Hash)
}

func TestConcurrentSessionsAppendWithoutLoss(t *testing.T) {
	e := swap.NewExecutor(nil)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session := fmt.Sprintf("session-%d", i)
			tx, err := e.Execute(session, params())
			if err != nil {
				t.Errorf("execute failed: %v", err)
				return
			}
			e.Confirm(tx.Hash, i%2 == 0)
		}(i)
	}
	wg.Wait()

	total := 0
	for i := 0; i < n; i++ {
		total += len(e.Transactions(fmt.Sprintf("session-%d", i)))
	}
	assert.Equal(t, n, total)
}

func TestSimulatedWatcherConfirms(t *testing.T) {
	e := swap.NewExecutor(swap.SimulatedWatcher(10*time.Millisecond, 1.0))

	tx, err := e.Execute("session-1", params())
	assert.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, _ := e.Get(tx.Hash); got.Status != swap.StatusPending {
			assert.Equal(t, swap.StatusSuccess, got.Status)
			assert.False(t, e.IsSwapping("session-1"))
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("watcher never confirmed the transaction")
}
