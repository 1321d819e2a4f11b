package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zeebo/assert"

	"dexdash-backend/internal/balance"
	"dexdash-backend/internal/chains"
	"dexdash-backend/internal/config"
	"dexdash-backend/internal/dexapi"
	"dexdash-backend/internal/evmrpc"
	"dexdash-backend/internal/pricefeed"
	"dexdash-backend/internal/quote"
	"dexdash-backend/internal/server"
	"dexdash-backend/internal/swap"
	"dexdash-backend/internal/wallets"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// newTestServer wires the real components with no aggregator credentials,
// so every endpoint that can be served locally is exercised end to end.
func newTestServer(t *testing.T) *server.Server {
	t.Helper()

	registry, err := chains.NewRegistry(chains.DefaultChains())
	assert.NoError(t, err)

	cfg := &config.Config{
		Host:                 "127.0.0.1",
		Port:                 0,
		AllowedOrigins:       []string{"*"},
		RPCTimeoutSeconds:    5,
		MaxTokens:            20,
		MaxConcurrentLookups: 4,
		DebounceMS:           10,
		QuoteTTLSeconds:      10,
		SlippageDefault:      1.0,
	}

	pool := evmrpc.NewPool(registry, cfg.RPCTimeout())
	t.Cleanup(pool.Close)

	prices := pricefeed.NewStore()
	deps := server.Deps{
		Registry:   registry,
		Pool:       pool,
		Aggregator: balance.NewAggregator(registry, pool, cfg.MaxTokens, cfg.MaxConcurrentLookups),
		Engine:     quote.NewEngine(registry, prices, cfg.Debounce(), cfg.SlippageDefault).WithTTL(cfg.QuoteTTL()),
		Executor:   swap.NewExecutor(nil),
		Dex:        dexapi.NewClient("https://www.okx.com", "", cfg.RPCTimeout()),
		Prices:     prices,
		Wallets:    wallets.NewStaticDiscoverer(nil),
	}
	return server.NewServer(cfg, deps)
}

func doRequest(t *testing.T, srv *server.Server, method, target, body string, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("response is not an envelope: %v: %s", err, rec.Body.String())
	}
	return rec, env
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	rec, env := doRequest(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestChainsServedFromRegistry(t *testing.T) {
	srv := newTestServer(t)
	rec, env := doRequest(t, srv, http.MethodGet, "/trading/chains", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	var list []chains.ChainConfig
	assert.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 3, len(list))
}

func TestQuoteValidation(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		name   string
		target string
	}{
		{"missing chainId", "/trading/quote?fromTokenAddress=OKB&toTokenAddress=USDT&amount=1"},
		{"missing amount", "/trading/quote?chainId=196&fromTokenAddress=OKB&toTokenAddress=USDT"},
		{"unknown chain", "/trading/quote?chainId=424242&fromTokenAddress=OKB&toTokenAddress=USDT&amount=1"},
		{"same token", "/trading/quote?chainId=196&fromTokenAddress=OKB&toTokenAddress=OKB&amount=1"},
		{"bad slippage", "/trading/quote?chainId=196&fromTokenAddress=OKB&toTokenAddress=USDT&amount=1&slippage=99"},
		{"negative amount", "/trading/quote?chainId=196&fromTokenAddress=OKB&toTokenAddress=USDT&amount=-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, env := doRequest(t, srv, http.MethodGet, tc.target, "", nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, env.Success)
			assert.True(t, env.Error != "")
		})
	}
}

func TestQuoteLocalFallback(t *testing.T) {
	srv := newTestServer(t)
	rec, env := doRequest(t, srv, http.MethodGet,
		"/trading/quote?chainId=196&fromTokenAddress=OKB&toTokenAddress=USDT&amount=100&slippage=1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	var q struct {
		AmountOut    string   `json:"amountOut"`
		ExchangeRate string   `json:"exchangeRate"`
		Route        []string `json:"route"`
	}
	assert.NoError(t, json.Unmarshal(env.Data, &q))
	assert.Equal(t, "52.45", q.ExchangeRate)
	assert.Equal(t, []string{"OKB", "USDT"}, q.Route)
}

func TestQuoteNativeSentinelResolvesSymbol(t *testing.T) {
	srv := newTestServer(t)
	rec, env := doRequest(t, srv, http.MethodGet,
		"/trading/quote?chainId=196&fromTokenAddress="+chains.NativeTokenAddress+"&toTokenAddress=USDT&amount=1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	var q struct {
		Route []string `json:"route"`
	}
	assert.NoError(t, json.Unmarshal(env.Data, &q))
	assert.Equal(t, []string{"OKB", "USDT"}, q.Route)
}

func TestBalancesValidation(t *testing.T) {
	srv := newTestServer(t)

	rec, env := doRequest(t, srv, http.MethodGet, "/portfolio/balances?chainId=196", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)

	rec, env = doRequest(t, srv, http.MethodGet,
		"/portfolio/balances?address=0x1111111111111111111111111111111111111abc&chainId=424242", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
}

func TestExecuteAndSwapLog(t *testing.T) {
	srv := newTestServer(t)
	headers := map[string]string{"X-Session-ID": "session-1", "Content-Type": "application/json"}
	body := `{"fromToken":"OKB","toToken":"USDT","fromAmount":"100","toAmount":"5192.55"}`

	rec, env := doRequest(t, srv, http.MethodPost, "/trading/execute", body, headers)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	var tx swap.Transaction
	assert.NoError(t, json.Unmarshal(env.Data, &tx))
	assert.Equal(t, swap.StatusPending, tx.Status)

	// Second swap in the same session is rejected while pending.
	rec, env = doRequest(t, srv, http.MethodPost, "/trading/execute", body, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)

	rec, env = doRequest(t, srv, http.MethodGet, "/trading/swaps", "", headers)
	assert.Equal(t, http.StatusOK, rec.Code)

	var logResp struct {
		IsSwapping   bool               `json:"isSwapping"`
		Transactions []swap.Transaction `json:"transactions"`
	}
	assert.NoError(t, json.Unmarshal(env.Data, &logResp))
	assert.True(t, logResp.IsSwapping)
	assert.Equal(t, 1, len(logResp.Transactions))
	assert.Equal(t, tx.Hash, logResp.Transactions[0].Hash)
}

func TestExecuteRequiresSession(t *testing.T) {
	srv := newTestServer(t)
	rec, env := doRequest(t, srv, http.MethodPost, "/trading/execute",
		`{"fromToken":"OKB","toToken":"USDT","fromAmount":"1"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
}

func TestWallets(t *testing.T) {
	srv := newTestServer(t)
	rec, env := doRequest(t, srv, http.MethodGet, "/wallets", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var caps []wallets.Capability
	assert.NoError(t, json.Unmarshal(env.Data, &caps))
	assert.True(t, len(caps) > 0)
	for _, c := range caps {
		assert.True(t, c.Name != "")
	}
}

func TestPricesSnapshot(t *testing.T) {
	srv := newTestServer(t)
	rec, env := doRequest(t, srv, http.MethodGet, "/prices", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
}

func TestSimulateValidation(t *testing.T) {
	srv := newTestServer(t)
	rec, env := doRequest(t, srv, http.MethodPost, "/trading/simulate", `{"chainId":196}`,
		map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
}

func TestTokenInfoNativeSentinel(t *testing.T) {
	srv := newTestServer(t)
	rec, env := doRequest(t, srv, http.MethodGet,
		"/portfolio/token?address="+chains.NativeTokenAddress+"&chainId=196", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var info struct {
		Symbol   string `json:"symbol"`
		Decimals uint8  `json:"decimals"`
	}
	assert.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, "OKB", info.Symbol)
	assert.Equal(t, uint8(18), info.Decimals)
}

func TestWSPriceStreamRejectsPlainHTTP(t *testing.T) {
	srv := newTestServer(t)
	httpSrv := httptest.NewServer(srv.Handler())
	defer httpSrv.Close()

	resp, err := http.Get(httpSrv.URL + "/ws/prices")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
