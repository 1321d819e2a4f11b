// Package dexapi is the client for the OKX-style DEX aggregator API. The
// proxy forwards most of its trading surface through here largely verbatim;
// upstream failures are classified so callers can retry, never crash.
package dexapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"dexdash-backend/internal/apperr"
	"dexdash-backend/internal/metrics"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "dexapi").Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "dexapi").Logger()
}

const (
	aggregatorPath = "/api/v5/dex/aggregator"
	tickersPath    = "/api/v5/market/tickers"
)

// Client talks to the aggregator API. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a client. timeout zero means the 30s default the rest
// of the system uses for external calls.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// envelope is the {code, msg, data} wrapper every aggregator response uses.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// get performs one GET and unwraps the envelope, preserving the upstream
// message on failure.
func (c *Client) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, apperr.Upstream(err, "failed to build aggregator request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("OK-ACCESS-KEY", c.apiKey)
	}

	log.Debug().Str("url", fullURL).Msg("aggregator request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues(path, "error").Inc()
		return nil, apperr.Upstream(err, "aggregator request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.UpstreamCalls.WithLabelValues(path, "error").Inc()
		return nil, apperr.Upstream(err, "failed to read aggregator response")
	}
	if resp.StatusCode != http.StatusOK {
		metrics.UpstreamCalls.WithLabelValues(path, "error").Inc()
		return nil, apperr.Upstream(nil, "aggregator returned status %d: %s", resp.StatusCode, truncate(body, 256))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		metrics.UpstreamCalls.WithLabelValues(path, "error").Inc()
		return nil, apperr.Upstream(err, "malformed aggregator payload")
	}
	if env.Code != "" && env.Code != "0" {
		metrics.UpstreamCalls.WithLabelValues(path, "error").Inc()
		return nil, apperr.Upstream(nil, "aggregator error %s: %s", env.Code, env.Msg)
	}

	metrics.UpstreamCalls.WithLabelValues(path, "ok").Inc()
	log.Debug().Str("url", fullURL).Int("bytes", len(body)).Msg("aggregator response")
	return env.Data, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// SupportedChains lists the chains the aggregator can route on.
func (c *Client) SupportedChains(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, aggregatorPath+"/supported/chain", nil)
}

// Token is one entry of the aggregator's all-tokens listing.
type Token struct {
	Decimals             string `json:"decimals"`
	TokenContractAddress string `json:"tokenContractAddress"`
	TokenLogoURL         string `json:"tokenLogoUrl"`
	TokenName            string `json:"tokenName"`
	TokenSymbol          string `json:"tokenSymbol"`
}

// DecimalsUint8 parses the string decimals field, clamped to uint8.
func (t Token) DecimalsUint8() uint8 {
	n, err := strconv.ParseUint(t.Decimals, 10, 8)
	if err != nil {
		return 18
	}
	return uint8(n)
}

// AllTokens lists the tradable tokens on a chain.
func (c *Client) AllTokens(ctx context.Context, chainID int64) ([]Token, error) {
	params := url.Values{}
	params.Set("chainId", strconv.FormatInt(chainID, 10))
	data, err := c.get(ctx, aggregatorPath+"/all-tokens", params)
	if err != nil {
		return nil, err
	}
	var tokens []Token
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, apperr.Upstream(err, "malformed token list")
	}
	return tokens, nil
}

// QuoteParams are the aggregator quote/swap inputs.
type QuoteParams struct {
	ChainID           int64
	FromTokenAddress  string
	ToTokenAddress    string
	Amount            string
	Slippage          float64
	UserWalletAddress string // swap only
}

func (p QuoteParams) values() url.Values {
	v := url.Values{}
	v.Set("chainId", strconv.FormatInt(p.ChainID, 10))
	v.Set("fromTokenAddress", p.FromTokenAddress)
	v.Set("toTokenAddress", p.ToTokenAddress)
	v.Set("amount", p.Amount)
	if p.Slippage > 0 {
		v.Set("slippage", strconv.FormatFloat(p.Slippage, 'f', -1, 64))
	}
	if p.UserWalletAddress != "" {
		v.Set("userWalletAddress", p.UserWalletAddress)
	}
	return v
}

// Quote fetches an aggregator quote, passed through verbatim.
func (c *Client) Quote(ctx context.Context, p QuoteParams) (json.RawMessage, error) {
	return c.get(ctx, aggregatorPath+"/quote", p.values())
}

// Swap fetches aggregator swap calldata, passed through verbatim.
func (c *Client) Swap(ctx context.Context, p QuoteParams) (json.RawMessage, error) {
	return c.get(ctx, aggregatorPath+"/swap", p.values())
}

// ApproveTransaction fetches the approval calldata for a token allowance.
func (c *Client) ApproveTransaction(ctx context.Context, chainID int64, tokenContractAddress, approveAmount string) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("chainId", strconv.FormatInt(chainID, 10))
	params.Set("tokenContractAddress", tokenContractAddress)
	params.Set("approveAmount", approveAmount)
	return c.get(ctx, aggregatorPath+"/approve-transaction", params)
}

// Configured reports whether the client has upstream credentials. Without
// them the proxy falls back to its local quote model.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}
