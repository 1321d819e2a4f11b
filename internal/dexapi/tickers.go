package dexapi

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dexdash-backend/internal/apperr"
	"dexdash-backend/internal/pricefeed"
)

// ticker is one OKX spot market ticker.
type ticker struct {
	InstID    string `json:"instId"`
	Last      string `json:"last"`
	Open24h   string `json:"open24h"`
	High24h   string `json:"high24h"`
	Low24h    string `json:"low24h"`
	Vol24h    string `json:"vol24h"`
	VolCcy24h string `json:"volCcy24h"`
	TS        string `json:"ts"`
}

// Fetch pulls spot tickers and maps the <SYMBOL>-USDT instruments onto
// price updates for the requested symbols. Implements pricefeed.Source.
func (c *Client) Fetch(ctx context.Context, symbols []string) ([]pricefeed.PriceUpdate, error) {
	params := url.Values{}
	params.Set("instType", "SPOT")
	data, err := c.get(ctx, tickersPath, params)
	if err != nil {
		return nil, err
	}

	var tickers []ticker
	if err := json.Unmarshal(data, &tickers); err != nil {
		return nil, apperr.Upstream(err, "malformed ticker payload")
	}

	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[strings.ToUpper(s)] = true
	}

	updates := make([]pricefeed.PriceUpdate, 0, len(symbols))
	for _, t := range tickers {
		symbol, ok := strings.CutSuffix(t.InstID, "-USDT")
		if !ok || !wanted[symbol] {
			continue
		}
		u, ok := t.toUpdate(symbol)
		if !ok {
			continue
		}
		updates = append(updates, u)
	}
	// Stablecoins have no -USDT instrument; pin the ones asked for at 1.
	for _, stable := range []string{"USDT", "USDC"} {
		if wanted[stable] {
			updates = append(updates, pricefeed.PriceUpdate{
				Symbol: stable, Price: 1, High24h: 1, Low24h: 1, Timestamp: time.Now(),
			})
		}
	}
	return updates, nil
}

func (t ticker) toUpdate(symbol string) (pricefeed.PriceUpdate, bool) {
	last, err := strconv.ParseFloat(t.Last, 64)
	if err != nil || last <= 0 {
		return pricefeed.PriceUpdate{}, false
	}
	open, _ := strconv.ParseFloat(t.Open24h, 64)
	high, _ := strconv.ParseFloat(t.High24h, 64)
	low, _ := strconv.ParseFloat(t.Low24h, 64)
	volCcy, _ := strconv.ParseFloat(t.VolCcy24h, 64)

	change := 0.0
	changePct := 0.0
	if open > 0 {
		change = last - open
		changePct = change / open * 100
	}

	ts := time.Now()
	if ms, err := strconv.ParseInt(t.TS, 10, 64); err == nil && ms > 0 {
		ts = time.UnixMilli(ms)
	}

	return pricefeed.PriceUpdate{
		Symbol:       symbol,
		Price:        last,
		Change24h:    change,
		ChangePct24h: changePct,
		Volume24h:    volCcy,
		High24h:      high,
		Low24h:       low,
		Timestamp:    ts,
	}, true
}
