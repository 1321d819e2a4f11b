package server

import (
	"net/http"
	"strconv"
	"sync"

	"dexdash-backend/internal/apperr"
	"dexdash-backend/internal/balance"
	"dexdash-backend/internal/chains"
)

// handleBalances aggregates the wallet's token balances on one chain. The
// token universe comes from the aggregator API when configured; without
// credentials only the native coin is looked up. Partial failures are
// reported alongside the entries, never as a request failure.
func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		writeError(w, apperr.Validation("address is required"))
		return
	}
	chainID, err := queryInt64(r, "chainId")
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.deps.Registry.Resolve(chainID); err != nil {
		writeError(w, err)
		return
	}

	tokens := []balance.TokenRef{{Address: chains.NativeTokenAddress}}
	if s.deps.Dex.Configured() {
		listed, err := s.deps.Dex.AllTokens(r.Context(), chainID)
		if err != nil {
			// A degraded token universe is still a valid response; the
			// native balance alone beats an error page.
			Logger.Warn().Err(err).Int64("chain", chainID).Msg("token listing unavailable")
		}
		for _, t := range listed {
			tokens = append(tokens, balance.TokenRef{
				Address:  t.TokenContractAddress,
				Symbol:   t.TokenSymbol,
				Name:     t.TokenName,
				Decimals: t.DecimalsUint8(),
			})
		}
	}

	result, err := s.deps.Aggregator.Aggregate(r.Context(), address, chainID, tokens)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, result)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		writeError(w, apperr.Validation("address is required"))
		return
	}
	chainID, err := queryInt64(r, "chainId")
	if err != nil {
		writeError(w, err)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, apperr.Validation("limit must be a positive integer"))
			return
		}
		limit = n
	}

	logs, err := s.deps.Pool.TransferLogs(r.Context(), chainID, address, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, logs)
}

type tokenInfo struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
}

// handleTokenInfo reads a token's metadata: the registry answers for the
// native sentinel, the contract answers for everything else.
func (s *Server) handleTokenInfo(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address == "" {
		writeError(w, apperr.Validation("address is required"))
		return
	}
	chainID, err := queryInt64(r, "chainId")
	if err != nil {
		writeError(w, err)
		return
	}
	cfg, err := s.deps.Registry.Resolve(chainID)
	if err != nil {
		writeError(w, err)
		return
	}

	if chains.IsNativeToken(address) {
		writeData(w, tokenInfo{
			Address:  chains.NativeTokenAddress,
			Symbol:   cfg.NativeSymbol,
			Name:     cfg.NativeName,
			Decimals: cfg.NativeDecimals,
		})
		return
	}

	var (
		symbol, name string
		decimals     uint8
		symErr       error
		nameErr      error
		decErr       error
		wg           sync.WaitGroup
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		symbol, symErr = s.deps.Pool.ERC20Symbol(r.Context(), chainID, address)
	}()
	go func() {
		defer wg.Done()
		name, nameErr = s.deps.Pool.ERC20Name(r.Context(), chainID, address)
	}()
	go func() {
		defer wg.Done()
		decimals, decErr = s.deps.Pool.ERC20Decimals(r.Context(), chainID, address)
	}()
	wg.Wait()

	for _, err := range []error{symErr, nameErr, decErr} {
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeData(w, tokenInfo{Address: address, Symbol: symbol, Name: name, Decimals: decimals})
}
