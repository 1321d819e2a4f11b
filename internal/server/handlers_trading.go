package server

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"dexdash-backend/internal/apperr"
	"dexdash-backend/internal/chains"
	"dexdash-backend/internal/dexapi"
	"dexdash-backend/internal/quote"
	"dexdash-backend/internal/swap"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, map[string]string{"status": "ok"})
}

// handleChains lists supported chains: the aggregator's view when
// credentials are configured, the local registry otherwise.
func (s *Server) handleChains(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dex.Configured() {
		data, err := s.deps.Dex.SupportedChains(r.Context())
		if err == nil {
			writeData(w, json.RawMessage(data))
			return
		}
		Logger.Warn().Err(err).Msg("falling back to local chain registry")
	}
	writeData(w, s.deps.Registry.All())
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	chainID, err := queryInt64(r, "chainId")
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.deps.Registry.Resolve(chainID); err != nil {
		writeError(w, err)
		return
	}
	tokens, err := s.deps.Dex.AllTokens(r.Context(), chainID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, tokens)
}

// handleQuote serves a swap quote. With aggregator credentials the upstream
// quote is passed through; otherwise the local engine computes one from the
// cached price state.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	chainID, err := queryInt64(r, "chainId")
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	from := q.Get("fromTokenAddress")
	to := q.Get("toTokenAddress")
	amount := q.Get("amount")
	if from == "" || to == "" || amount == "" {
		writeError(w, apperr.Validation("fromTokenAddress, toTokenAddress and amount are required"))
		return
	}
	slippage, err := querySlippage(r, s.cfg.SlippageDefault)
	if err != nil {
		writeError(w, err)
		return
	}

	if s.deps.Dex.Configured() {
		data, err := s.deps.Dex.Quote(r.Context(), dexapi.QuoteParams{
			ChainID:          chainID,
			FromTokenAddress: from,
			ToTokenAddress:   to,
			Amount:           amount,
			Slippage:         slippage,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeData(w, json.RawMessage(data))
		return
	}

	fromSymbol, err := s.tokenSymbol(r, chainID, from, q.Get("fromTokenSymbol"))
	if err != nil {
		writeError(w, err)
		return
	}
	toSymbol, err := s.tokenSymbol(r, chainID, to, q.Get("toTokenSymbol"))
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.deps.Engine.QuoteNow(quote.Params{
		TokenIn:     fromSymbol,
		TokenOut:    toSymbol,
		AmountIn:    amount,
		ChainID:     chainID,
		SlippagePct: slippage,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, result)
}

// tokenSymbol resolves the symbol of a token reference: explicit symbol
// param first, chain's native symbol for the sentinel, symbol() on chain as
// the last resort. Plain symbols are also accepted in the address position.
func (s *Server) tokenSymbol(r *http.Request, chainID int64, addr, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if chains.IsNativeToken(addr) {
		cfg, err := s.deps.Registry.Resolve(chainID)
		if err != nil {
			return "", err
		}
		return cfg.NativeSymbol, nil
	}
	if !common.IsHexAddress(addr) {
		// Treat it as a symbol the caller already resolved.
		return strings.ToUpper(addr), nil
	}
	return s.deps.Pool.ERC20Symbol(r.Context(), chainID, addr)
}

type swapDataRequest struct {
	ChainID           int64   `json:"chainId"`
	FromTokenAddress  string  `json:"fromTokenAddress"`
	ToTokenAddress    string  `json:"toTokenAddress"`
	Amount            string  `json:"amount"`
	UserWalletAddress string  `json:"userWalletAddress"`
	Slippage          float64 `json:"slippage"`
}

func (s *Server) handleSwapData(w http.ResponseWriter, r *http.Request) {
	var req swapDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("malformed request body"))
		return
	}
	switch {
	case req.ChainID == 0:
		writeError(w, apperr.Validation("chainId is required"))
		return
	case req.FromTokenAddress == "" || req.ToTokenAddress == "":
		writeError(w, apperr.Validation("fromTokenAddress and toTokenAddress are required"))
		return
	case req.Amount == "":
		writeError(w, apperr.Validation("amount is required"))
		return
	case req.UserWalletAddress == "":
		writeError(w, apperr.Validation("userWalletAddress is required"))
		return
	case req.Slippage < 0 || req.Slippage > 50:
		writeError(w, apperr.Validation("slippage must be within 0..50"))
		return
	}
	if _, err := s.deps.Registry.Resolve(req.ChainID); err != nil {
		writeError(w, err)
		return
	}
	if req.Slippage == 0 {
		req.Slippage = s.cfg.SlippageDefault
	}

	data, err := s.deps.Dex.Swap(r.Context(), dexapi.QuoteParams{
		ChainID:           req.ChainID,
		FromTokenAddress:  req.FromTokenAddress,
		ToTokenAddress:    req.ToTokenAddress,
		Amount:            req.Amount,
		Slippage:          req.Slippage,
		UserWalletAddress: req.UserWalletAddress,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, json.RawMessage(data))
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	chainID, err := queryInt64(r, "chainId")
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	token := q.Get("tokenContractAddress")
	amount := q.Get("approveAmount")
	if token == "" || amount == "" {
		writeError(w, apperr.Validation("tokenContractAddress and approveAmount are required"))
		return
	}
	data, err := s.deps.Dex.ApproveTransaction(r.Context(), chainID, token, amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, json.RawMessage(data))
}

type simulateRequest struct {
	ChainID int64  `json:"chainId"`
	From    string `json:"from"`
	To      string `json:"to"`
	Data    string `json:"data"`
	Value   string `json:"value"`
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("malformed request body"))
		return
	}
	if req.ChainID == 0 || req.From == "" || req.To == "" || req.Data == "" {
		writeError(w, apperr.Validation("chainId, from, to and data are required for simulation"))
		return
	}

	calldata := common.FromHex(req.Data)
	value, err := parseValue(req.Value)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := s.deps.Pool.Simulate(r.Context(), req.ChainID, req.From, req.To, calldata, value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, result)
}

// parseValue parses the optional transaction value: plain decimal, or hex
// with a 0x or 0X prefix. Empty means zero.
func parseValue(raw string) (*big.Int, error) {
	value := new(big.Int)
	if raw == "" {
		return value, nil
	}
	digits, base := raw, 10
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		digits, base = raw[2:], 16
	}
	if _, ok := value.SetString(digits, base); !ok {
		return nil, apperr.Validation("value %q is not a number", raw)
	}
	return value, nil
}

type executeRequest struct {
	FromToken  string `json:"fromToken"`
	ToToken    string `json:"toToken"`
	FromAmount string `json:"fromAmount"`
	ToAmount   string `json:"toAmount"`
}

// handleExecute starts a locally tracked swap for the caller's session.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	session := r.Header.Get("X-Session-ID")
	if session == "" {
		writeError(w, apperr.Validation("X-Session-ID header is required"))
		return
	}
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("malformed request body"))
		return
	}

	tx, err := s.deps.Executor.Execute(session, swap.Params{
		FromToken:  req.FromToken,
		ToToken:    req.ToToken,
		FromAmount: req.FromAmount,
		ToAmount:   req.ToAmount,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, tx)
}

func (s *Server) handleSwapLog(w http.ResponseWriter, r *http.Request) {
	session := r.Header.Get("X-Session-ID")
	if session == "" {
		session = r.URL.Query().Get("session")
	}
	if session == "" {
		writeError(w, apperr.Validation("session is required"))
		return
	}
	writeData(w, map[string]any{
		"isSwapping":   s.deps.Executor.IsSwapping(session),
		"transactions": s.deps.Executor.Transactions(session),
	})
}

func (s *Server) handleWallets(w http.ResponseWriter, r *http.Request) {
	writeData(w, s.deps.Wallets.Discover())
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	writeData(w, s.deps.Prices.Snapshot())
}
