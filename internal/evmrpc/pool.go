// Package evmrpc owns the per-chain EVM RPC clients and the read primitives
// built on them. Handles are created lazily, once per chain, and reused for
// the process lifetime; they carry no request state and are safe for
// concurrent use. Retry policy deliberately lives in callers.
package evmrpc

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"dexdash-backend/internal/apperr"
	"dexdash-backend/internal/chains"
	"dexdash-backend/internal/metrics"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "evmrpc").Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "evmrpc").Logger()
}

// transferTopic is the keccak of Transfer(address,address,uint256).
var transferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// historyBlockSpan bounds how far back transaction history scans. Anything
// older belongs to an indexing service, not a live RPC read.
const historyBlockSpan = 10_000

// Pool owns one client per configured chain.
type Pool struct {
	registry *chains.Registry
	timeout  time.Duration

	mu      sync.Mutex
	clients map[int64]*ethclient.Client
}

// NewPool creates a pool over the given registry. timeout caps every
// individual call; zero means the 30s default.
func NewPool(registry *chains.Registry, timeout time.Duration) *Pool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Pool{
		registry: registry,
		timeout:  timeout,
		clients:  make(map[int64]*ethclient.Client),
	}
}

// client returns the shared handle for chainID, dialing it on first use.
func (p *Pool) client(chainID int64) (*ethclient.Client, chains.ChainConfig, error) {
	cfg, err := p.registry.Resolve(chainID)
	if err != nil {
		return nil, chains.ChainConfig{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[chainID]; ok {
		return c, cfg, nil
	}
	c, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, chains.ChainConfig{}, apperr.Provider(err, "failed to dial rpc endpoint for chain %d", chainID)
	}
	p.clients[chainID] = c
	log.Info().Int64("chain", chainID).Str("endpoint", cfg.RPCURL).Msg("rpc client initialized")
	return c, cfg, nil
}

// Close releases every dialed client.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, c := range p.clients {
		c.Close()
		delete(p.clients, id)
	}
}

func (p *Pool) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.timeout)
}

func chainLabel(chainID int64) string {
	return strconv.FormatInt(chainID, 10)
}

// NativeBalance reads the native coin balance of addr at the latest block.
func (p *Pool) NativeBalance(ctx context.Context, chainID int64, addr string) (*big.Int, error) {
	if !common.IsHexAddress(addr) {
		return nil, apperr.Validation("malformed address %q", addr)
	}
	client, _, err := p.client(chainID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	balance, err := client.BalanceAt(ctx, common.HexToAddress(addr), nil)
	metrics.ObserveRPC(chainLabel(chainID), "eth_getBalance", start, err)
	if err != nil {
		return nil, apperr.Provider(err, "failed to get native balance on chain %d", chainID)
	}
	return balance, nil
}

// CallContract performs a read-only eth_call against to with the given
// calldata at the latest block.
func (p *Pool) CallContract(ctx context.Context, chainID int64, to string, data []byte) ([]byte, error) {
	if !common.IsHexAddress(to) {
		return nil, apperr.Validation("malformed contract address %q", to)
	}
	client, _, err := p.client(chainID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	target := common.HexToAddress(to)
	start := time.Now()
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &target, Data: data}, nil)
	metrics.ObserveRPC(chainLabel(chainID), "eth_call", start, err)
	if err != nil {
		return nil, apperr.Provider(err, "contract call to %s failed on chain %d", to, chainID)
	}
	return out, nil
}

// BlockNumber returns the latest block number.
func (p *Pool) BlockNumber(ctx context.Context, chainID int64) (uint64, error) {
	client, _, err := p.client(chainID)
	if err != nil {
		return 0, err
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	n, err := client.BlockNumber(ctx)
	metrics.ObserveRPC(chainLabel(chainID), "eth_blockNumber", start, err)
	if err != nil {
		return 0, apperr.Provider(err, "failed to get block number on chain %d", chainID)
	}
	return n, nil
}

// TransferLog is one ERC20 Transfer event from the recent block window.
type TransferLog struct {
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	Address     string `json:"address"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
}

// TransferLogs scans the last historyBlockSpan blocks for ERC20 Transfer
// events touching wallet and returns at most limit of them, newest last.
func (p *Pool) TransferLogs(ctx context.Context, chainID int64, wallet string, limit int) ([]TransferLog, error) {
	if !common.IsHexAddress(wallet) {
		return nil, apperr.Validation("malformed address %q", wallet)
	}
	if limit <= 0 {
		limit = 50
	}
	client, _, err := p.client(chainID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	latest, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, apperr.Provider(err, "failed to get block number on chain %d", chainID)
	}
	from := int64(0)
	if latest > historyBlockSpan {
		from = int64(latest - historyBlockSpan)
	}

	// Match the wallet in either the from or to topic position.
	addrTopic := common.BytesToHash(common.HexToAddress(wallet).Bytes())
	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(from),
		Topics:    [][]common.Hash{{transferTopic}},
	}

	start := time.Now()
	logs, err := client.FilterLogs(ctx, query)
	metrics.ObserveRPC(chainLabel(chainID), "eth_getLogs", start, err)
	if err != nil {
		return nil, apperr.Provider(err, "failed to get transfer logs on chain %d", chainID)
	}

	out := make([]TransferLog, 0, limit)
	for _, l := range logs {
		if len(l.Topics) < 3 {
			continue
		}
		if l.Topics[1] != addrTopic && l.Topics[2] != addrTopic {
			continue
		}
		out = append(out, decodeTransfer(l))
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func decodeTransfer(l types.Log) TransferLog {
	value := new(big.Int)
	if len(l.Data) >= 32 {
		value.SetBytes(l.Data[:32])
	}
	return TransferLog{
		TxHash:      l.TxHash.Hex(),
		BlockNumber: l.BlockNumber,
		Address:     l.Address.Hex(),
		From:        common.BytesToAddress(l.Topics[1].Bytes()).Hex(),
		To:          common.BytesToAddress(l.Topics[2].Bytes()).Hex(),
		Value:       value.String(),
	}
}

// SimulateResult is the outcome of a dry-run call.
type SimulateResult struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Simulate executes an eth_call with the caller's from/value set, reporting
// revert reasons as a failed-but-answered result rather than an error.
func (p *Pool) Simulate(ctx context.Context, chainID int64, from, to string, data []byte, value *big.Int) (SimulateResult, error) {
	if !common.IsHexAddress(from) || !common.IsHexAddress(to) {
		return SimulateResult{}, apperr.Validation("malformed simulation address")
	}
	client, _, err := p.client(chainID)
	if err != nil {
		return SimulateResult{}, err
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	sender := common.HexToAddress(from)
	target := common.HexToAddress(to)
	msg := ethereum.CallMsg{From: sender, To: &target, Data: data, Value: value}

	start := time.Now()
	out, err := client.CallContract(ctx, msg, nil)
	metrics.ObserveRPC(chainLabel(chainID), "eth_call_simulate", start, err)
	if err != nil {
		// A revert is a valid simulation answer, not a provider failure.
		return SimulateResult{Success: false, Error: err.Error()}, nil
	}
	return SimulateResult{Success: true, Result: fmt.Sprintf("0x%x", out)}, nil
}
