// Package chains holds the static chain registry: every chain the proxy
// serves, keyed by numeric chain id, resolved once at startup.
package chains

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"dexdash-backend/internal/apperr"
)

// NativeTokenAddress is the reserved all-zero address representing a chain's
// native coin. Lookups against it bypass contract calls entirely.
const NativeTokenAddress = "0x0000000000000000000000000000000000000000"

// ChainConfig describes one supported chain. Immutable after process start.
type ChainConfig struct {
	ChainID        int64  `toml:"chain_id" json:"chainId"`
	Name           string `toml:"name" json:"name"`
	RPCURL         string `toml:"rpc_url" json:"rpcUrl"`
	NativeSymbol   string `toml:"native_symbol" json:"nativeSymbol"`
	NativeName     string `toml:"native_name" json:"nativeName"`
	NativeDecimals uint8  `toml:"native_decimals" json:"nativeDecimals"`
}

type chainsFile struct {
	Chains []ChainConfig `toml:"chains"`
}

// Registry resolves chain ids to their configuration. Safe for concurrent
// use; the backing map is never mutated after construction.
type Registry struct {
	byID map[int64]ChainConfig
}

// DefaultChains mirrors the networks the dashboard ships with. RPC URLs can
// be overridden per chain through the environment (see config package).
func DefaultChains() []ChainConfig {
	return []ChainConfig{
		{ChainID: 196, Name: "X Layer", RPCURL: "https://rpc.xlayer.tech", NativeSymbol: "OKB", NativeName: "OKB Token", NativeDecimals: 18},
		{ChainID: 1, Name: "Ethereum", RPCURL: "https://eth.llamarpc.com", NativeSymbol: "ETH", NativeName: "Ether", NativeDecimals: 18},
		{ChainID: 137, Name: "Polygon", RPCURL: "https://polygon-rpc.com", NativeSymbol: "POL", NativeName: "Polygon Ecosystem Token", NativeDecimals: 18},
	}
}

// NewRegistry builds a registry from the given configs. Duplicate or
// incomplete entries are rejected so a bad chain can never be half-resolved
// later.
func NewRegistry(configs []ChainConfig) (*Registry, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("no chains configured")
	}
	byID := make(map[int64]ChainConfig, len(configs))
	for _, c := range configs {
		if c.ChainID <= 0 {
			return nil, fmt.Errorf("invalid chain id %d", c.ChainID)
		}
		if c.RPCURL == "" {
			return nil, fmt.Errorf("chain %d has no rpc url", c.ChainID)
		}
		if c.NativeSymbol == "" {
			return nil, fmt.Errorf("chain %d has no native symbol", c.ChainID)
		}
		if _, dup := byID[c.ChainID]; dup {
			return nil, fmt.Errorf("duplicate chain id %d", c.ChainID)
		}
		if c.NativeDecimals == 0 {
			c.NativeDecimals = 18
		}
		byID[c.ChainID] = c
	}
	return &Registry{byID: byID}, nil
}

// LoadFromFile loads chain configs from a TOML file.
func LoadFromFile(path string) ([]ChainConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chains config file: %w", err)
	}
	var file chainsFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse chains config: %w", err)
	}
	if len(file.Chains) == 0 {
		return nil, fmt.Errorf("no chains in config %s", path)
	}
	return file.Chains, nil
}

// Resolve returns the config for chainID, or a configuration error when the
// chain is unknown. Callers must fail fast on the error; nothing downstream
// may guess an endpoint.
func (r *Registry) Resolve(chainID int64) (ChainConfig, error) {
	c, ok := r.byID[chainID]
	if !ok {
		return ChainConfig{}, apperr.Configuration("no provider configured for chain id %d", chainID)
	}
	return c, nil
}

// All returns every configured chain. The slice is a copy.
func (r *Registry) All() []ChainConfig {
	out := make([]ChainConfig, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out
}

// IsNativeToken reports whether addr is the native coin sentinel.
func IsNativeToken(addr string) bool {
	return strings.EqualFold(strings.TrimSpace(addr), NativeTokenAddress)
}
