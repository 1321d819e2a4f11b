// Package config loads proxy configuration from the environment or a TOML
// file, with environment taking over when no file is given.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"dexdash-backend/internal/chains"
)

// Config is the full runtime configuration of the proxy.
type Config struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	RatePerMinute  int      `mapstructure:"rate_per_minute"`

	RPCTimeoutSeconds    int `mapstructure:"rpc_timeout_seconds"`
	MaxTokens            int `mapstructure:"max_tokens"`
	MaxConcurrentLookups int `mapstructure:"max_concurrent_lookups"`

	DebounceMS      int     `mapstructure:"debounce_ms"`
	QuoteTTLSeconds int     `mapstructure:"quote_ttl_seconds"`
	SlippageDefault float64 `mapstructure:"slippage_default"`

	OKXBaseURL string `mapstructure:"okx_base_url"`
	OKXAPIKey  string `mapstructure:"okx_api_key"`

	PricePollSeconds int      `mapstructure:"price_poll_seconds"`
	PriceSymbols     []string `mapstructure:"price_symbols"`

	LogFile      string `mapstructure:"log_file"`
	ChainsConfig string `mapstructure:"chains_config"`

	XLayerRPCURL   string `mapstructure:"xlayer_rpc_url"`
	EthereumRPCURL string `mapstructure:"ethereum_rpc_url"`
	PolygonRPCURL  string `mapstructure:"polygon_rpc_url"`
}

// Load reads the configuration. With a nil path only the environment (plus
// an optional .env file) is consulted; otherwise the TOML file is read and
// the environment is ignored.
func Load(configPath *string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath == nil {
		config, err := loadEnv(v)
		if err != nil {
			return nil, fmt.Errorf("failed to load env config: %w", err)
		}
		return config, nil
	}
	config, err := loadFile(v, *configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load file config: %w", err)
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 3001)
	v.SetDefault("allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("rate_per_minute", 300)
	v.SetDefault("rpc_timeout_seconds", 30)
	v.SetDefault("max_tokens", 20)
	v.SetDefault("max_concurrent_lookups", 8)
	v.SetDefault("debounce_ms", 500)
	v.SetDefault("quote_ttl_seconds", 10)
	v.SetDefault("slippage_default", 1.0)
	v.SetDefault("okx_base_url", "https://www.okx.com")
	v.SetDefault("price_poll_seconds", 5)
	v.SetDefault("price_symbols", []string{"BTC", "ETH", "OKB", "USDT", "USDC", "SOL", "MATIC", "AVAX"})
}

func loadEnv(v *viper.Viper) (*Config, error) {
	// .env is optional, env can come from docker or systemd, so skip error
	_ = godotenv.Load()
	v.SetEnvPrefix("DEXDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal env config: %w", err)
	}
	if err := verifyConfig(&config); err != nil {
		return nil, fmt.Errorf("failed to verify config: %w", err)
	}
	return &config, nil
}

// bindEnvKeys binds each config key to its env var so Unmarshal sees env
// values when no config file is loaded (env-only mode).
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"host", "port", "allowed_origins", "rate_per_minute",
		"rpc_timeout_seconds", "max_tokens", "max_concurrent_lookups",
		"debounce_ms", "quote_ttl_seconds", "slippage_default",
		"okx_base_url", "okx_api_key",
		"price_poll_seconds", "price_symbols",
		"log_file", "chains_config",
		"xlayer_rpc_url", "ethereum_rpc_url", "polygon_rpc_url",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

func loadFile(v *viper.Viper, configPath string) (*Config, error) {
	if !strings.HasSuffix(configPath, ".toml") {
		return nil, fmt.Errorf("config file must be a toml file")
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := verifyConfig(&config); err != nil {
		return nil, fmt.Errorf("failed to verify config: %w", err)
	}
	return &config, nil
}

func verifyConfig(c *Config) error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.RPCTimeoutSeconds <= 0 {
		return fmt.Errorf("rpc timeout must be positive, got %d", c.RPCTimeoutSeconds)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	}
	if c.MaxConcurrentLookups <= 0 {
		return fmt.Errorf("max concurrent lookups must be positive, got %d", c.MaxConcurrentLookups)
	}
	if c.DebounceMS < 0 {
		return fmt.Errorf("debounce must not be negative, got %d", c.DebounceMS)
	}
	if c.SlippageDefault < 0 || c.SlippageDefault > 50 {
		return fmt.Errorf("default slippage must be within 0..50, got %f", c.SlippageDefault)
	}
	if c.PricePollSeconds <= 0 {
		return fmt.Errorf("price poll interval must be positive, got %d", c.PricePollSeconds)
	}
	return nil
}

// RPCTimeout returns the per-call RPC timeout as a duration.
func (c *Config) RPCTimeout() time.Duration {
	return time.Duration(c.RPCTimeoutSeconds) * time.Second
}

// Debounce returns the quote debounce window as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// QuoteTTL returns the quote freshness window as a duration.
func (c *Config) QuoteTTL() time.Duration {
	return time.Duration(c.QuoteTTLSeconds) * time.Second
}

// Address returns the host:port the HTTP server binds to.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Chains resolves the chain set: TOML file when configured, built-in
// defaults otherwise, then per-chain RPC URL overrides from the env config.
func (c *Config) Chains() ([]chains.ChainConfig, error) {
	var set []chains.ChainConfig
	if c.ChainsConfig != "" {
		loaded, err := chains.LoadFromFile(c.ChainsConfig)
		if err != nil {
			return nil, err
		}
		set = loaded
	} else {
		set = chains.DefaultChains()
	}

	overrides := map[int64]string{
		196: c.XLayerRPCURL,
		1:   c.EthereumRPCURL,
		137: c.PolygonRPCURL,
	}
	for i := range set {
		if url := overrides[set[i].ChainID]; url != "" {
			set[i].RPCURL = url
		}
	}
	return set, nil
}

// FileExists is a small helper for main to decide between env and file mode.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
