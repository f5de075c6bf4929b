// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App        AppConfig              `mapstructure:"app"`
	HTTP       HTTPConfig             `mapstructure:"http"`
	Chains     map[string]ChainConfig `mapstructure:"chains"`
	Risk       RiskConfig             `mapstructure:"risk"`
	MEV        MEVConfig              `mapstructure:"mev"`
	Settlement SettlementConfig       `mapstructure:"settlement"`
	Binance    BinanceConfig          `mapstructure:"binance"`
	OneInch    OneInchConfig          `mapstructure:"oneinch"`
	Bridge     BridgeConfig           `mapstructure:"bridge"`
	StateProof StateProofConfig       `mapstructure:"stateproof"`
	Relay      RelayConfig            `mapstructure:"relay"`
	Telemetry  TelemetryConfig        `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
}

// HTTPConfig holds the API and health listeners.
type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	HealthPort   int           `mapstructure:"health_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ChainConfig describes one EVM network and the contracts used on it.
// Empty addresses mean the capability is not available on that chain.
type ChainConfig struct {
	ChainID           uint64        `mapstructure:"chain_id"`
	RPCURL            string        `mapstructure:"rpc_url"`
	AavePool          string        `mapstructure:"aave_pool"`
	AaveDataProvider  string        `mapstructure:"aave_data_provider"`
	UniswapFactory    string        `mapstructure:"uniswap_factory"`
	UniswapQuoter     string        `mapstructure:"uniswap_quoter"`
	ValidatorRegistry string        `mapstructure:"validator_registry"`
	ValidatorCount    uint64        `mapstructure:"validator_count"` // used when no registry contract exists
	ProofAccount      string        `mapstructure:"proof_account"`   // account whose proof anchors state-root checks
	RelayURL          string        `mapstructure:"relay_url"`
	MaxGasPriceGwei   float64       `mapstructure:"max_gas_price_gwei"`
	GasCacheTTL       time.Duration `mapstructure:"gas_cache_ttl"`
}

// Address parses a configured contract address; ok is false when unset.
func (c ChainConfig) Address(hex string) (common.Address, bool) {
	if hex == "" || !common.IsHexAddress(hex) {
		return common.Address{}, false
	}
	return common.HexToAddress(hex), true
}

// RiskConfig holds the calibration constants of every risk scorer.
type RiskConfig struct {
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	CacheSize   int           `mapstructure:"cache_size"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`

	UtilizationWeight    float64 `mapstructure:"utilization_weight"`
	VolatilityWeight     float64 `mapstructure:"volatility_weight"`
	SizingWeight         float64 `mapstructure:"sizing_weight"`
	CollateralWeight     float64 `mapstructure:"collateral_weight"`
	MaxLoanRatio         float64 `mapstructure:"max_loan_ratio"`
	CollateralMultiplier float64 `mapstructure:"collateral_multiplier"`
	ViableMaxScore       int     `mapstructure:"viable_max_score"`
	ViableMaxUtilization float64 `mapstructure:"viable_max_utilization"`
	WarningThreshold     float64 `mapstructure:"warning_threshold"`

	MaxValidationLag  uint64  `mapstructure:"max_validation_lag"`
	MinValidatorCount uint64  `mapstructure:"min_validator_count"`
	MaxBlockTimeMs    float64 `mapstructure:"max_block_time_ms"`
	BlockSampleSize   uint64  `mapstructure:"block_sample_size"`
	SearchWindow      uint64  `mapstructure:"search_window"`
	SearchConcurrency int     `mapstructure:"search_concurrency"`

	BridgeLatencyCeilingMs float64 `mapstructure:"bridge_latency_ceiling_ms"`
	BridgeMinReliability   float64 `mapstructure:"bridge_min_reliability"`
	BridgeMinCoverage      float64 `mapstructure:"bridge_min_coverage"`
	BridgeLiquidityScale   float64 `mapstructure:"bridge_liquidity_scale"`
	BridgeRecommendAbove   float64 `mapstructure:"bridge_recommend_above"`

	FlashLoanWeight    float64 `mapstructure:"flash_loan_weight"`
	NetworkStateWeight float64 `mapstructure:"network_state_weight"`
	CrossChainWeight   float64 `mapstructure:"cross_chain_weight"`
}

// MEVConfig holds MEV exposure calibration.
type MEVConfig struct {
	MinBlockDelay    uint64  `mapstructure:"min_block_delay"`
	MaxBlockDelay    uint64  `mapstructure:"max_block_delay"`
	MaxPriceImpact   float64 `mapstructure:"max_price_impact"`
	HighGasThreshold uint64  `mapstructure:"high_gas_threshold"`
	BaselineGas      uint64  `mapstructure:"baseline_gas"`
}

// SettlementConfig holds settlement rules and executor tuning.
type SettlementConfig struct {
	MaxSlippage          float64       `mapstructure:"max_slippage"`
	MinLiquidity         string        `mapstructure:"min_liquidity"` // base units
	MaxGasPriceGwei      float64       `mapstructure:"max_gas_price_gwei"`
	MinConfirmations     uint64        `mapstructure:"min_confirmations"`
	MaxExecutionDelay    time.Duration `mapstructure:"max_execution_delay"`
	PriceImpactThreshold float64       `mapstructure:"price_impact_threshold"`
	SplitInterval        time.Duration `mapstructure:"split_interval"`
	BatchSize            int           `mapstructure:"batch_size"`
	LargeAmountUnits     int64         `mapstructure:"large_amount_units"`
	ConfirmPollInterval  time.Duration `mapstructure:"confirm_poll_interval"`
	SubmitRetries        uint          `mapstructure:"submit_retries"`
	SignerKey            string        `mapstructure:"signer_key"`
}

// MinLiquidityDecimal parses MinLiquidity.
func (c *SettlementConfig) MinLiquidityDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.MinLiquidity)
}

// BinanceConfig holds Binance REST market data settings.
type BinanceConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	QuoteAsset  string        `mapstructure:"quote_asset"`
	StablePair  string        `mapstructure:"stable_pair"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	Burst       int           `mapstructure:"burst"`
	Timeout     time.Duration `mapstructure:"timeout"`
	StatsMaxAge time.Duration `mapstructure:"stats_max_age"`
}

// OneInchConfig holds 1inch swap API settings.
type OneInchConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Burst     int           `mapstructure:"burst"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Slippage  float64       `mapstructure:"slippage"`
}

// BridgeConfig holds the bridge status service.
type BridgeConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	RetryMax int           `mapstructure:"retry_max"`
}

// StateProofConfig selects how state roots are validated: "rpc" verifies
// eth_getProof account proofs locally, "http" delegates to a proof service.
type StateProofConfig struct {
	Mode    string        `mapstructure:"mode"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RelayConfig tunes private transaction relays.
type RelayConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	RetryMax int           `mapstructure:"retry_max"`
	Fast     bool          `mapstructure:"fast"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	TraceExporter  string `mapstructure:"trace_exporter"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// ChainByID returns the chain configured with chainID.
func (c *Config) ChainByID(chainID uint64) (ChainConfig, bool) {
	for _, ch := range c.Chains {
		if ch.ChainID == chainID {
			return ch, true
		}
	}
	return ChainConfig{}, false
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("ARB")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "ARB_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "ARB_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "ARB_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv("http.port", "ARB_HTTP_PORT", "PORT")

	// Chains
	v.BindEnv("chains.ethereum.rpc_url", "ARB_ETH_RPC_URL", "ETH_HTTP_URL")
	v.BindEnv("chains.ethereum.relay_url", "ARB_ETH_RELAY_URL")
	v.BindEnv("chains.mantle.rpc_url", "ARB_MANTLE_RPC_URL", "MANTLE_RPC_URL")

	// Collaborators
	v.BindEnv("oneinch.api_key", "ARB_ONEINCH_API_KEY", "ONEINCH_API_KEY")
	v.BindEnv("bridge.base_url", "ARB_BRIDGE_URL")
	v.BindEnv("stateproof.mode", "ARB_STATEPROOF_MODE")
	v.BindEnv("stateproof.url", "ARB_STATEPROOF_URL")
	v.BindEnv("settlement.signer_key", "ARB_SIGNER_KEY")

	// Telemetry
	v.BindEnv("telemetry.enabled", "ARB_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "ARB_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "ARB_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.trace_exporter", "ARB_TRACE_EXPORTER")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "arbguard")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")

	v.SetDefault("http.port", 8080)
	v.SetDefault("http.health_port", 8081)
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "6m")

	// Ethereum mainnet: Aave V3, Uniswap V3, Flashbots Protect.
	v.SetDefault("chains.ethereum.chain_id", 1)
	v.SetDefault("chains.ethereum.aave_pool", "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2")
	v.SetDefault("chains.ethereum.aave_data_provider", "0x7B4EB56E7CD4b454BA8ff71E4518426369a138a3")
	v.SetDefault("chains.ethereum.uniswap_factory", "0x1F98431c8aD98523631AE4a59f267346ea31F984")
	v.SetDefault("chains.ethereum.uniswap_quoter", "0x61fFE014bA17989E743c5F6cB21bF9697530B21e")
	v.SetDefault("chains.ethereum.validator_count", 1000000)
	v.SetDefault("chains.ethereum.proof_account", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	v.SetDefault("chains.ethereum.relay_url", "https://rpc.flashbots.net/fast")
	v.SetDefault("chains.ethereum.max_gas_price_gwei", 500)
	v.SetDefault("chains.ethereum.gas_cache_ttl", "12s")

	// Mantle: single sequencer, settlement target.
	v.SetDefault("chains.mantle.chain_id", 5000)
	v.SetDefault("chains.mantle.validator_count", 1)
	v.SetDefault("chains.mantle.proof_account", "0x78c1b0C915c4FAA5FffA6CAbf0219DA63d7f4cb8")
	v.SetDefault("chains.mantle.max_gas_price_gwei", 50)
	v.SetDefault("chains.mantle.gas_cache_ttl", "4s")

	// Risk
	v.SetDefault("risk.call_timeout", "20s")
	v.SetDefault("risk.cache_size", 4096)
	v.SetDefault("risk.cache_ttl", "10m")
	v.SetDefault("risk.utilization_weight", 0.3)
	v.SetDefault("risk.volatility_weight", 0.3)
	v.SetDefault("risk.sizing_weight", 0.2)
	v.SetDefault("risk.collateral_weight", 0.2)
	v.SetDefault("risk.max_loan_ratio", 0.8)
	v.SetDefault("risk.collateral_multiplier", 1.5)
	v.SetDefault("risk.viable_max_score", 80)
	v.SetDefault("risk.viable_max_utilization", 0.95)
	v.SetDefault("risk.warning_threshold", 70)
	v.SetDefault("risk.max_validation_lag", 10)
	v.SetDefault("risk.min_validator_count", 3)
	v.SetDefault("risk.max_block_time_ms", 15000)
	v.SetDefault("risk.block_sample_size", 100)
	v.SetDefault("risk.search_window", 1000)
	v.SetDefault("risk.search_concurrency", 8)
	v.SetDefault("risk.bridge_latency_ceiling_ms", 60000)
	v.SetDefault("risk.bridge_min_reliability", 0.95)
	v.SetDefault("risk.bridge_min_coverage", 2)
	v.SetDefault("risk.bridge_liquidity_scale", 75)
	v.SetDefault("risk.bridge_recommend_above", 70)
	v.SetDefault("risk.flash_loan_weight", 0.4)
	v.SetDefault("risk.network_state_weight", 0.6)
	v.SetDefault("risk.cross_chain_weight", 0.6)

	// MEV
	v.SetDefault("mev.min_block_delay", 1)
	v.SetDefault("mev.max_block_delay", 5)
	v.SetDefault("mev.max_price_impact", 1.0)
	v.SetDefault("mev.high_gas_threshold", 300000)
	v.SetDefault("mev.baseline_gas", 150000)

	// Settlement
	v.SetDefault("settlement.max_slippage", 1.0)
	v.SetDefault("settlement.min_liquidity", "100000000000000000000")
	v.SetDefault("settlement.max_gas_price_gwei", 100)
	v.SetDefault("settlement.min_confirmations", 2)
	v.SetDefault("settlement.max_execution_delay", "5m")
	v.SetDefault("settlement.price_impact_threshold", 0.5)
	v.SetDefault("settlement.split_interval", "30s")
	v.SetDefault("settlement.batch_size", 3)
	v.SetDefault("settlement.large_amount_units", 10)
	v.SetDefault("settlement.confirm_poll_interval", "3s")
	v.SetDefault("settlement.submit_retries", 3)

	// Collaborators
	v.SetDefault("binance.base_url", "https://api.binance.com")
	v.SetDefault("binance.quote_asset", "USDT")
	v.SetDefault("binance.stable_pair", "USDCUSDT")
	v.SetDefault("binance.rate_limit", 10)
	v.SetDefault("binance.burst", 5)
	v.SetDefault("binance.timeout", "5s")
	v.SetDefault("binance.stats_max_age", "1m")
	v.SetDefault("oneinch.base_url", "https://api.1inch.dev/swap/v6.0")
	v.SetDefault("oneinch.rate_limit", 1)
	v.SetDefault("oneinch.burst", 1)
	v.SetDefault("oneinch.timeout", "10s")
	v.SetDefault("oneinch.slippage", 1.0)
	v.SetDefault("bridge.timeout", "10s")
	v.SetDefault("bridge.retry_max", 3)
	v.SetDefault("stateproof.mode", "rpc")
	v.SetDefault("stateproof.timeout", "10s")
	v.SetDefault("relay.timeout", "10s")
	v.SetDefault("relay.retry_max", 2)
	v.SetDefault("relay.fast", true)

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "arbguard")
	v.SetDefault("telemetry.trace_exporter", "otlp-grpc")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	seen := make(map[uint64]string, len(c.Chains))
	active := 0
	for name, ch := range c.Chains {
		if ch.ChainID == 0 {
			return fmt.Errorf("chains.%s.chain_id is required", name)
		}
		if other, dup := seen[ch.ChainID]; dup {
			return fmt.Errorf("chains.%s and chains.%s share chain_id %d", name, other, ch.ChainID)
		}
		seen[ch.ChainID] = name

		for key, addr := range map[string]string{
			"aave_pool":          ch.AavePool,
			"aave_data_provider": ch.AaveDataProvider,
			"uniswap_factory":    ch.UniswapFactory,
			"uniswap_quoter":     ch.UniswapQuoter,
			"validator_registry": ch.ValidatorRegistry,
			"proof_account":      ch.ProofAccount,
		} {
			if addr != "" && !common.IsHexAddress(addr) {
				return fmt.Errorf("invalid chains.%s.%s: %s", name, key, addr)
			}
		}
		if ch.RPCURL != "" {
			active++
		}
	}
	if active == 0 {
		return fmt.Errorf("at least one chain needs an rpc_url")
	}

	if c.Risk.FlashLoanWeight <= 0 || c.Risk.NetworkStateWeight <= 0 || c.Risk.CrossChainWeight <= 0 {
		return fmt.Errorf("risk component weights must be positive")
	}
	if c.MEV.MinBlockDelay > c.MEV.MaxBlockDelay {
		return fmt.Errorf("mev.min_block_delay (%d) exceeds mev.max_block_delay (%d)", c.MEV.MinBlockDelay, c.MEV.MaxBlockDelay)
	}
	if c.MEV.BaselineGas == 0 {
		return fmt.Errorf("mev.baseline_gas must be positive")
	}
	if _, err := c.Settlement.MinLiquidityDecimal(); err != nil {
		return fmt.Errorf("invalid settlement.min_liquidity: %w", err)
	}
	if c.Settlement.BatchSize <= 0 {
		return fmt.Errorf("settlement.batch_size must be positive")
	}
	switch c.StateProof.Mode {
	case "rpc":
	case "http":
		if c.StateProof.URL == "" {
			return fmt.Errorf("stateproof.url is required in http mode")
		}
	default:
		return fmt.Errorf("invalid stateproof.mode: %s", c.StateProof.Mode)
	}
	return nil
}
