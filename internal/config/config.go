package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DeploymentConfig represents deployments.json written by the contract deploy script.
type DeploymentConfig struct {
	ChainID   int64  `json:"chainId"`
	Network   string `json:"network"`
	RPCURL    string `json:"rpcUrl"`
	Deployer  string `json:"deployer"`
	Contracts struct {
		PortfolioMandala string `json:"PortfolioMandala"`
	} `json:"contracts"`
}

// AppConfig ties together deployment info and environment for the API server.
type AppConfig struct {
	Deployment DeploymentConfig
	Service    ServiceConfig
	Chain      ChainConfig
	Contract   ContractConfig
	Metadata   MetadataConfig
	Portfolio  PortfolioConfig
	Store      StoreConfig
	LogLevel   slog.Level
}

type ServiceConfig struct {
	HTTPPort        int
	BasePath        string
	AllowedOrigins  []string
	AdminHMACSecret string
	HMACClockSkew   time.Duration
	ShutdownTimeout time.Duration
	// TxRecordTTL is how long terminal transaction outcomes are served from the store.
	TxRecordTTL time.Duration
}

type ChainConfig struct {
	RPCURL         string
	ChainID        uint64
	NetworkName    string
	CurrencySymbol string
	BlockExplorer  string
	// OwnerPrivateKey signs admin transactions. Empty keeps the contract client read-only.
	OwnerPrivateKey string
}

type ContractConfig struct {
	Address       string
	Name          string
	Symbol        string
	GasLimit      uint64
	GasMultiplier float64
	// Fake serves an in-memory contract instead of dialing the chain.
	Fake bool
}

type MetadataConfig struct {
	BaseURI         string
	ImageBaseURI    string
	ExternalURLBase string
	RoyaltyBPS      int
	FeeRecipient    string
}

type PortfolioConfig struct {
	DataAPIURL        string
	RequestsPerSecond float64
	ActivityLimit     int
}

type StoreConfig struct {
	Driver      string
	Path        string
	PostgresDSN string
}

// ClientConfig configures the mint command.
type ClientConfig struct {
	APIBaseURL      string
	PrivateKey      string
	RPCURL          string
	ChainID         uint64
	BlockExplorer   string
	PollInterval    time.Duration
	MaxPollAttempts int
	RequestTimeout  time.Duration
	LogLevel        slog.Level
}

const (
	defaultDeploymentsPath = "deployments.json"
	defaultRPCURL          = "https://rpc-amoy.polygon.technology/"
	defaultChainID         = 80002
	defaultExplorer        = "https://www.oklink.com/amoy"
)

// Load aggregates configuration from disk and environment. A missing deployments file is
// not an error; environment values override it.
func Load() (*AppConfig, error) {
	deployCfg, err := loadDeployments(envOr("DEPLOYMENTS_PATH", defaultDeploymentsPath))
	if err != nil {
		return nil, fmt.Errorf("load deployments: %w", err)
	}

	logLevel, err := parseLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	chainID := uint64(deployCfg.ChainID)
	if chainID == 0 {
		chainID = defaultChainID
	}

	serviceCfg := ServiceConfig{
		HTTPPort:        envOrInt("API_HTTP_PORT", 5000),
		BasePath:        "/" + strings.Trim(envOr("API_BASE_PATH", "/api"), "/"),
		AllowedOrigins:  envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		AdminHMACSecret: envOr("ADMIN_HMAC_SECRET", ""),
		HMACClockSkew:   time.Duration(envOrInt("HMAC_CLOCK_SKEW_SECONDS", 60)) * time.Second,
		ShutdownTimeout: time.Duration(envOrInt("SHUTDOWN_TIMEOUT_SECONDS", 15)) * time.Second,
		TxRecordTTL:     time.Duration(envOrInt("TX_RECORD_TTL_HOURS", 24)) * time.Hour,
	}

	chainCfg := ChainConfig{
		RPCURL:          envOr("CHAIN_RPC_URL", firstNonEmpty(deployCfg.RPCURL, defaultRPCURL)),
		ChainID:         uint64(envOrInt("CHAIN_ID", int(chainID))),
		NetworkName:     envOr("CHAIN_NETWORK_NAME", firstNonEmpty(deployCfg.Network, "Polygon Amoy Testnet")),
		CurrencySymbol:  envOr("CHAIN_CURRENCY_SYMBOL", "MATIC"),
		BlockExplorer:   strings.TrimRight(envOr("BLOCK_EXPLORER_URL", defaultExplorer), "/"),
		OwnerPrivateKey: envOr("CHAIN_PRIVATE_KEY", ""),
	}

	contractCfg := ContractConfig{
		Address:       envOr("CONTRACT_ADDRESS", deployCfg.Contracts.PortfolioMandala),
		Name:          envOr("CONTRACT_NAME", "Portfolio Mandala"),
		Symbol:        envOr("CONTRACT_SYMBOL", "PMANDALA"),
		GasLimit:      uint64(envOrInt("MINT_GAS_LIMIT", 500000)),
		GasMultiplier: envOrFloat("GAS_PRICE_MULTIPLIER", 1.1),
		Fake:          envOrBool("CONTRACT_FAKE", false),
	}
	if contractCfg.Address == "" && !contractCfg.Fake {
		return nil, errors.New("contract address is required: set CONTRACT_ADDRESS, deployments.json or CONTRACT_FAKE=true")
	}

	metadataCfg := MetadataConfig{
		BaseURI:         envOr("BASE_URI", "http://localhost:5000/api/nft/metadata/"),
		ImageBaseURI:    envOr("IMAGE_BASE_URI", "http://localhost:5000/api/mandala/"),
		ExternalURLBase: envOr("EXTERNAL_URL_BASE", "http://localhost:5000/mandala/"),
		RoyaltyBPS:      envOrInt("ROYALTY_BPS", 250),
		FeeRecipient:    envOr("FEE_RECIPIENT", ""),
	}

	portfolioCfg := PortfolioConfig{
		DataAPIURL:        envOr("POLYMARKET_DATA_API_URL", "https://data-api.polymarket.com"),
		RequestsPerSecond: envOrFloat("POLYMARKET_RPS", 5),
		ActivityLimit:     envOrInt("POLYMARKET_ACTIVITY_LIMIT", 1000),
	}

	storeCfg := StoreConfig{
		Driver:      envOr("TX_STORE", "file"),
		Path:        envOr("TX_STORE_PATH", filepath.Join(os.TempDir(), "pm-trader-art-txs.json")),
		PostgresDSN: envOr("DATABASE_URL", ""),
	}
	switch storeCfg.Driver {
	case "memory", "file":
	case "postgres":
		if storeCfg.PostgresDSN == "" {
			return nil, errors.New("TX_STORE=postgres requires DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("unknown TX_STORE %q", storeCfg.Driver)
	}

	return &AppConfig{
		Deployment: *deployCfg,
		Service:    serviceCfg,
		Chain:      chainCfg,
		Contract:   contractCfg,
		Metadata:   metadataCfg,
		Portfolio:  portfolioCfg,
		Store:      storeCfg,
		LogLevel:   logLevel,
	}, nil
}

// LoadClient reads the mint command's configuration from the environment.
func LoadClient() (*ClientConfig, error) {
	deployCfg, err := loadDeployments(envOr("DEPLOYMENTS_PATH", defaultDeploymentsPath))
	if err != nil {
		return nil, fmt.Errorf("load deployments: %w", err)
	}
	logLevel, err := parseLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	chainID := uint64(deployCfg.ChainID)
	if chainID == 0 {
		chainID = defaultChainID
	}

	return &ClientConfig{
		APIBaseURL:      strings.TrimRight(envOr("NFT_API_URL", "http://localhost:5000/api"), "/"),
		PrivateKey:      envOr("WALLET_PRIVATE_KEY", ""),
		RPCURL:          envOr("CHAIN_RPC_URL", firstNonEmpty(deployCfg.RPCURL, defaultRPCURL)),
		ChainID:         uint64(envOrInt("CHAIN_ID", int(chainID))),
		BlockExplorer:   strings.TrimRight(envOr("BLOCK_EXPLORER_URL", defaultExplorer), "/"),
		PollInterval:    time.Duration(envOrInt("MINT_POLL_INTERVAL_SECONDS", 5)) * time.Second,
		MaxPollAttempts: envOrInt("MINT_MAX_POLL_ATTEMPTS", 60),
		RequestTimeout:  time.Duration(envOrInt("API_TIMEOUT_SECONDS", 30)) * time.Second,
		LogLevel:        logLevel,
	}, nil
}

func loadDeployments(path string) (*DeploymentConfig, error) {
	var cfg DeploymentConfig
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}

func envOrFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed float64
		if _, err := fmt.Sscanf(val, "%g", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}

func envOrBool(key string, fallback bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
