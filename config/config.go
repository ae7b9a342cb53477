package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	MySQL             MySQLConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Solana            SolanaConfig
	Poller            PollerConfig
	Payments          PaymentsConfig
	Jobs              JobsConfig
}

type AppConfig struct {
	ServiceName   string
	APIKey        string
	PublicBaseURL string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type SolanaEndpoint struct {
	Key     string `yaml:"key"`
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

type SolanaConfig struct {
	MerchantWallet   string
	Endpoints        []SolanaEndpoint
	DefaultEndpoint  string
	RequestTimeout   time.Duration
	Explorer         string
	WalletTrimLength int
}

type PollerConfig struct {
	InitialDelay  time.Duration
	Interval      time.Duration
	MaxAttempts   int
	RedirectDelay time.Duration
}

type PaymentsConfig struct {
	CallbackMaxAttempts   int32
	CallbackRetryInterval time.Duration
	CallbackHTTPTimeout   time.Duration
	PendingTimeout        time.Duration
	ReconcileStaleAfter   time.Duration
	JobBatchSize          int32
}

type JobsConfig struct {
	ReconcileInterval        time.Duration
	CallbackDispatchInterval time.Duration
	ExpirePendingInterval    time.Duration
	HealthCheckInterval      time.Duration
}

type endpointsFile struct {
	DefaultEndpoint string           `yaml:"default_endpoint"`
	RequestTimeout  int              `yaml:"request_timeout"`
	Endpoints       []SolanaEndpoint `yaml:"endpoints"`
}

func Load() (*Config, error) {
	return load(true)
}

// LoadOffline loads the configuration for commands that only talk to the
// chain or to a status endpoint; MYSQL_DSN may be empty.
func LoadOffline() (*Config, error) {
	return load(false)
}

func load(requireMySQL bool) (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" && requireMySQL {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	solanaCfg, err := loadSolana()
	if err != nil {
		return nil, err
	}

	return &Config{
		App: AppConfig{
			ServiceName:   getEnv("APP_SERVICE_NAME", "solana-pay-service"),
			APIKey:        getEnv("APP_API_KEY", ""),
			PublicBaseURL: strings.TrimRight(getEnv("APP_PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Solana: solanaCfg,
		Poller: PollerConfig{
			InitialDelay:  getSecondsEnv("POLLER_INITIAL_DELAY_SECONDS", 3*time.Second),
			Interval:      getSecondsEnv("POLLER_INTERVAL_SECONDS", 3*time.Second),
			MaxAttempts:   getIntEnv("POLLER_MAX_ATTEMPTS", 40),
			RedirectDelay: getSecondsEnv("POLLER_REDIRECT_DELAY_SECONDS", 2*time.Second),
		},
		Payments: PaymentsConfig{
			CallbackMaxAttempts:   int32(getIntEnv("PAYMENTS_CALLBACK_MAX_ATTEMPTS", 10)),
			CallbackRetryInterval: getMinutesEnv("PAYMENTS_CALLBACK_RETRY_INTERVAL_MINUTES", 5*time.Minute),
			CallbackHTTPTimeout:   getSecondsEnv("PAYMENTS_CALLBACK_HTTP_TIMEOUT_SECONDS", 10*time.Second),
			PendingTimeout:        getMinutesEnv("PAYMENTS_PENDING_TIMEOUT_MINUTES", 60*time.Minute),
			ReconcileStaleAfter:   getMinutesEnv("PAYMENTS_RECONCILE_STALE_AFTER_MINUTES", 2*time.Minute),
			JobBatchSize:          int32(getIntEnv("PAYMENTS_JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			ReconcileInterval:        getMinutesEnv("PAYMENTS_RECONCILE_INTERVAL_MINUTES", time.Minute),
			CallbackDispatchInterval: getMinutesEnv("PAYMENTS_CALLBACK_DISPATCH_INTERVAL_MINUTES", time.Minute),
			ExpirePendingInterval:    getMinutesEnv("PAYMENTS_EXPIRE_PENDING_INTERVAL_MINUTES", 5*time.Minute),
			HealthCheckInterval:      getSecondsEnv("GRPC_HEALTH_CHECK_INTERVAL_SECONDS", 15*time.Second),
		},
	}, nil
}

func loadSolana() (SolanaConfig, error) {
	cfg := SolanaConfig{
		MerchantWallet:   strings.TrimSpace(getEnv("SOLANA_MERCHANT_WALLET", "")),
		DefaultEndpoint:  "mainnet",
		RequestTimeout:   5 * time.Second,
		Explorer:         getEnv("SOLANA_EXPLORER", "solscan"),
		WalletTrimLength: getIntEnv("SOLANA_WALLET_TRIM_LENGTH", 4),
	}

	if path := strings.TrimSpace(os.Getenv("SOLANA_ENDPOINTS_FILE")); path != "" {
		file, err := loadEndpointsFile(path)
		if err != nil {
			return SolanaConfig{}, err
		}
		cfg.Endpoints = file.Endpoints
		if file.DefaultEndpoint != "" {
			cfg.DefaultEndpoint = file.DefaultEndpoint
		}
		if file.RequestTimeout > 0 {
			cfg.RequestTimeout = time.Duration(file.RequestTimeout) * time.Second
		}
	} else {
		cfg.Endpoints = []SolanaEndpoint{
			{
				Key:     "mainnet",
				Name:    "Mainnet Beta",
				URL:     getEnv("SOLANA_MAINNET_RPC_URL", "https://api.mainnet-beta.solana.com"),
				Enabled: getBoolEnv("SOLANA_MAINNET_ENABLED", true),
			},
			{
				Key:     "devnet",
				Name:    "Devnet",
				URL:     getEnv("SOLANA_DEVNET_RPC_URL", "https://api.devnet.solana.com"),
				Enabled: getBoolEnv("SOLANA_DEVNET_ENABLED", false),
			},
			{
				Key:     "testnet",
				Name:    "Testnet",
				URL:     getEnv("SOLANA_TESTNET_RPC_URL", "https://api.testnet.solana.com"),
				Enabled: getBoolEnv("SOLANA_TESTNET_ENABLED", false),
			},
		}
	}

	cfg.DefaultEndpoint = getEnv("SOLANA_DEFAULT_ENDPOINT", cfg.DefaultEndpoint)
	cfg.RequestTimeout = getSecondsEnv("SOLANA_REQUEST_TIMEOUT_SECONDS", cfg.RequestTimeout)

	return cfg, nil
}

func loadEndpointsFile(path string) (*endpointsFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read solana endpoints file: %w", err)
	}

	var file endpointsFile
	if err := yaml.Unmarshal(b, &file); err != nil {
		return nil, fmt.Errorf("parse solana endpoints file: %w", err)
	}
	for i, endpoint := range file.Endpoints {
		if strings.TrimSpace(endpoint.Key) == "" {
			return nil, fmt.Errorf("solana endpoint #%d has no key", i+1)
		}
		if endpoint.Name == "" {
			file.Endpoints[i].Name = endpoint.Key
		}
	}

	return &file, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
