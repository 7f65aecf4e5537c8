package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Telegram
	BotToken        string
	BotUsername     string
	BotInitTimeout  time.Duration
	BotStartRetries int
	BotRetryBackoff time.Duration

	// Database
	DBPath string

	// Mantle
	RPCURL         string
	ChainID        int64
	ExplorerURL    string
	ExplorerAPIURL string

	// Custodial wallet provider
	CustodyAPIURL string
	CustodyAPIKey string

	// Payment links
	PayBaseURL string
	QRBaseURL  string

	// HTTP API
	HTTPPort          int
	MCPJWTSecret      string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	WebhookSecret     string

	// Transfers
	NativeMinimum float64
	TokenMinimum  float64
	GasReserve    float64
	FeeReserve    float64

	// Agent
	AgentMode       string
	LLMProvider     string
	LLMModel        string
	AnthropicAPIKey string
	OpenAIAPIKey    string

	// Sessions
	SessionTTL   time.Duration
	NATSURL      string
	NATSKVBucket string

	// Observability
	LogLevel     slog.Level
	OTELEndpoint string

	// Deposits
	DepositPollInterval time.Duration
}

func Load() *Config {
	cfg := &Config{
		// Telegram
		BotToken:        getEnv("BOT_TOKEN", ""),
		BotUsername:     getEnv("BOT_USERNAME", "obverse_bot"),
		BotInitTimeout:  getEnvDuration("BOT_INIT_TIMEOUT", 10*time.Second),
		BotStartRetries: getEnvInt("BOT_START_RETRIES", 3),
		BotRetryBackoff: getEnvDuration("BOT_RETRY_BACKOFF", 2*time.Second),

		// Database
		DBPath: getEnv("DB_PATH", "./obverse.db"),

		// Mantle
		RPCURL:         getEnv("MANTLE_RPC_URL", "https://rpc.mantle.xyz"),
		ChainID:        int64(getEnvInt("MANTLE_CHAIN_ID", 5000)),
		ExplorerURL:    strings.TrimSuffix(getEnv("EXPLORER_URL", "https://explorer.mantle.xyz"), "/"),
		ExplorerAPIURL: strings.TrimSuffix(getEnv("EXPLORER_API_URL", "https://explorer.mantle.xyz/api"), "/"),

		// Custodial wallet provider
		CustodyAPIURL: strings.TrimSuffix(getEnv("CUSTODY_API_URL", ""), "/"),
		CustodyAPIKey: getEnv("CUSTODY_API_KEY", ""),

		// Payment links
		PayBaseURL: strings.TrimSuffix(getEnv("PAY_BASE_URL", "https://obverse-ui.vercel.app"), "/"),
		QRBaseURL:  getEnv("QR_BASE_URL", "https://api.qrserver.com/v1/create-qr-code/"),

		// HTTP API
		HTTPPort:          getEnvInt("HTTP_PORT", 8080),
		MCPJWTSecret:      getEnv("MCP_JWT_SECRET", ""),
		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		WebhookSecret:     getEnv("WEBHOOK_SECRET", ""),

		// Transfers
		NativeMinimum: getEnvFloat("TRANSFER_NATIVE_MINIMUM", 0.001),
		TokenMinimum:  getEnvFloat("TRANSFER_TOKEN_MINIMUM", 0.01),
		GasReserve:    getEnvFloat("TRANSFER_GAS_RESERVE", 0.01),
		FeeReserve:    getEnvFloat("TRANSFER_FEE_RESERVE", 0.001),

		// Agent
		AgentMode:       strings.ToLower(getEnv("AGENT_MODE", "rules")),
		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", "anthropic")),
		LLMModel:        getEnv("LLM_MODEL", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),

		// Sessions
		SessionTTL:   getEnvDuration("SESSION_TTL", 15*time.Minute),
		NATSURL:      getEnv("NATS_URL", ""),
		NATSKVBucket: getEnv("NATS_KV_BUCKET", "obverse_sessions"),

		// Observability
		LogLevel:     parseLevel(getEnv("LOG_LEVEL", "info")),
		OTELEndpoint: getEnv("OTEL_ENDPOINT", ""),

		// Deposits
		DepositPollInterval: getEnvDuration("DEPOSIT_POLL_INTERVAL", 30*time.Second),
	}

	return cfg
}

// UseLLM reports whether the LLM-backed agent should be used.
func (c *Config) UseLLM() bool {
	if c.AgentMode != "llm" {
		return false
	}
	return c.AnthropicAPIKey != "" || c.OpenAIAPIKey != ""
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
