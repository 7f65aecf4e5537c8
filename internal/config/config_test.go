package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("SESSION_TTL", "")

	cfg := Load()

	assert.Equal(t, int64(5000), cfg.ChainID)
	assert.Equal(t, 15*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 10*time.Second, cfg.BotInitTimeout)
	assert.Equal(t, 3, cfg.BotStartRetries)
	assert.Equal(t, 0.01, cfg.GasReserve)
	assert.Equal(t, 0.001, cfg.FeeReserve)
	assert.Equal(t, "https://obverse-ui.vercel.app", cfg.PayBaseURL)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.UseLLM())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PAY_BASE_URL", "https://pay.example.com/")
	t.Setenv("SESSION_TTL", "5m")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("TRANSFER_GAS_RESERVE", "0.05")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("AGENT_MODE", "LLM")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := Load()

	assert.Equal(t, "https://pay.example.com", cfg.PayBaseURL)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, 0.05, cfg.GasReserve)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.UseLLM())
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("HTTP_PORT", "eighty")
	t.Setenv("SESSION_TTL", "soon")
	t.Setenv("TRANSFER_TOKEN_MINIMUM", "a lot")

	cfg := Load()

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 15*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 0.01, cfg.TokenMinimum)
}
