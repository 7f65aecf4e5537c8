package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/shopspring/decimal"

	"github.com/obverse/mantle-bot/internal/agent"
	"github.com/obverse/mantle-bot/internal/api"
	"github.com/obverse/mantle-bot/internal/balance"
	"github.com/obverse/mantle-bot/internal/chain"
	"github.com/obverse/mantle-bot/internal/config"
	"github.com/obverse/mantle-bot/internal/custody"
	"github.com/obverse/mantle-bot/internal/flow"
	"github.com/obverse/mantle-bot/internal/llm"
	"github.com/obverse/mantle-bot/internal/mcp"
	"github.com/obverse/mantle-bot/internal/notifier"
	"github.com/obverse/mantle-bot/internal/paylink"
	"github.com/obverse/mantle-bot/internal/storage"
	"github.com/obverse/mantle-bot/internal/telegram"
	"github.com/obverse/mantle-bot/internal/tools"
	"github.com/obverse/mantle-bot/internal/tracing"
	"github.com/obverse/mantle-bot/internal/transfer"
)

const (
	serviceName        = "mantle-bot"
	pendingTransferTTL = 5 * time.Minute
	sessionSweepEvery  = time.Minute
	historyIdleTTL     = time.Hour
)

func main() {
	// Load .env file before anything reads the environment
	envErr := godotenv.Load()

	// Load config
	cfg := config.Load()

	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(log)
	if envErr != nil {
		log.Debug("no .env file found")
	}

	if cfg.BotToken == "" {
		log.Error("BOT_TOKEN is required")
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cancel, cfg, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, log *slog.Logger) error {
	// Tracing
	shutdownTracing, err := tracing.Init(ctx, cfg.OTELEndpoint, serviceName)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("shutdown tracing", "error", err)
		}
	}()

	// Initialize storage
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer store.Close()
	log.Info("storage initialized", "path", cfg.DBPath)

	// Chain access
	rpc, err := chain.Dial(ctx, cfg.RPCURL, log)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	defer rpc.Close()
	explorer := chain.NewExplorer(cfg.ExplorerAPIURL, cfg.ExplorerURL)
	provider := custody.NewClient(cfg.CustodyAPIURL, cfg.CustodyAPIKey)
	log.Info("chain clients initialized", "rpc", cfg.RPCURL, "chain_id", cfg.ChainID)

	// Wallet services
	balances := balance.New(rpc, store, log)
	transfers := transfer.NewService(store, rpc, provider, store, explorer, cfg.ChainID, transfer.Policy{
		NativeMinimum: decimal.NewFromFloat(cfg.NativeMinimum),
		TokenMinimum:  decimal.NewFromFloat(cfg.TokenMinimum),
		GasReserve:    decimal.NewFromFloat(cfg.GasReserve),
		FeeReserve:    decimal.NewFromFloat(cfg.FeeReserve),
	}, log)
	links := paylink.NewService(store, store, cfg.PayBaseURL, cfg.QRBaseURL, log)
	toolbox := tools.New(balances, transfers, links, transfer.NewPending(pendingTransferTTL), log)

	// Payment link sessions
	sessions, closeSessions, err := sessionStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSessions()
	engine := flow.NewEngine(sessions, links, store, log)

	// Agent
	chat, err := newAgent(ctx, cfg, engine, toolbox, log)
	if err != nil {
		return err
	}

	// Initialize telegram bot
	bot, err := telegram.New(ctx, cfg, telegram.Deps{
		Store:    store,
		Custody:  provider,
		Agent:    chat,
		Flow:     engine,
		Tools:    toolbox,
		Links:    links,
		Explorer: explorer,
	}, log)
	if err != nil {
		return fmt.Errorf("init telegram bot: %w", err)
	}
	log.Info("telegram bot initialized")

	// Initialize notifier and deposit watcher
	notify := notifier.New(bot, store, explorer, log)
	watcher := notifier.NewDepositWatcher(store, explorer, notify, log)
	go watcher.Start(ctx, cfg.DepositPollInterval)

	// Start HTTP server
	server := api.NewServer(api.Deps{
		Links:    links,
		Wallets:  store,
		Tools:    mcp.NewService(engine, toolbox, chat, log),
		Notifier: notify,
		DB:       store,
	}, api.Options{
		JWTSecret:         cfg.MCPJWTSecret,
		WebhookSecret:     cfg.WebhookSecret,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	}, log)
	go func() {
		if err := server.Start(ctx, cfg.HTTPPort); err != nil {
			log.Error("http server", "error", err)
		}
	}()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	// Start bot polling
	log.Info("starting bot polling...")
	bot.Start(ctx)
	return nil
}

// sessionStore keeps flow sessions in NATS KV when configured, in memory otherwise
func sessionStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (flow.Store, func(), error) {
	if cfg.NATSURL == "" {
		mem := flow.NewMemoryStore(cfg.SessionTTL, log)
		go mem.Start(ctx, sessionSweepEvery)
		log.Info("session store initialized", "backend", "memory", "ttl", cfg.SessionTTL)
		return mem, func() {}, nil
	}

	nc, err := nats.Connect(cfg.NATSURL, nats.Name(serviceName))
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("init jetstream: %w", err)
	}
	kv, err := flow.NewKVStore(ctx, js, cfg.NATSKVBucket, cfg.SessionTTL)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("init session bucket: %w", err)
	}

	log.Info("session store initialized", "backend", "nats", "bucket", cfg.NATSKVBucket, "ttl", cfg.SessionTTL)
	return kv, func() { nc.Drain() }, nil
}

func newAgent(ctx context.Context, cfg *config.Config, engine *flow.Engine, toolbox *tools.Tools, log *slog.Logger) (agent.Agent, error) {
	memory := agent.NewMemory(agent.DefaultMemorySize)
	go memory.Start(ctx, sessionSweepEvery, historyIdleTTL, log)
	if !cfg.UseLLM() {
		log.Info("agent initialized", "mode", "rules")
		return agent.NewRules(engine, toolbox, memory, log), nil
	}

	provider := llm.Provider(cfg.LLMProvider)
	key := cfg.AnthropicAPIKey
	if provider == llm.ProviderOpenAI {
		key = cfg.OpenAIAPIKey
	}
	client, err := llm.NewClient(provider, key)
	if err != nil {
		return nil, fmt.Errorf("init llm client: %w", err)
	}

	log.Info("agent initialized", "mode", "llm", "provider", provider, "model", cfg.LLMModel)
	return agent.NewLLM(client, cfg.LLMModel, engine, toolbox, memory, log), nil
}
