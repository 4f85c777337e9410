// Package main is the entry point for aegis, the guarded execution runtime
// for a local LLM agent. It loads configuration, constructs the policy
// engine, approval manager, skill catalog, and orchestrator, then serves
// the HTTP surface until a shutdown signal arrives.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aegisrun/aegis/internal/approval"
	"github.com/aegisrun/aegis/internal/config"
	"github.com/aegisrun/aegis/internal/gateway"
	"github.com/aegisrun/aegis/internal/memory"
	"github.com/aegisrun/aegis/internal/modelclient"
	"github.com/aegisrun/aegis/internal/orchestrator"
	"github.com/aegisrun/aegis/internal/policy"
	"github.com/aegisrun/aegis/internal/skill"
	"github.com/aegisrun/aegis/internal/skill/builtin"
	"github.com/aegisrun/aegis/internal/storage"
	"github.com/aegisrun/aegis/internal/trace"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("aegis: fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	configPath := os.Getenv("AEGIS_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var redisClient *redis.Client
	if cfg.StorageURL != "" {
		opts, err := redis.ParseURL(cfg.StorageURL)
		if err != nil {
			return fmt.Errorf("parse storage_url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			return fmt.Errorf("connect to storage: %w", err)
		}
		defer redisClient.Close()
	}

	rateLimiter, approvalStore, ringStore, chatHistory := buildStores(redisClient, logger)

	policyEngine, err := policy.NewEngine(cfg.PolicyDocPath, rateLimiter)
	if err != nil {
		return fmt.Errorf("load policy document: %w", err)
	}
	watcher, err := policyEngine.WatchForReload(logger)
	if err != nil {
		return fmt.Errorf("watch policy document: %w", err)
	}
	defer watcher.Close()

	approvals := approval.NewManager(approvalStore, cfg.ApprovalTimeout)
	tracer := trace.NewTracer(trace.NewStdoutSink(os.Stdout), ringStore, logger)

	memStore, err := memory.NewSQLiteStore(os.Getenv("AEGIS_MEMORY_DB"))
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}
	defer memStore.Close()

	catalog := skill.NewCatalog(
		builtin.NewFileRead(policyEngine),
		builtin.NewFileWrite(policyEngine),
		builtin.NewPdfParse(policyEngine),
		builtin.NewUrlFetch(policyEngine),
		builtin.NewWebSearch(),
		builtin.NewRemember(memStore),
		builtin.NewRecall(memStore),
		builtin.NewRagIngest(memStore),
		builtin.NewRagSearch(memStore),
	)
	executor := skill.NewExecutor(policyEngine, approvals, tracer, skill.NewSchemaValidator())

	provider, err := buildProvider(cfg)
	if err != nil {
		return fmt.Errorf("build model provider: %w", err)
	}

	orch := orchestrator.New(provider, catalog, executor, policyEngine, 0)
	server := gateway.New(cfg, orch, policyEngine, approvals, chatHistory, tracer, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go runHeartbeat(ctx, tracer, cfg.HeartbeatInterval)

	logger.Info("aegis starting", "addr", cfg.ListenAddr, "model_provider", provider.Name())
	return server.Start(ctx)
}

// runHeartbeat emits a heartbeat trace event on every tick until ctx is
// cancelled — a liveness signal in the same log stream as every other
// event, independent of the /health endpoint.
func runHeartbeat(ctx context.Context, tracer *trace.Tracer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tracer.Emit(ctx, trace.EventHeartbeat, map[string]any{"status": "alive"})
		}
	}
}

// buildStores picks the Redis-backed implementations when a storage URL is
// configured, otherwise the process-local in-memory ones.
func buildStores(client *redis.Client, logger *slog.Logger) (policy.RateLimiter, approval.Store, trace.RingStore, storage.ChatHistoryStore) {
	if client == nil {
		return policy.NewMemoryRateLimiter(), approval.NewMemoryStore(), storage.NewMemoryRingStore(), storage.NewMemoryChatHistoryStore()
	}
	return policy.NewRedisRateLimiter(client), approval.NewRedisStore(client, logger), storage.NewRedisRingStore(client), storage.NewRedisChatHistoryStore(client)
}

// buildProvider selects the model backend. A configured model-endpoint URL
// is treated as an OpenAI-compatible endpoint (a local model runner or
// gateway); otherwise the default is Anthropic. Either way the provider's
// own credential is read from the environment, matching the secret-broker
// contract the skills use — it is never part of the checked-in config
// document.
func buildProvider(cfg *config.Config) (modelclient.Provider, error) {
	defaultModel := cfg.DefaultModels["default"]

	if cfg.ModelEndpointURL != "" {
		return modelclient.NewOpenAIProvider(modelclient.OpenAIConfig{
			APIKey:       os.Getenv("OPENAI_API_KEY"),
			BaseURL:      cfg.ModelEndpointURL,
			DefaultModel: defaultModel,
		})
	}
	return modelclient.NewAnthropicProvider(modelclient.AnthropicConfig{
		APIKey:       os.Getenv("ANTHROPIC_API_KEY"),
		DefaultModel: defaultModel,
	})
}
