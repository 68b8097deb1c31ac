package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kowalskidev/assistant-core/internal/config"
	"github.com/kowalskidev/assistant-core/internal/core/ports"
	"github.com/kowalskidev/assistant-core/internal/core/usecase"
	"github.com/kowalskidev/assistant-core/internal/infrastructure/llm/ollama"
	natsqueue "github.com/kowalskidev/assistant-core/internal/infrastructure/queue/nats"
	"github.com/kowalskidev/assistant-core/internal/infrastructure/repository/postgres"
	"github.com/kowalskidev/assistant-core/internal/infrastructure/resilience"
	"github.com/kowalskidev/assistant-core/internal/infrastructure/tokenizer"
	"github.com/kowalskidev/assistant-core/internal/infrastructure/tools"
	"github.com/kowalskidev/assistant-core/internal/infrastructure/vector/qdrant"
	"github.com/kowalskidev/assistant-core/internal/observability/logging"
	"github.com/kowalskidev/assistant-core/internal/observability/metrics"
)

const serviceName = "assistant-core"

// App owns every wired component and their shutdown order. Durable memory,
// the similarity index, and the event queue are optional: when their
// backends are unreachable the pipeline still serves from process memory.
type App struct {
	Config config.Config
	Logger *slog.Logger

	Assistant ports.Assistant
	Models    ports.ModelHealth
	Metrics   *metrics.PipelineMetrics

	prune   func(ctx context.Context)
	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	pipelineMetrics := metrics.NewPipelineMetrics(serviceName)
	exec := resilience.NewExecutor(resilience.DefaultConfig(), logger)

	model := ollama.New(ollama.ClientConfig{
		BaseURL:         cfg.OllamaURL,
		Models:          cfg.Models,
		EmbedModel:      cfg.EmbedModel,
		ChatTimeout:     cfg.ChatTimeout,
		FailedRetention: cfg.FailedRetention,
		RPS:             cfg.ModelRPS,
		Burst:           cfg.ModelBurst,
	}, exec, logger)
	model.OnFallback(func(failedModel string) {
		pipelineMetrics.RecordModelFallback(serviceName, failedModel)
	})

	var store ports.ContextStore
	var prune func(ctx context.Context)
	var closers []func()
	if cfg.EnablePersistence {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			logger.Warn("postgres_unavailable_memory_degraded", "error", err)
		} else {
			contextStore := postgres.NewContextStore(db)
			if err := contextStore.EnsureSchema(ctx); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("ensure schema: %w", err)
			}
			store = contextStore
			closers = append(closers, func() { _ = db.Close() })
			prune = func(ctx context.Context) {
				pruned, err := contextStore.DeleteInactive(ctx, cfg.ContextTTL)
				if err != nil {
					logger.Warn("context_prune_failed", "error", err)
				} else if pruned > 0 {
					logger.Info("contexts_pruned", "count", pruned)
				}
			}
		}
	}

	var index ports.SimilarityIndex
	if cfg.EnableSimilarity {
		index = qdrant.NewSimilarityIndex(cfg.QdrantURL, cfg.QdrantCollection)
	}

	var publisher ports.EventPublisher
	queue, err := natsqueue.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
		ResilienceExecutor: exec,
		Logger:             logger,
	})
	if err != nil {
		logger.Warn("nats_unavailable_events_disabled", "error", err)
	} else {
		publisher = queue
		closers = append(closers, queue.Close)
	}

	memory := usecase.NewMemoryManager(usecase.MemoryConfig{
		MaxContexts:         cfg.MaxContexts,
		CleanupRatio:        cfg.CleanupRatio,
		SummaryThreshold:    cfg.SummaryThreshold,
		VerbatimWindow:      cfg.VerbatimWindow,
		MaxContextTokens:    cfg.MaxContextTokens,
		SimilarityThreshold: cfg.SimilarityThreshold,
		SimilarityTopK:      cfg.SimilarityTopK,
	}, model, store, index, tokenizer.NewCounter(), logger)
	memory.OnContextHit = func(source string) {
		pipelineMetrics.RecordMemoryHit(serviceName, source)
	}
	memory.OnSummary = func() {
		pipelineMetrics.RecordMemorySummary(serviceName)
	}

	registry := usecase.NewToolRegistry(logger)
	if err := tools.RegisterBuiltins(registry, model, tools.Config{}, logger); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	factory := usecase.NewAgentFactory(usecase.AgentDeps{
		Logger: logger,
		Model:  model,
		Tools:  registry,
	})
	agentRegistry, err := usecase.NewAgentRegistry(factory, usecase.AgentGeneral)
	if err != nil {
		return nil, fmt.Errorf("agent registry: %w", err)
	}
	intentMappings := map[string]usecase.AgentType{
		"weather":  usecase.AgentWeather,
		"search":   usecase.AgentSearch,
		"recall":   usecase.AgentKnowledge,
		"shopping": usecase.AgentSearch,
	}
	for intent, agentType := range intentMappings {
		if err := agentRegistry.MapIntent(intent, agentType); err != nil {
			return nil, fmt.Errorf("map intent %q: %w", intent, err)
		}
	}

	executor := usecase.NewPlanExecutor(registry, cfg.StepTimeout, logger)
	executor.OnStep = func(tool, status string) {
		pipelineMetrics.RecordPlanStep(serviceName, tool, status)
	}

	orchestrator := usecase.NewOrchestrator(
		usecase.OrchestratorConfig{
			Service:          serviceName,
			RequestTimeout:   cfg.RequestTimeout,
			MaxContextTokens: cfg.MaxContextTokens,
		},
		usecase.NewIntentDetector(model, logger),
		memory,
		usecase.NewAgentRouter(agentRegistry, logger),
		usecase.NewPlanner(model, registry, cfg.PlannerTemp, logger),
		executor,
		usecase.NewSynthesizer(model, cfg.SynthesizerTemp, logger),
		publisher,
		logger,
	)
	orchestrator.OnTurn = func(status string, elapsed time.Duration) {
		pipelineMetrics.RecordTurn(serviceName, status, elapsed)
	}
	orchestrator.OnAgentRun = func(agentType, status string) {
		pipelineMetrics.RecordAgentRun(serviceName, agentType, status)
	}
	orchestrator.OnIntent = func(intent, source string) {
		pipelineMetrics.RecordIntent(serviceName, intent, source)
	}
	orchestrator.OnPlanSize = func(steps int) {
		pipelineMetrics.RecordPlanSize(serviceName, steps)
	}

	return &App{
		Config:    cfg,
		Logger:    logger,
		Assistant: orchestrator,
		Models:    model.Health(),
		Metrics:   pipelineMetrics,
		prune:     prune,
		closeFn: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}

// MetricsHandler exposes the Prometheus registry for the HTTP layer.
func (a *App) MetricsHandler() http.Handler {
	return a.Metrics.Handler()
}

// RunMaintenance refreshes the memory-context gauges and prunes expired
// stored contexts until ctx is done.
func (a *App) RunMaintenance(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := a.Assistant.ContextStats(ctx)
			a.Metrics.SetMemoryContexts(serviceName, "cached", stats.CachedContexts)
			a.Metrics.SetMemoryContexts(serviceName, "persistent", stats.PersistentContexts)
			if a.prune != nil {
				a.prune(ctx)
			}
		}
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
