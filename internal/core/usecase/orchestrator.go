package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
	"github.com/kowalskidev/assistant-core/internal/core/ports"
)

type OrchestratorConfig struct {
	Service          string
	RequestTimeout   time.Duration
	MaxContextTokens int
}

// Orchestrator is the top-level sequencer. Simple requests go intent →
// agent; multi-step requests go planner → executor → synthesizer. Every
// lower-layer failure is contained into a failed AgentResponse, and the
// session's memory is updated only after a response has materialized.
type Orchestrator struct {
	cfg         OrchestratorConfig
	intents     *IntentDetector
	memory      *MemoryManager
	router      *AgentRouter
	planner     *Planner
	executor    *PlanExecutor
	synthesizer *Synthesizer
	publisher   ports.EventPublisher
	logger      *slog.Logger

	// Optional observability hooks, wired at bootstrap.
	OnTurn     func(status string, elapsed time.Duration)
	OnAgentRun func(agentType, status string)
	OnIntent   func(intent, source string)
	OnPlanSize func(steps int)
}

func NewOrchestrator(
	cfg OrchestratorConfig,
	intents *IntentDetector,
	memory *MemoryManager,
	router *AgentRouter,
	planner *Planner,
	executor *PlanExecutor,
	synthesizer *Synthesizer,
	publisher ports.EventPublisher,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 90 * time.Second
	}
	if cfg.Service == "" {
		cfg.Service = "assistant-core"
	}
	return &Orchestrator{
		cfg:         cfg,
		intents:     intents,
		memory:      memory,
		router:      router,
		planner:     planner,
		executor:    executor,
		synthesizer: synthesizer,
		publisher:   publisher,
		logger:      logger,
	}
}

func (o *Orchestrator) Process(ctx context.Context, req domain.Request) (response domain.AgentResponse) {
	start := time.Now()
	requestID := uuid.NewString()

	if strings.TrimSpace(req.Query) == "" {
		return domain.ErrorResponse("Please provide a message.")
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logger := o.logger.With("session_id", sessionID, "request_id", requestID)

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("pipeline_panicked", "stage", "orchestrator", "panic", rec)
			response = domain.ErrorResponse("Something went wrong while handling your request. Please try again.")
			o.recordTurn("panic", time.Since(start))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	memCtx := o.memory.GetContext(ctx, sessionID, req.Query)
	intent := o.intents.Detect(ctx, req.Query, memCtx)
	logger.Info("intent_detected", "intent", intent.Type, "confidence", intent.Confidence)
	if o.OnIntent != nil {
		o.OnIntent(intent.Type, intentSource(intent))
	}

	maxTokens := req.Options.MaxContextTokens
	if maxTokens <= 0 {
		maxTokens = o.cfg.MaxContextTokens
	}
	memBlock := o.memory.OptimizedContext(sessionID, maxTokens)

	var agentType AgentType
	if needsPlanning(req.Query) {
		response = o.runPlannerPath(ctx, req, memCtx, memBlock, logger)
	} else {
		response, agentType = o.router.Route(ctx, AgentInput{
			Query:         req.Query,
			SessionID:     sessionID,
			Intent:        intent,
			MemoryContext: memBlock,
			Model:         req.Options.AltModel,
			Stream:        req.Options.Stream,
		})
		if o.OnAgentRun != nil {
			o.OnAgentRun(string(agentType), responseStatus(response))
		}
	}

	if response.Metadata == nil {
		response.Metadata = map[string]any{}
	}
	response.Metadata["request_id"] = requestID
	response.Metadata["session_id"] = sessionID
	response.Metadata["intent"] = intent.Type

	// Bookkeeping must not be cut short by the request deadline.
	bookCtx := context.WithoutCancel(ctx)
	o.memory.UpdateContext(bookCtx, sessionID, req.Query, response.Text, map[string]string{"intent": intent.Type})

	elapsed := time.Since(start)
	if o.publisher != nil {
		event := domain.TurnEvent{
			SessionID:  sessionID,
			RequestID:  requestID,
			Query:      req.Query,
			IntentType: intent.Type,
			AgentType:  string(agentType),
			Success:    response.Success,
			Elapsed:    elapsed,
			OccurredAt: time.Now().UTC(),
		}
		if err := o.publisher.PublishTurnCompleted(bookCtx, event); err != nil {
			logger.Warn("turn_event_publish_failed", "error", err)
		}
	}
	o.recordTurn(responseStatus(response), elapsed)
	logger.Info("turn_completed", "success", response.Success, "elapsed", elapsed)
	return response
}

func (o *Orchestrator) runPlannerPath(ctx context.Context, req domain.Request, memCtx *domain.MemoryContext, memBlock string, logger *slog.Logger) domain.AgentResponse {
	planCtx := PlanContext{Model: req.Options.AltModel}
	if memCtx.Summary != nil {
		planCtx.Summary = memCtx.Summary.Synopsis
		planCtx.Preferences = memCtx.Summary.Preferences
	}

	plan := o.planner.CreatePlan(ctx, req.Query, planCtx)
	if !o.planner.ValidatePlan(plan) {
		logger.Warn("plan_invalid", "steps", len(plan.Steps))
		plan = o.planner.FallbackPlan(req.Query)
	}
	if o.OnPlanSize != nil {
		o.OnPlanSize(len(plan.Steps))
	}

	result := o.executor.Execute(ctx, plan)
	return o.synthesizer.Respond(ctx, req.Query, result, memBlock, req.Options.AltModel)
}

func (o *Orchestrator) ContextStats(ctx context.Context) domain.MemoryStats {
	return o.memory.Stats(ctx)
}

// needsPlanning is the complexity gate: requests that chain several
// sub-tasks go through the planner, everything else takes the direct
// agent path.
func needsPlanning(query string) bool {
	lowered := strings.ToLower(query)
	for _, marker := range []string{" and then ", " then ", " after that ", " and also ", "; "} {
		if strings.Contains(lowered, marker) {
			return true
		}
	}
	if strings.Count(query, "?") > 1 {
		return true
	}
	return len(strings.Fields(query)) > 24
}

func intentSource(intent domain.IntentData) string {
	switch {
	case intent.Confidence >= 0.85:
		return "heuristic"
	case intent.Confidence <= 0.3:
		return "fallback"
	default:
		return "model"
	}
}

func responseStatus(response domain.AgentResponse) string {
	if response.Success {
		return "success"
	}
	return "failure"
}

func (o *Orchestrator) recordTurn(status string, elapsed time.Duration) {
	if o.OnTurn != nil {
		o.OnTurn(status, elapsed)
	}
}

var _ ports.Assistant = (*Orchestrator)(nil)
