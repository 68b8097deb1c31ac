package usecase

import (
	"context"
	"log/slog"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
)

// AgentRouter resolves the intent to an agent and runs it. Any panic or
// construction failure below this boundary becomes a failed AgentResponse;
// nothing escapes to the orchestrator as a crash.
type AgentRouter struct {
	registry *AgentRegistry
	logger   *slog.Logger
}

func NewAgentRouter(registry *AgentRegistry, logger *slog.Logger) *AgentRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentRouter{registry: registry, logger: logger}
}

func (r *AgentRouter) Route(ctx context.Context, input AgentInput) (response domain.AgentResponse, agentType AgentType) {
	agentType = r.registry.AgentTypeForIntent(input.Intent.Type)

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("agent_panicked", "session_id", input.SessionID, "agent_type", agentType, "panic", rec)
			response = domain.ErrorResponse("Something went wrong while handling your request. Please try again.")
		}
	}()

	agent, err := r.registry.CreateAgent(agentType)
	if err != nil {
		r.logger.Error("agent_construction_failed", "session_id", input.SessionID, "agent_type", agentType, "error", err)
		return domain.ErrorResponse("Something went wrong while handling your request. Please try again."), agentType
	}

	return agent.Process(ctx, input), agentType
}
