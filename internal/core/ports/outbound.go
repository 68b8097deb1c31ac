package ports

import (
	"context"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
)

// ChatMessage is one message of a model conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions tune a single model call.
type ChatOptions struct {
	Temperature float64
	JSONFormat  bool
}

// ModelClient talks to the inference backend. Implementations must expose
// failures as errors, never as silent empty content, and select a healthy
// model when the preferred one (empty means "first in priority") is down.
type ModelClient interface {
	Chat(ctx context.Context, model string, messages []ChatMessage, opts ChatOptions) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ModelHealth tracks per-model availability with explicit failure signals.
type ModelHealth interface {
	WorkingModel(ctx context.Context, preferred string) (string, error)
	MarkModelFailed(model string)
	MarkModelAvailable(model string)
}

// ContextStore is optional durable persistence for memory contexts. Load
// returns domain.ErrContextNotFound for unknown sessions.
type ContextStore interface {
	Load(ctx context.Context, sessionID string) (*domain.MemoryContext, error)
	Save(ctx context.Context, memCtx *domain.MemoryContext) error
}

// SimilarityIndex supports semantic lookup over conversation summaries.
type SimilarityIndex interface {
	IndexSummary(ctx context.Context, sessionID, text string, vector []float32) error
	Nearest(ctx context.Context, vector []float32, k int) ([]domain.SimilarityHit, error)
}

// EventPublisher emits turn-completed events to external consumers.
type EventPublisher interface {
	PublishTurnCompleted(ctx context.Context, event domain.TurnEvent) error
}

// ToolFunc is a registered tool implementation. Implementations own
// all-or-nothing semantics: a cancelled call must count as fully failed.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// TokenCounter approximates token usage for context budgeting.
type TokenCounter interface {
	Count(text string) int
}
