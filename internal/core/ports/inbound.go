package ports

import (
	"context"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
)

// Assistant is the inbound contract of the orchestration pipeline.
type Assistant interface {
	Process(ctx context.Context, req domain.Request) domain.AgentResponse
	ContextStats(ctx context.Context) domain.MemoryStats
}
