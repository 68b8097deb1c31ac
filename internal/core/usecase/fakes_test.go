package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
	"github.com/kowalskidev/assistant-core/internal/core/ports"
)

var errModelDown = errors.New("model backend unreachable")

type fakeModel struct {
	mu        sync.Mutex
	chatFn    func(model string, messages []ports.ChatMessage, opts ports.ChatOptions) (string, error)
	embedFn   func(text string) ([]float32, error)
	chatCalls int
}

func (f *fakeModel) Chat(_ context.Context, model string, messages []ports.ChatMessage, opts ports.ChatOptions) (string, error) {
	f.mu.Lock()
	f.chatCalls++
	fn := f.chatFn
	f.mu.Unlock()
	if fn == nil {
		return "", errModelDown
	}
	return fn(model, messages, opts)
}

func (f *fakeModel) Embed(_ context.Context, text string) ([]float32, error) {
	if f.embedFn == nil {
		return []float32{0.1, 0.2, 0.3}, nil
	}
	return f.embedFn(text)
}

type fakeStore struct {
	mu       sync.Mutex
	contexts map[string]*domain.MemoryContext
	saveErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{contexts: make(map[string]*domain.MemoryContext)}
}

func (f *fakeStore) Load(_ context.Context, sessionID string) (*domain.MemoryContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.contexts[sessionID]
	if !ok {
		return nil, domain.WrapError(domain.ErrContextNotFound, "load context", errors.New(sessionID))
	}
	copied := *stored
	copied.Persisted = true
	return &copied, nil
}

func (f *fakeStore) Save(_ context.Context, memCtx *domain.MemoryContext) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *memCtx
	f.contexts[memCtx.SessionID] = &copied
	return nil
}

func (f *fakeStore) has(sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.contexts[sessionID]
	return ok
}

type fakeIndex struct {
	mu      sync.Mutex
	indexed map[string]string
	hits    []domain.SimilarityHit
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{indexed: make(map[string]string)}
}

func (f *fakeIndex) IndexSummary(_ context.Context, sessionID, text string, _ []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed[sessionID] = text
	return nil
}

func (f *fakeIndex) Nearest(_ context.Context, _ []float32, k int) ([]domain.SimilarityHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.hits) > k {
		return append([]domain.SimilarityHit(nil), f.hits[:k]...), nil
	}
	return append([]domain.SimilarityHit(nil), f.hits...), nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []domain.TurnEvent
}

func (f *fakePublisher) PublishTurnCompleted(_ context.Context, event domain.TurnEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) published() []domain.TurnEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TurnEvent(nil), f.events...)
}
