package ollama

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
)

var errNoCandidates = errors.New("all configured models failed or missing")

// ModelLister reports the models installed on the backend.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// FallbackManager resolves which model to call from a priority-ordered list,
// skipping models recently marked failed. A failed model becomes eligible
// again after retryAfter so transient outages heal without a restart.
type FallbackManager struct {
	priority   []string
	lister     ModelLister
	retryAfter time.Duration
	logger     *slog.Logger

	mu     sync.Mutex
	failed map[string]time.Time
}

func NewFallbackManager(priority []string, lister ModelLister, retryAfter time.Duration, logger *slog.Logger) *FallbackManager {
	if logger == nil {
		logger = slog.Default()
	}
	if retryAfter <= 0 {
		retryAfter = 5 * time.Minute
	}
	return &FallbackManager{
		priority:   priority,
		lister:     lister,
		retryAfter: retryAfter,
		logger:     logger,
		failed:     make(map[string]time.Time),
	}
}

// WorkingModel returns the highest-priority model that is installed and not
// marked failed. The preferred model, when given, is tried before the
// configured priority order.
func (m *FallbackManager) WorkingModel(ctx context.Context, preferred string) (string, error) {
	installed := m.installedSet(ctx)

	for _, candidate := range m.candidates(preferred) {
		if installed != nil && !installed[candidate] {
			continue
		}
		if m.isFailed(candidate) {
			continue
		}
		return candidate, nil
	}
	return "", domain.WrapError(domain.ErrNoModelAvailable, "resolve working model", errNoCandidates)
}

func (m *FallbackManager) MarkModelFailed(model string) {
	if model == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[model] = time.Now()
	m.logger.Warn("model_marked_failed", "model", model)
}

func (m *FallbackManager) MarkModelAvailable(model string) {
	if model == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failed, model)
}

func (m *FallbackManager) candidates(preferred string) []string {
	out := make([]string, 0, len(m.priority)+1)
	seen := make(map[string]bool, len(m.priority)+1)
	if preferred != "" {
		out = append(out, preferred)
		seen[preferred] = true
	}
	for _, model := range m.priority {
		if !seen[model] {
			out = append(out, model)
			seen[model] = true
		}
	}
	return out
}

func (m *FallbackManager) isFailed(model string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	failedAt, ok := m.failed[model]
	if !ok {
		return false
	}
	if time.Since(failedAt) > m.retryAfter {
		delete(m.failed, model)
		return false
	}
	return true
}

// installedSet returns nil when the backend cannot be probed; callers then
// treat every candidate as potentially installed and let the chat call fail.
func (m *FallbackManager) installedSet(ctx context.Context) map[string]bool {
	if m.lister == nil {
		return nil
	}
	names, err := m.lister.ListModels(ctx)
	if err != nil {
		m.logger.Warn("model_probe_failed", "error", err)
		return nil
	}
	installed := make(map[string]bool, len(names))
	for _, name := range names {
		installed[name] = true
	}
	return installed
}
