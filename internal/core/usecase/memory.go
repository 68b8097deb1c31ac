package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
	"github.com/kowalskidev/assistant-core/internal/core/ports"
)

type MemoryConfig struct {
	MaxContexts         int
	CleanupRatio        float64
	SummaryThreshold    int
	VerbatimWindow      int
	MaxContextTokens    int
	SimilarityThreshold float64
	SimilarityTopK      int
}

func (c MemoryConfig) normalize() MemoryConfig {
	out := c
	if out.MaxContexts <= 0 {
		out.MaxContexts = 1000
	}
	if out.CleanupRatio <= 0 || out.CleanupRatio > 1 {
		out.CleanupRatio = 0.8
	}
	if out.SummaryThreshold <= 0 {
		out.SummaryThreshold = 6
	}
	if out.VerbatimWindow <= 0 {
		out.VerbatimWindow = 10
	}
	if out.MaxContextTokens <= 0 {
		out.MaxContextTokens = 4000
	}
	if out.SimilarityThreshold <= 0 || out.SimilarityThreshold > 1 {
		out.SimilarityThreshold = 0.83
	}
	if out.SimilarityTopK <= 0 {
		out.SimilarityTopK = 3
	}
	return out
}

// MemoryManager owns bounded per-session conversational state. Recent turns
// stay verbatim; once enough unsummarized turns accumulate they are folded
// into a rolling summary and the history is trimmed to the verbatim window.
// The store, similarity index, and model are all optional: without them the
// manager degrades to in-memory-only operation.
type MemoryManager struct {
	cfg    MemoryConfig
	model  ports.ModelClient
	store  ports.ContextStore
	index  ports.SimilarityIndex
	tokens ports.TokenCounter
	logger *slog.Logger

	// Optional observability hooks, wired at bootstrap.
	OnContextHit func(source string)
	OnSummary    func()

	mu              sync.Mutex
	contexts        map[string]*contextEntry
	hits            int
	misses          int
	cleanups        int
	lastCleanup     time.Time
	totalTurns      int
	summarizedTurns int
}

type contextEntry struct {
	mu      sync.Mutex
	memCtx  *domain.MemoryContext
	touched time.Time
}

func NewMemoryManager(
	cfg MemoryConfig,
	model ports.ModelClient,
	store ports.ContextStore,
	index ports.SimilarityIndex,
	tokens ports.TokenCounter,
	logger *slog.Logger,
) *MemoryManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryManager{
		cfg:      cfg.normalize(),
		model:    model,
		store:    store,
		index:    index,
		tokens:   tokens,
		logger:   logger,
		contexts: make(map[string]*contextEntry),
	}
}

// GetContext returns the existing context for the session or creates one.
// For sessions absent from both cache and store, seedQuery (when non-empty)
// drives a similarity lookup over past summaries so a close-match session's
// summary is inherited instead of starting cold.
func (m *MemoryManager) GetContext(ctx context.Context, sessionID, seedQuery string) *domain.MemoryContext {
	m.mu.Lock()
	if entry, ok := m.contexts[sessionID]; ok {
		entry.touched = time.Now()
		m.hits++
		m.mu.Unlock()
		m.notifyHit("cache")
		return entry.memCtx
	}
	m.misses++
	m.mu.Unlock()

	memCtx := m.loadOrCreate(ctx, sessionID, seedQuery)

	m.mu.Lock()
	// Another request may have raced us; keep the first one in.
	if existing, ok := m.contexts[sessionID]; ok {
		existing.touched = time.Now()
		m.mu.Unlock()
		return existing.memCtx
	}
	m.contexts[sessionID] = &contextEntry{memCtx: memCtx, touched: time.Now()}
	evicted := m.evictLocked()
	m.mu.Unlock()
	m.flushEvicted(ctx, evicted)
	return memCtx
}

func (m *MemoryManager) loadOrCreate(ctx context.Context, sessionID, seedQuery string) *domain.MemoryContext {
	if m.store != nil {
		stored, err := m.store.Load(ctx, sessionID)
		if err == nil {
			m.notifyHit("store")
			return stored
		}
		if !domain.IsKind(err, domain.ErrContextNotFound) {
			m.logger.Warn("context_load_failed", "session_id", sessionID, "error", err)
		}
	}

	memCtx := domain.NewMemoryContext(sessionID)
	if inherited := m.inheritedSummary(ctx, sessionID, seedQuery); inherited != nil {
		memCtx.Summary = inherited
		m.notifyHit("similarity")
	}
	return memCtx
}

// inheritedSummary finds the closest past conversation by embedding the
// seed query and returns its summary when the match clears the threshold.
func (m *MemoryManager) inheritedSummary(ctx context.Context, sessionID, seedQuery string) *domain.ConversationSummary {
	if m.index == nil || m.model == nil || strings.TrimSpace(seedQuery) == "" {
		return nil
	}

	vector, err := m.model.Embed(ctx, seedQuery)
	if err != nil {
		m.logger.Warn("seed_embed_failed", "session_id", sessionID, "error", err)
		return nil
	}
	hits, err := m.index.Nearest(ctx, vector, m.cfg.SimilarityTopK)
	if err != nil {
		m.logger.Warn("similarity_lookup_failed", "session_id", sessionID, "error", err)
		return nil
	}

	var best *domain.SimilarityHit
	for i := range hits {
		if hits[i].SessionID == sessionID {
			continue
		}
		if hits[i].Score < m.cfg.SimilarityThreshold {
			continue
		}
		if best == nil || hits[i].Score > best.Score {
			best = &hits[i]
		}
	}
	if best == nil {
		return nil
	}

	summary := m.summaryOf(ctx, best.SessionID)
	if summary == nil {
		return nil
	}
	m.logger.Info("context_inherited", "session_id", sessionID, "source_session", best.SessionID, "score", best.Score)
	copied := *summary
	return &copied
}

func (m *MemoryManager) summaryOf(ctx context.Context, sessionID string) *domain.ConversationSummary {
	m.mu.Lock()
	entry, ok := m.contexts[sessionID]
	m.mu.Unlock()
	if ok && entry.memCtx.Summary != nil {
		return entry.memCtx.Summary
	}
	if m.store == nil {
		return nil
	}
	stored, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil
	}
	return stored.Summary
}

// UpdateContext records a completed turn pair, regenerates the summary when
// the unsummarized count crosses the threshold, and flushes to the store.
// Updates for one session are serialized; sessions never block each other.
func (m *MemoryManager) UpdateContext(ctx context.Context, sessionID, userText, assistantText string, meta map[string]string) {
	m.mu.Lock()
	entry, ok := m.contexts[sessionID]
	if !ok {
		entry = &contextEntry{memCtx: domain.NewMemoryContext(sessionID)}
		m.contexts[sessionID] = entry
	}
	entry.touched = time.Now()
	m.totalTurns += 2
	m.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	memCtx := entry.memCtx
	memCtx.AddTurn("user", userText, meta)
	memCtx.AddTurn("assistant", assistantText, nil)

	if memCtx.TurnsSinceSummary > m.cfg.SummaryThreshold {
		m.regenerateSummary(ctx, memCtx)
	}

	if m.store != nil {
		if err := m.store.Save(ctx, memCtx); err != nil {
			m.logger.Warn("context_save_failed", "session_id", sessionID, "error", err)
		} else {
			memCtx.Persisted = true
		}
	}
}

func (m *MemoryManager) regenerateSummary(ctx context.Context, memCtx *domain.MemoryContext) {
	summarized := len(memCtx.History)
	summary := m.summarizeWithModel(ctx, memCtx)
	if summary == nil {
		summary = deterministicSummary(memCtx)
	}
	summary.UpdatedAt = time.Now().UTC()
	memCtx.Summary = summary
	memCtx.TurnsSinceSummary = 0

	// Older turns live on only through the summary.
	if len(memCtx.History) > m.cfg.VerbatimWindow {
		memCtx.History = append([]domain.Turn(nil), memCtx.History[len(memCtx.History)-m.cfg.VerbatimWindow:]...)
	}

	m.mu.Lock()
	m.summarizedTurns += summarized - len(memCtx.History)
	m.mu.Unlock()

	if m.OnSummary != nil {
		m.OnSummary()
	}
	m.indexSummary(ctx, memCtx)
}

func (m *MemoryManager) summarizeWithModel(ctx context.Context, memCtx *domain.MemoryContext) *domain.ConversationSummary {
	if m.model == nil {
		return nil
	}

	var transcript strings.Builder
	for _, turn := range memCtx.History {
		fmt.Fprintf(&transcript, "%s: %s\n", turn.Role, turn.Content)
	}

	messages := []ports.ChatMessage{
		{
			Role: "system",
			Content: "You summarize conversations. Answer with JSON only, exactly: " +
				`{"synopsis": "...", "key_points": ["..."], "topics": ["..."], "preferences": {"name": "value"}, "style": "casual|formal|technical"}.`,
		},
		{
			Role:    "user",
			Content: "Summarize this conversation:\n" + transcript.String(),
		},
	}

	content, err := m.model.Chat(ctx, "", messages, ports.ChatOptions{Temperature: 0.2, JSONFormat: true})
	if err != nil {
		m.logger.Warn("summary_model_failed", "session_id", memCtx.SessionID, "error", err)
		return nil
	}

	var parsed domain.ConversationSummary
	if err := json.Unmarshal([]byte(extractJSONObject(content)), &parsed); err != nil || strings.TrimSpace(parsed.Synopsis) == "" {
		m.logger.Warn("summary_unparsable", "session_id", memCtx.SessionID)
		return nil
	}
	if parsed.Preferences == nil {
		parsed.Preferences = map[string]string{}
	}
	return &parsed
}

// deterministicSummary is the no-model fallback: crude but stable, so the
// invariant "a summary exists past the threshold" holds even offline.
func deterministicSummary(memCtx *domain.MemoryContext) *domain.ConversationSummary {
	var firstUser string
	var keyPoints []string
	wordCounts := make(map[string]int)

	for _, turn := range memCtx.History {
		if turn.Role != "user" {
			continue
		}
		if firstUser == "" {
			firstUser = turn.Content
		}
		if len(keyPoints) < 5 {
			keyPoints = append(keyPoints, truncate(turn.Content, 120))
		}
		for _, word := range strings.Fields(strings.ToLower(turn.Content)) {
			word = strings.Trim(word, "?!.,:;\"'")
			if len(word) > 4 {
				wordCounts[word]++
			}
		}
	}

	type wc struct {
		word  string
		count int
	}
	ranked := make([]wc, 0, len(wordCounts))
	for word, count := range wordCounts {
		ranked = append(ranked, wc{word, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})
	topics := make([]string, 0, 3)
	for i := 0; i < len(ranked) && i < 3; i++ {
		topics = append(topics, ranked[i].word)
	}

	return &domain.ConversationSummary{
		Synopsis:    fmt.Sprintf("Conversation of %d turns, started with: %s", len(memCtx.History), truncate(firstUser, 160)),
		KeyPoints:   keyPoints,
		Topics:      topics,
		Preferences: map[string]string{},
		Style:       "casual",
	}
}

func (m *MemoryManager) indexSummary(ctx context.Context, memCtx *domain.MemoryContext) {
	if m.index == nil || m.model == nil || memCtx.Summary == nil {
		return
	}
	vector, err := m.model.Embed(ctx, memCtx.Summary.Synopsis)
	if err != nil {
		m.logger.Warn("summary_embed_failed", "session_id", memCtx.SessionID, "error", err)
		return
	}
	if err := m.index.IndexSummary(ctx, memCtx.SessionID, memCtx.Summary.Synopsis, vector); err != nil {
		m.logger.Warn("summary_index_failed", "session_id", memCtx.SessionID, "error", err)
	}
}

// OptimizedContext renders a token-budgeted view of the session: most
// recent verbatim turns first, then the summary if it still fits.
func (m *MemoryManager) OptimizedContext(sessionID string, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = m.cfg.MaxContextTokens
	}

	m.mu.Lock()
	entry, ok := m.contexts[sessionID]
	m.mu.Unlock()
	if !ok {
		return ""
	}

	entry.mu.Lock()
	memCtx := entry.memCtx
	history := append([]domain.Turn(nil), memCtx.History...)
	summary := memCtx.Summary
	entry.mu.Unlock()

	budget := maxTokens
	var included []string
	for i := len(history) - 1; i >= 0; i-- {
		line := fmt.Sprintf("%s: %s", history[i].Role, history[i].Content)
		cost := m.countTokens(line)
		if cost > budget {
			break
		}
		budget -= cost
		included = append(included, line)
	}
	// Reverse back to chronological order.
	for i, j := 0, len(included)-1; i < j; i, j = i+1, j-1 {
		included[i], included[j] = included[j], included[i]
	}

	var b strings.Builder
	if summary != nil {
		block := "Conversation summary: " + summary.Synopsis
		if len(summary.Topics) > 0 {
			block += "\nTopics: " + strings.Join(summary.Topics, ", ")
		}
		if len(summary.Preferences) > 0 {
			pairs := make([]string, 0, len(summary.Preferences))
			for k, v := range summary.Preferences {
				pairs = append(pairs, k+"="+v)
			}
			sort.Strings(pairs)
			block += "\nUser preferences: " + strings.Join(pairs, ", ")
		}
		if cost := m.countTokens(block); cost <= budget {
			b.WriteString(block)
			b.WriteString("\n\n")
		}
	}
	b.WriteString(strings.Join(included, "\n"))
	return strings.TrimSpace(b.String())
}

func (m *MemoryManager) countTokens(text string) int {
	if m.tokens != nil {
		return m.tokens.Count(text)
	}
	return len(text) / 4
}

// evictLocked removes least-recently-touched contexts once the cache
// exceeds maxContexts × cleanupRatio and returns them for flushing. Caller
// holds m.mu; the store flush happens outside it so one slow flush cannot
// stall every other session.
func (m *MemoryManager) evictLocked() []*contextEntry {
	threshold := int(float64(m.cfg.MaxContexts) * m.cfg.CleanupRatio)
	if threshold < 1 {
		threshold = 1
	}
	if len(m.contexts) <= threshold {
		return nil
	}

	type aged struct {
		sessionID string
		touched   time.Time
	}
	entries := make([]aged, 0, len(m.contexts))
	for sessionID, entry := range m.contexts {
		entries = append(entries, aged{sessionID, entry.touched})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].touched.Before(entries[j].touched) })

	var evicted []*contextEntry
	for _, candidate := range entries {
		if len(m.contexts) <= threshold {
			break
		}
		evicted = append(evicted, m.contexts[candidate.sessionID])
		delete(m.contexts, candidate.sessionID)
	}
	m.cleanups++
	m.lastCleanup = time.Now().UTC()
	return evicted
}

// flushEvicted persists evicted contexts under their per-context locks so a
// concurrent UpdateContext on the same session cannot mutate the history
// mid-save.
func (m *MemoryManager) flushEvicted(ctx context.Context, evicted []*contextEntry) {
	for _, entry := range evicted {
		entry.mu.Lock()
		if m.store != nil {
			if err := m.store.Save(ctx, entry.memCtx); err != nil {
				m.logger.Warn("evict_flush_failed", "session_id", entry.memCtx.SessionID, "error", err)
			} else {
				entry.memCtx.Persisted = true
			}
		}
		entry.mu.Unlock()
		m.logger.Info("context_evicted", "session_id", entry.memCtx.SessionID)
	}
}

// CachedSessionIDs exists for observability and tests.
func (m *MemoryManager) CachedSessionIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.contexts))
	for sessionID := range m.contexts {
		out = append(out, sessionID)
	}
	sort.Strings(out)
	return out
}

func (m *MemoryManager) Stats(ctx context.Context) domain.MemoryStats {
	m.mu.Lock()
	cached := len(m.contexts)
	unpersisted := 0
	for _, entry := range m.contexts {
		if !entry.memCtx.Persisted {
			unpersisted++
		}
	}
	hits, misses := m.hits, m.misses
	cleanups, lastCleanup := m.cleanups, m.lastCleanup
	totalTurns, summarizedTurns := m.totalTurns, m.summarizedTurns
	m.mu.Unlock()

	persistent := 0
	if m.store != nil {
		if counter, ok := m.store.(interface {
			CountContexts(context.Context) (int, error)
		}); ok {
			if n, err := counter.CountContexts(ctx); err == nil {
				persistent = n
			}
		}
	}

	stats := domain.MemoryStats{
		TotalContexts:      persistent + unpersisted,
		PersistentContexts: persistent,
		CachedContexts:     cached,
		CleanupCount:       cleanups,
		LastCleanup:        lastCleanup,
	}
	if persistent == 0 {
		stats.TotalContexts = cached
	}
	if totalTurns > 0 {
		stats.CompressionRatio = float64(summarizedTurns) / float64(totalTurns)
	}
	if hits+misses > 0 {
		stats.CacheHitRate = float64(hits) / float64(hits+misses)
	}
	return stats
}

func (m *MemoryManager) notifyHit(source string) {
	if m.OnContextHit != nil {
		m.OnContextHit(source)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
