package domain

import "time"

// Turn is a single utterance inside a session history.
type Turn struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ConversationSummary compresses turns that fell out of the verbatim window.
type ConversationSummary struct {
	Synopsis    string            `json:"synopsis"`
	KeyPoints   []string          `json:"key_points"`
	Topics      []string          `json:"topics"`
	Preferences map[string]string `json:"preferences"`
	Style       string            `json:"style"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// MemoryContext is the per-session conversational state. Recent turns are
// kept verbatim; anything older is representable only through Summary.
type MemoryContext struct {
	SessionID         string               `json:"session_id"`
	History           []Turn               `json:"history"`
	Summary           *ConversationSummary `json:"summary,omitempty"`
	TurnsSinceSummary int                  `json:"turns_since_summary"`
	CreatedAt         time.Time            `json:"created_at"`
	LastActive        time.Time            `json:"last_active"`
	Persisted         bool                 `json:"persisted"`
}

func NewMemoryContext(sessionID string) *MemoryContext {
	now := time.Now().UTC()
	return &MemoryContext{
		SessionID:  sessionID,
		History:    make([]Turn, 0, 16),
		CreatedAt:  now,
		LastActive: now,
	}
}

// AddTurn appends a turn and advances the summarization counter.
func (c *MemoryContext) AddTurn(role, content string, metadata map[string]string) {
	c.History = append(c.History, Turn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	})
	c.TurnsSinceSummary++
	c.LastActive = time.Now().UTC()
}

// RecentTurns returns up to n most recent turns in chronological order.
func (c *MemoryContext) RecentTurns(n int) []Turn {
	if n <= 0 || len(c.History) == 0 {
		return nil
	}
	if n > len(c.History) {
		n = len(c.History)
	}
	return c.History[len(c.History)-n:]
}

// MemoryStats is the observability snapshot of the memory subsystem.
type MemoryStats struct {
	TotalContexts      int       `json:"total_contexts"`
	PersistentContexts int       `json:"persistent_contexts"`
	CachedContexts     int       `json:"cached_contexts"`
	CompressionRatio   float64   `json:"compression_ratio"`
	CacheHitRate       float64   `json:"cache_hit_rate"`
	CleanupCount       int       `json:"cleanup_count"`
	LastCleanup        time.Time `json:"last_cleanup,omitzero"`
}

// SimilarityHit is a scored reference to another session's context.
type SimilarityHit struct {
	SessionID string  `json:"session_id"`
	Score     float64 `json:"score"`
}

// TurnEvent is published after a turn completes, for external consumers.
type TurnEvent struct {
	SessionID  string        `json:"session_id"`
	RequestID  string        `json:"request_id"`
	Query      string        `json:"query"`
	IntentType string        `json:"intent_type"`
	AgentType  string        `json:"agent_type,omitempty"`
	Success    bool          `json:"success"`
	Elapsed    time.Duration `json:"elapsed_ms"`
	OccurredAt time.Time     `json:"occurred_at"`
}
