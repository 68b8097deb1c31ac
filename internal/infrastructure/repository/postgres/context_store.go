package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
)

// ContextStore persists session memory contexts across restarts. The full
// context (recent turns plus summary) is stored as one JSONB document per
// session; load-modify-save is always whole-context.
type ContextStore struct {
	db *sql.DB
}

func NewContextStore(db *sql.DB) *ContextStore {
	return &ContextStore{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (s *ContextStore) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082301)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS conversation_contexts (
	session_id TEXT PRIMARY KEY,
	history JSONB NOT NULL DEFAULT '[]'::jsonb,
	summary JSONB,
	turns_since_summary INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	last_active TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversation_contexts_last_active ON conversation_contexts(last_active DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (s *ContextStore) Save(ctx context.Context, memCtx *domain.MemoryContext) error {
	historyJSON, err := json.Marshal(memCtx.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	var summaryJSON []byte
	if memCtx.Summary != nil {
		summaryJSON, err = json.Marshal(memCtx.Summary)
		if err != nil {
			return fmt.Errorf("marshal summary: %w", err)
		}
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO conversation_contexts (
	session_id, history, summary, turns_since_summary, created_at, last_active
) VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (session_id) DO UPDATE SET
	history = EXCLUDED.history,
	summary = EXCLUDED.summary,
	turns_since_summary = EXCLUDED.turns_since_summary,
	last_active = EXCLUDED.last_active
`,
		memCtx.SessionID, historyJSON, summaryJSON, memCtx.TurnsSinceSummary, memCtx.CreatedAt, memCtx.LastActive,
	)
	if err != nil {
		return fmt.Errorf("upsert conversation context: %w", err)
	}
	return nil
}

func (s *ContextStore) Load(ctx context.Context, sessionID string) (*domain.MemoryContext, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT session_id, history, summary, turns_since_summary, created_at, last_active
FROM conversation_contexts
WHERE session_id = $1
`, sessionID)

	var memCtx domain.MemoryContext
	var historyRaw []byte
	var summaryRaw []byte

	err := row.Scan(
		&memCtx.SessionID, &historyRaw, &summaryRaw, &memCtx.TurnsSinceSummary, &memCtx.CreatedAt, &memCtx.LastActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrContextNotFound, "load conversation context", fmt.Errorf("session %s", sessionID))
		}
		return nil, fmt.Errorf("load conversation context: %w", err)
	}

	if err := json.Unmarshal(historyRaw, &memCtx.History); err != nil {
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}
	if len(summaryRaw) > 0 {
		var summary domain.ConversationSummary
		if err := json.Unmarshal(summaryRaw, &summary); err != nil {
			return nil, fmt.Errorf("unmarshal summary: %w", err)
		}
		memCtx.Summary = &summary
	}
	memCtx.Persisted = true
	return &memCtx, nil
}

// DeleteInactive removes contexts idle for longer than maxAge.
func (s *ContextStore) DeleteInactive(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	result, err := s.db.ExecContext(ctx, `
DELETE FROM conversation_contexts WHERE last_active < $1
`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete inactive contexts: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

// CountContexts reports how many sessions are persisted.
func (s *ContextStore) CountContexts(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversation_contexts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count contexts: %w", err)
	}
	return count, nil
}
