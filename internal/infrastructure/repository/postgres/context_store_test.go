package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
)

func TestContextStoreLoadReturnsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	store := NewContextStore(db)
	mock.ExpectQuery("FROM conversation_contexts").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "history", "summary", "turns_since_summary", "created_at", "last_active"}))

	_, err = store.Load(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrContextNotFound) {
		t.Fatalf("expected ErrContextNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestContextStoreLoadDecodesHistoryAndSummary(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	store := NewContextStore(db)
	history := `[{"role":"user","content":"hello","timestamp":"2026-08-23T10:00:00Z"}]`
	summary := `{"synopsis":"greeting","key_points":["said hello"],"topics":["smalltalk"],"preferences":{},"style":"casual","updated_at":"2026-08-23T10:00:00Z"}`
	rows := sqlmock.NewRows([]string{"session_id", "history", "summary", "turns_since_summary", "created_at", "last_active"}).
		AddRow("s-1", []byte(history), []byte(summary), 2, time.Now(), time.Now())

	mock.ExpectQuery("FROM conversation_contexts").
		WithArgs("s-1").
		WillReturnRows(rows)

	memCtx, err := store.Load(context.Background(), "s-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(memCtx.History) != 1 || memCtx.History[0].Content != "hello" {
		t.Fatalf("unexpected history: %+v", memCtx.History)
	}
	if memCtx.Summary == nil || memCtx.Summary.Synopsis != "greeting" {
		t.Fatalf("unexpected summary: %+v", memCtx.Summary)
	}
	if !memCtx.Persisted {
		t.Fatalf("loaded context must be marked persisted")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestContextStoreSaveUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	store := NewContextStore(db)
	memCtx := domain.NewMemoryContext("s-1")
	memCtx.AddTurn("user", "hello", nil)

	mock.ExpectExec("INSERT INTO conversation_contexts").
		WithArgs("s-1", sqlmock.AnyArg(), sqlmock.AnyArg(), 1, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Save(context.Background(), memCtx); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestContextStoreDeleteInactive(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	store := NewContextStore(db)
	mock.ExpectExec("DELETE FROM conversation_contexts").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	removed, err := store.DeleteInactive(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("DeleteInactive() error = %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
