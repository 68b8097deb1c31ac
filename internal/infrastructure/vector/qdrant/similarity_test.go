package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestIndexSummaryEnsuresCollectionOncePerVectorSize(t *testing.T) {
	var ensureCalls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/summaries":
			atomic.AddInt32(&ensureCalls, 1)
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/summaries/points":
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	index := NewSimilarityIndex(server.URL, "summaries")
	vector := []float32{0.1, 0.2}

	if err := index.IndexSummary(context.Background(), "s-1", "summary text", vector); err != nil {
		t.Fatalf("first IndexSummary() error = %v", err)
	}
	if err := index.IndexSummary(context.Background(), "s-2", "other summary", vector); err != nil {
		t.Fatalf("second IndexSummary() error = %v", err)
	}
	if got := atomic.LoadInt32(&ensureCalls); got != 1 {
		t.Fatalf("expected ensure collection called once, got %d", got)
	}
}

func TestIndexSummaryUsesStablePointID(t *testing.T) {
	var ids []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/summaries":
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/summaries/points":
			var body struct {
				Points []struct {
					ID string `json:"id"`
				} `json:"points"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err == nil && len(body.Points) > 0 {
				ids = append(ids, body.Points[0].ID)
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	index := NewSimilarityIndex(server.URL, "summaries")
	vector := []float32{0.1, 0.2}

	if err := index.IndexSummary(context.Background(), "s-1", "first version", vector); err != nil {
		t.Fatalf("IndexSummary() error = %v", err)
	}
	if err := index.IndexSummary(context.Background(), "s-1", "updated version", vector); err != nil {
		t.Fatalf("IndexSummary() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != ids[1] {
		t.Fatalf("expected stable point id per session, got %v", ids)
	}
}

func TestNearestDecodesHits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/collections/summaries/points/search" {
			_, _ = w.Write([]byte(`{"result":[
				{"score":0.91,"payload":{"session_id":"s-1","text":"old chat"}},
				{"score":0.42,"payload":{"session_id":"s-2","text":"other"}},
				{"score":0.40,"payload":{"text":"no session"}}
			]}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	index := NewSimilarityIndex(server.URL, "summaries")
	hits, err := index.Nearest(context.Background(), []float32{0.1, 0.2}, 3)
	if err != nil {
		t.Fatalf("Nearest() error = %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits with session ids, got %d", len(hits))
	}
	if hits[0].SessionID != "s-1" || hits[0].Score != 0.91 {
		t.Fatalf("unexpected first hit: %+v", hits[0])
	}
}

func TestEnsureCollectionIncludesResponseBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && r.URL.Path == "/collections/summaries" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	index := NewSimilarityIndex(server.URL, "summaries")
	err := index.IndexSummary(context.Background(), "s-1", "text", []float32{0.1, 0.2})
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := err.Error(); !strings.Contains(got, "boom") {
		t.Fatalf("expected error to include body, got %v", err)
	}
}
