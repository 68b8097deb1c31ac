package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
	"github.com/kowalskidev/assistant-core/internal/core/ports"
)

// RouterConfig tunes the public surface; zero values disable the
// corresponding traffic gate.
type RouterConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	QueueWait      time.Duration
}

type Router struct {
	assistant      ports.Assistant
	models         ports.ModelHealth
	metricsHandler http.Handler
	cfg            RouterConfig
}

func NewRouter(assistant ports.Assistant, models ports.ModelHealth, metricsHandler http.Handler, cfg RouterConfig) *Router {
	return &Router{
		assistant:      assistant,
		models:         models,
		metricsHandler: metricsHandler,
		cfg:            cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/chat", rt.chat)
	mux.HandleFunc("/v1/context/stats", rt.contextStats)
	mux.HandleFunc("/v1/models/active", rt.activeModel)
	if rt.metricsHandler != nil {
		mux.Handle("/metrics", rt.metricsHandler)
	}

	handler := http.Handler(mux)
	handler = backpressureMiddleware(handler, rt.cfg.MaxInFlight, rt.cfg.QueueWait)
	handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	Query     string                `json:"query"`
	SessionID string                `json:"session_id"`
	Options   domain.ProcessOptions `json:"options"`
}

func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	response := rt.assistant.Process(r.Context(), domain.Request{
		Query:     req.Query,
		SessionID: req.SessionID,
		Options:   req.Options,
	})

	if req.Options.Stream && response.TextStream != nil {
		streamResponse(w, response)
		return
	}
	writeJSON(w, statusForResponse(response), response)
}

func (rt *Router) contextStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, rt.assistant.ContextStats(r.Context()))
}

func (rt *Router) activeModel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if rt.models == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "model health not configured"})
		return
	}
	model, err := rt.models.WorkingModel(r.Context(), "")
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"active_model": model})
}

// statusForResponse keeps the wire contract honest: contained pipeline
// failures still answer 200 with success=false carrying a user-safe
// message, only an absent answer is a server error.
func statusForResponse(response domain.AgentResponse) int {
	if response.Success || response.Text != "" {
		return http.StatusOK
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
