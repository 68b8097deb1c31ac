package ollama

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kowalskidev/assistant-core/internal/core/ports"
	"github.com/kowalskidev/assistant-core/internal/infrastructure/resilience"
)

type ClientConfig struct {
	BaseURL    string
	Models     []string
	EmbedModel string

	ChatTimeout     time.Duration
	FailedRetention time.Duration
	RPS             float64
	Burst           int
}

// Client calls an Ollama-compatible backend over HTTP. Chat walks the model
// priority list until one answers, marking dead models failed so subsequent
// calls skip them immediately.
type Client struct {
	baseURL    string
	embedModel string
	httpClient *http.Client
	exec       *resilience.Executor
	limiter    *rate.Limiter
	health     *FallbackManager
	logger     *slog.Logger
	onFallback func(model string)
}

func New(cfg ClientConfig, exec *resilience.Executor, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.ChatTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		embedModel: cfg.EmbedModel,
		httpClient: &http.Client{Timeout: timeout},
		exec:       exec,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		logger:     logger,
	}
	c.health = NewFallbackManager(cfg.Models, c, cfg.FailedRetention, logger)
	return c
}

// Health exposes per-model availability tracking.
func (c *Client) Health() ports.ModelHealth {
	return c.health
}

// OnFallback registers a hook invoked each time a model is skipped over.
func (c *Client) OnFallback(fn func(model string)) {
	c.onFallback = fn
}

func (c *Client) Chat(ctx context.Context, model string, messages []ports.ChatMessage, opts ports.ChatOptions) (string, error) {
	preferred := model
	for {
		candidate, err := c.health.WorkingModel(ctx, preferred)
		if err != nil {
			return "", err
		}

		content, err := c.chatOnce(ctx, candidate, messages, opts)
		if err == nil {
			c.health.MarkModelAvailable(candidate)
			return content, nil
		}
		if !shouldFallbackToNextModel(err) {
			return "", wrapUpstreamIfNeeded("ollama chat", err)
		}

		c.logger.Warn("model_call_failed", "model", candidate, "error", err)
		c.health.MarkModelFailed(candidate)
		if c.onFallback != nil {
			c.onFallback(candidate)
		}
		preferred = ""
	}
}

func (c *Client) chatOnce(ctx context.Context, model string, messages []ports.ChatMessage, opts ports.ChatOptions) (string, error) {
	request := map[string]any{
		"model":    model,
		"messages": messages,
		"stream":   false,
		"options": map[string]any{
			"temperature": opts.Temperature,
		},
	}
	if opts.JSONFormat {
		request["format"] = "json"
	}

	var response struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	err := c.execute(ctx, "ollama_chat", func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/api/chat", request, &response, "chat")
	})
	if err != nil {
		return "", err
	}

	content := strings.TrimSpace(response.Message.Content)
	if content == "" {
		return "", fmt.Errorf("ollama chat: model %s returned empty content", model)
	}
	return content, nil
}

func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": c.embedModel,
		"input": []string{text},
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := c.execute(ctx, "ollama_embed", func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/api/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, wrapUpstreamIfNeeded("ollama embed", err)
	}
	if len(response.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama embed: empty embedding result")
	}
	return response.Embeddings[0], nil
}

func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	var response struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := c.getJSON(ctx, "/api/tags", &response, "tags"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(response.Models))
	for _, m := range response.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if c.exec == nil {
		return fn(ctx)
	}
	return c.exec.Execute(ctx, operation, fn, classifyOllamaError)
}

var _ ports.ModelClient = (*Client)(nil)
var _ ports.ModelHealth = (*FallbackManager)(nil)
