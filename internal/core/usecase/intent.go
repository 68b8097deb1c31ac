package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
	"github.com/kowalskidev/assistant-core/internal/core/ports"
)

// IntentDetector classifies an utterance into a typed intent. Obvious
// requests are matched by keyword heuristics without touching the model;
// ambiguous ones go to the model at temperature zero. Detection never
// fails: every degradation path ends at a low-confidence general intent.
type IntentDetector struct {
	model  ports.ModelClient
	logger *slog.Logger
}

func NewIntentDetector(model ports.ModelClient, logger *slog.Logger) *IntentDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntentDetector{model: model, logger: logger}
}

type keywordRule struct {
	intent     string
	confidence float64
	keywords   []string
}

var keywordRules = []keywordRule{
	{
		intent:     "weather",
		confidence: 0.9,
		keywords:   []string{"weather", "forecast", "temperature", "rain", "snow", "sunny", "how cold", "how hot"},
	},
	{
		intent:     "recall",
		confidence: 0.9,
		keywords:   []string{"remember", "recall", "what did i", "what did we", "last time", "earlier you said"},
	},
	{
		intent:     "search",
		confidence: 0.85,
		keywords:   []string{"search for", "look up", "find information", "latest news", "google"},
	},
	{
		intent:     "shopping",
		confidence: 0.85,
		keywords:   []string{"shopping list", "add to my list", "buy", "groceries", "price of"},
	},
	{
		intent:     "cooking",
		confidence: 0.85,
		keywords:   []string{"recipe", "how to cook", "how to make", "ingredients for", "dinner idea"},
	},
	{
		intent:     "greeting",
		confidence: 0.9,
		keywords:   []string{"hello", "hi there", "good morning", "good evening", "how are you"},
	},
}

func (d *IntentDetector) Detect(ctx context.Context, text string, memCtx *domain.MemoryContext) domain.IntentData {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return generalIntent(0.3)
	}

	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lowered, kw) {
				return domain.IntentData{
					Type:       rule.intent,
					Confidence: rule.confidence,
					Entities:   extractEntities(rule.intent, lowered),
				}
			}
		}
	}

	return d.detectWithModel(ctx, text)
}

func (d *IntentDetector) detectWithModel(ctx context.Context, text string) domain.IntentData {
	messages := []ports.ChatMessage{
		{
			Role:    "system",
			Content: "You are a precise intent classifier. Always answer with JSON only, exactly: {\"intent\": \"<category>\"}.",
		},
		{
			Role:    "user",
			Content: "Classify the intent of this user message: " + text,
		},
	}

	content, err := d.model.Chat(ctx, "", messages, ports.ChatOptions{Temperature: 0, JSONFormat: true})
	if err != nil {
		d.logger.Warn("intent_model_failed", "error", err)
		return generalIntent(0.3)
	}

	var parsed struct {
		Intent     string  `json:"intent"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(content)), &parsed); err != nil || strings.TrimSpace(parsed.Intent) == "" {
		d.logger.Warn("intent_unparsable", "content", content)
		return generalIntent(0.3)
	}

	confidence := parsed.Confidence
	if confidence <= 0 {
		confidence = 0.7
	}
	if confidence > 1 {
		confidence = 1
	}
	return domain.IntentData{
		Type:       strings.ToLower(strings.TrimSpace(parsed.Intent)),
		Confidence: confidence,
		Entities:   map[string]string{},
	}
}

func generalIntent(confidence float64) domain.IntentData {
	return domain.IntentData{
		Type:       "general",
		Confidence: confidence,
		Entities:   map[string]string{},
	}
}

// extractEntities pulls the few argument-shaped fragments the heuristic
// rules can recover without a model, e.g. "weather in Warsaw" → location.
func extractEntities(intent, lowered string) map[string]string {
	entities := map[string]string{}
	if intent != "weather" {
		return entities
	}
	for _, marker := range []string{" in ", " at ", " for "} {
		idx := strings.LastIndex(lowered, marker)
		if idx < 0 {
			continue
		}
		location := strings.Trim(strings.TrimSpace(lowered[idx+len(marker):]), "?!.,")
		if location != "" && len(strings.Fields(location)) <= 4 {
			entities["location"] = location
			break
		}
	}
	return entities
}
