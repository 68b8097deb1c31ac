package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
	"github.com/kowalskidev/assistant-core/internal/core/ports"
)

// AgentType is the closed enumeration of agent capabilities. Keeping it
// closed makes a missing intent mapping a construction-time error instead
// of a request-time surprise.
type AgentType string

const (
	AgentGeneral   AgentType = "general"
	AgentWeather   AgentType = "weather"
	AgentSearch    AgentType = "search"
	AgentKnowledge AgentType = "knowledge"
)

// AgentInput is the uniform payload every agent processes.
type AgentInput struct {
	Query         string
	SessionID     string
	Intent        domain.IntentData
	MemoryContext string
	Model         string
	Stream        bool
}

// Agent is one behavior behind the uniform process contract.
type Agent interface {
	Process(ctx context.Context, input AgentInput) domain.AgentResponse
}

// AgentDeps bundles the shared dependencies injected into every agent.
type AgentDeps struct {
	Logger *slog.Logger
	Model  ports.ModelClient
	Tools  *ToolRegistry
}

// AgentFactory constructs agents for the closed type set. An unknown type
// is a configuration error, never a silent nil.
type AgentFactory struct {
	deps AgentDeps
}

func NewAgentFactory(deps AgentDeps) *AgentFactory {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &AgentFactory{deps: deps}
}

func (f *AgentFactory) CreateAgent(agentType AgentType) (Agent, error) {
	switch agentType {
	case AgentGeneral:
		return &generalAgent{deps: f.deps}, nil
	case AgentWeather:
		return &weatherAgent{deps: f.deps}, nil
	case AgentSearch:
		return &searchAgent{deps: f.deps}, nil
	case AgentKnowledge:
		return &knowledgeAgent{deps: f.deps}, nil
	default:
		return nil, domain.WrapError(domain.ErrConfiguration, "create agent",
			fmt.Errorf("unsupported agent type %q", agentType))
	}
}

// AgentRegistry maps intent tags to agent types with a mandatory default.
// Mappings are validated at registration: an intent may only point at a
// type the factory can construct.
type AgentRegistry struct {
	factory     *AgentFactory
	defaultType AgentType

	mu           sync.RWMutex
	intentToType map[string]AgentType
}

func NewAgentRegistry(factory *AgentFactory, defaultType AgentType) (*AgentRegistry, error) {
	if _, err := factory.CreateAgent(defaultType); err != nil {
		return nil, domain.WrapError(domain.ErrConfiguration, "agent registry default", err)
	}
	return &AgentRegistry{
		factory:      factory,
		defaultType:  defaultType,
		intentToType: make(map[string]AgentType),
	}, nil
}

func (r *AgentRegistry) MapIntent(intent string, agentType AgentType) error {
	if strings.TrimSpace(intent) == "" {
		return domain.WrapError(domain.ErrConfiguration, "map intent", fmt.Errorf("empty intent tag"))
	}
	if _, err := r.factory.CreateAgent(agentType); err != nil {
		return domain.WrapError(domain.ErrConfiguration, "map intent",
			fmt.Errorf("intent %q maps to unconstructible agent type %q", intent, agentType))
	}
	r.mu.Lock()
	r.intentToType[strings.ToLower(intent)] = agentType
	r.mu.Unlock()
	return nil
}

// AgentTypeForIntent never fails: unmapped intents return the default.
func (r *AgentRegistry) AgentTypeForIntent(intent string) AgentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.intentToType[strings.ToLower(intent)]; ok {
		return t
	}
	return r.defaultType
}

func (r *AgentRegistry) CreateAgent(agentType AgentType) (Agent, error) {
	return r.factory.CreateAgent(agentType)
}

// generalAgent answers directly from the model, with optional incremental
// text delivery. The full text is always present; the stream is a
// convenience view over the same answer.
type generalAgent struct {
	deps AgentDeps
}

func (a *generalAgent) Process(ctx context.Context, input AgentInput) domain.AgentResponse {
	messages := []ports.ChatMessage{
		{
			Role: "system",
			Content: "You are a helpful personal assistant. Answer naturally and concisely in the user's language. " +
				"Use the conversation context when it is relevant.",
		},
	}
	if input.MemoryContext != "" {
		messages = append(messages, ports.ChatMessage{Role: "system", Content: "Conversation context:\n" + input.MemoryContext})
	}
	messages = append(messages, ports.ChatMessage{Role: "user", Content: input.Query})

	content, err := a.deps.Model.Chat(ctx, input.Model, messages, ports.ChatOptions{Temperature: 0.7})
	if err != nil {
		a.deps.Logger.Warn("general_agent_model_failed", "session_id", input.SessionID, "error", err)
		return domain.ErrorResponse("I'm having trouble reaching the language model right now. Please try again in a moment.")
	}

	response := domain.AgentResponse{
		Success: true,
		Text:    content,
		Metadata: map[string]any{
			"agent_type": string(AgentGeneral),
		},
	}
	if input.Stream {
		response.TextStream = chunkText(content)
	}
	return response
}

// chunkText delivers an already-complete answer incrementally, word by
// word, closing the channel when done.
func chunkText(text string) <-chan string {
	out := make(chan string, 16)
	go func() {
		defer close(out)
		words := strings.Fields(text)
		for i, word := range words {
			if i > 0 {
				out <- " " + word
			} else {
				out <- word
			}
		}
	}()
	return out
}

type weatherAgent struct {
	deps AgentDeps
}

func (a *weatherAgent) Process(ctx context.Context, input AgentInput) domain.AgentResponse {
	location := input.Intent.Entities["location"]
	if location == "" {
		location = "current"
	}

	result, err := a.deps.Tools.Execute(ctx, "get_weather", map[string]any{"location": location})
	if err != nil {
		a.deps.Logger.Warn("weather_tool_failed", "session_id", input.SessionID, "error", err)
		return domain.ErrorResponse("I couldn't fetch the weather right now. Please try again later.")
	}

	text := phraseWithModel(ctx, a.deps, input.Model,
		fmt.Sprintf("The user asked: %s\nWeather data: %v\nAnswer conversationally in one or two sentences.", input.Query, result),
		fmt.Sprintf("Weather for %s: %v", location, result),
	)
	return domain.AgentResponse{
		Success: true,
		Text:    text,
		Data:    map[string]any{"weather": result, "location": location},
		Metadata: map[string]any{
			"agent_type": string(AgentWeather),
		},
	}
}

type searchAgent struct {
	deps AgentDeps
}

func (a *searchAgent) Process(ctx context.Context, input AgentInput) domain.AgentResponse {
	result, err := a.deps.Tools.Execute(ctx, "web_search", map[string]any{"query": input.Query})
	if err != nil {
		a.deps.Logger.Warn("search_tool_failed", "session_id", input.SessionID, "error", err)
		return domain.ErrorResponse("I couldn't run the search right now. Please try again later.")
	}

	text := phraseWithModel(ctx, a.deps, input.Model,
		fmt.Sprintf("The user asked: %s\nSearch results: %v\nSummarize the findings conversationally.", input.Query, result),
		fmt.Sprintf("Here is what I found: %v", result),
	)
	return domain.AgentResponse{
		Success: true,
		Text:    text,
		Data:    map[string]any{"results": result},
		Metadata: map[string]any{
			"agent_type": string(AgentSearch),
		},
	}
}

// knowledgeAgent answers recall-style questions from the session's own
// memory context rather than external tools.
type knowledgeAgent struct {
	deps AgentDeps
}

func (a *knowledgeAgent) Process(ctx context.Context, input AgentInput) domain.AgentResponse {
	if input.MemoryContext == "" {
		return domain.AgentResponse{
			Success: true,
			Text:    "We haven't talked about anything yet in this conversation, so there's nothing for me to recall.",
			Metadata: map[string]any{
				"agent_type": string(AgentKnowledge),
			},
		}
	}

	messages := []ports.ChatMessage{
		{
			Role: "system",
			Content: "You answer questions about the ongoing conversation using only the provided context. " +
				"If the context does not contain the answer, say so plainly instead of guessing.",
		},
		{Role: "system", Content: "Conversation context:\n" + input.MemoryContext},
		{Role: "user", Content: input.Query},
	}

	content, err := a.deps.Model.Chat(ctx, input.Model, messages, ports.ChatOptions{Temperature: 0.3})
	if err != nil {
		a.deps.Logger.Warn("knowledge_agent_model_failed", "session_id", input.SessionID, "error", err)
		return domain.ErrorResponse("I couldn't look that up in our conversation right now. Please try again.")
	}
	return domain.AgentResponse{
		Success: true,
		Text:    content,
		Metadata: map[string]any{
			"agent_type": string(AgentKnowledge),
		},
	}
}

// phraseWithModel asks the model to phrase structured data conversationally
// and falls back to the deterministic rendering when the model is down.
func phraseWithModel(ctx context.Context, deps AgentDeps, model, prompt, fallback string) string {
	if deps.Model == nil {
		return fallback
	}
	content, err := deps.Model.Chat(ctx, model, []ports.ChatMessage{
		{Role: "system", Content: "You phrase data as a short, natural answer. Plain prose only."},
		{Role: "user", Content: prompt},
	}, ports.ChatOptions{Temperature: 0.4})
	if err != nil || strings.TrimSpace(content) == "" {
		return fallback
	}
	return content
}
