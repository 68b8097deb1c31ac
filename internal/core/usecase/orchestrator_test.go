package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
	"github.com/kowalskidev/assistant-core/internal/core/ports"
)

type panickingPublisher struct{}

func (panickingPublisher) PublishTurnCompleted(context.Context, domain.TurnEvent) error {
	panic("broker client bug")
}

func newTestOrchestrator(t *testing.T, model *fakeModel, publisher ports.EventPublisher) (*Orchestrator, *MemoryManager, *ToolRegistry) {
	t.Helper()
	if model == nil {
		model = &fakeModel{}
	}

	tools := NewToolRegistry(nil)
	memory := newTestMemory(MemoryConfig{}, model, nil, nil)
	intents := NewIntentDetector(model, nil)

	factory := NewAgentFactory(AgentDeps{Model: model, Tools: tools})
	registry, err := NewAgentRegistry(factory, AgentGeneral)
	if err != nil {
		t.Fatalf("NewAgentRegistry() error = %v", err)
	}
	if err := registry.MapIntent("weather", AgentWeather); err != nil {
		t.Fatalf("MapIntent() error = %v", err)
	}

	orch := NewOrchestrator(
		OrchestratorConfig{Service: "test", RequestTimeout: 5 * time.Second},
		intents,
		memory,
		NewAgentRouter(registry, nil),
		NewPlanner(model, tools, 0.1, nil),
		NewPlanExecutor(tools, time.Second, nil),
		NewSynthesizer(model, 0.4, nil),
		publisher,
		nil,
	)
	return orch, memory, tools
}

func TestProcessSimpleQueryUpdatesMemoryAndPublishes(t *testing.T) {
	model := &fakeModel{
		chatFn: func(string, []ports.ChatMessage, ports.ChatOptions) (string, error) {
			return "Hello! How can I help you today?", nil
		},
	}
	publisher := &fakePublisher{}
	orch, memory, _ := newTestOrchestrator(t, model, publisher)

	response := orch.Process(context.Background(), domain.Request{Query: "hello there", SessionID: "s1"})
	if !response.Success {
		t.Fatalf("expected success, got %+v", response)
	}
	if response.Metadata["request_id"] == "" || response.Metadata["session_id"] != "s1" {
		t.Fatalf("expected request metadata, got %v", response.Metadata)
	}

	memCtx := memory.GetContext(context.Background(), "s1", "")
	if len(memCtx.History) != 2 {
		t.Fatalf("expected user+assistant turns recorded, got %d", len(memCtx.History))
	}
	if memCtx.History[1].Content != response.Text {
		t.Fatalf("assistant turn must carry the materialized response")
	}

	events := publisher.published()
	if len(events) != 1 {
		t.Fatalf("expected 1 turn event, got %d", len(events))
	}
	if events[0].SessionID != "s1" || !events[0].Success {
		t.Fatalf("unexpected event: %+v", events[0])
	}
	if events[0].IntentType != "greeting" {
		t.Fatalf("expected greeting intent in event, got %q", events[0].IntentType)
	}
}

func TestProcessMultiStepQueryTakesPlannerPath(t *testing.T) {
	orch, _, tools := newTestOrchestrator(t, &fakeModel{}, &fakePublisher{})
	err := tools.Register(domain.ToolDefinition{Name: FallbackToolName, Description: "answers directly"},
		func(_ context.Context, args map[string]any) (any, error) {
			return "Here's a direct answer.", nil
		})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	var planSizes []int
	orch.OnPlanSize = func(steps int) { planSizes = append(planSizes, steps) }

	response := orch.Process(context.Background(), domain.Request{
		Query:     "check the weather and then search for umbrella shops",
		SessionID: "s2",
	})
	if !response.Success {
		t.Fatalf("expected fallback plan to carry the request, got %+v", response)
	}
	if !strings.Contains(response.Text, "direct answer") {
		t.Fatalf("expected tool result in answer, got %q", response.Text)
	}
	if len(planSizes) != 1 || planSizes[0] != 1 {
		t.Fatalf("expected single-step fallback plan recorded, got %v", planSizes)
	}
}

func TestProcessEmptyQuery(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t, &fakeModel{}, nil)
	response := orch.Process(context.Background(), domain.Request{Query: "   "})
	if response.Success {
		t.Fatalf("empty query must fail")
	}
	if response.Text != "Please provide a message." {
		t.Fatalf("unexpected message: %q", response.Text)
	}
}

func TestProcessGeneratesSessionID(t *testing.T) {
	model := &fakeModel{
		chatFn: func(string, []ports.ChatMessage, ports.ChatOptions) (string, error) {
			return "ok", nil
		},
	}
	orch, _, _ := newTestOrchestrator(t, model, nil)

	response := orch.Process(context.Background(), domain.Request{Query: "hello there"})
	sessionID, _ := response.Metadata["session_id"].(string)
	if sessionID == "" {
		t.Fatalf("expected generated session id, got %v", response.Metadata)
	}
}

func TestProcessContainsDownstreamPanic(t *testing.T) {
	model := &fakeModel{
		chatFn: func(string, []ports.ChatMessage, ports.ChatOptions) (string, error) {
			return "fine", nil
		},
	}
	orch, _, _ := newTestOrchestrator(t, model, panickingPublisher{})

	var statuses []string
	orch.OnTurn = func(status string, _ time.Duration) { statuses = append(statuses, status) }

	response := orch.Process(context.Background(), domain.Request{Query: "hello there", SessionID: "s3"})
	if response.Success {
		t.Fatalf("panicking publisher must surface as a failed response")
	}
	if response.Text == "" {
		t.Fatalf("contained panic must still produce a user-safe message")
	}
	if len(statuses) != 1 || statuses[0] != "panic" {
		t.Fatalf("expected panic turn recorded, got %v", statuses)
	}
}

func TestProcessWeatherIntentRoutesToWeatherAgent(t *testing.T) {
	orch, _, tools := newTestOrchestrator(t, &fakeModel{}, &fakePublisher{})
	err := tools.Register(domain.ToolDefinition{Name: "get_weather", RequiredArgs: []string{"location"}},
		func(context.Context, map[string]any) (any, error) {
			return "rainy, 12C", nil
		})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	var runs []string
	orch.OnAgentRun = func(agentType, status string) { runs = append(runs, agentType+":"+status) }

	response := orch.Process(context.Background(), domain.Request{Query: "What's the weather in Warsaw?", SessionID: "s4"})
	if !response.Success {
		t.Fatalf("expected success, got %+v", response)
	}
	if !strings.Contains(response.Text, "rainy, 12C") {
		t.Fatalf("expected tool result in answer, got %q", response.Text)
	}
	if len(runs) != 1 || runs[0] != "weather:success" {
		t.Fatalf("expected weather agent run recorded, got %v", runs)
	}
}
