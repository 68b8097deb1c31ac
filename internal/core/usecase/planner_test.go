package usecase

import (
	"context"
	"testing"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
	"github.com/kowalskidev/assistant-core/internal/core/ports"
)

func weatherToolRegistry(t *testing.T) *ToolRegistry {
	t.Helper()
	registry := NewToolRegistry(nil)
	err := registry.Register(domain.ToolDefinition{
		Name:         "get_weather",
		Description:  "fetches the weather forecast",
		RequiredArgs: []string{"location"},
		ReturnType:   "string",
	}, func(_ context.Context, args map[string]any) (any, error) {
		return "sunny, 22C", nil
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return registry
}

func TestCreatePlanEmptyQueryReturnsFallback(t *testing.T) {
	planner := NewPlanner(&fakeModel{}, weatherToolRegistry(t), 0.1, nil)

	plan := planner.CreatePlan(context.Background(), "", PlanContext{})
	if len(plan.Steps) != 1 {
		t.Fatalf("expected single-step fallback plan, got %d steps", len(plan.Steps))
	}
	if plan.Steps[0].Tool != FallbackToolName {
		t.Fatalf("expected fallback tool, got %q", plan.Steps[0].Tool)
	}
	if plan.Complexity != domain.ComplexitySimple {
		t.Fatalf("expected simple complexity, got %q", plan.Complexity)
	}
}

func TestCreatePlanBackendUnreachableReturnsFallback(t *testing.T) {
	planner := NewPlanner(&fakeModel{}, weatherToolRegistry(t), 0.1, nil)

	plan := planner.CreatePlan(context.Background(), "What's the weather in Warsaw?", PlanContext{})
	if len(plan.Steps) != 1 || plan.Steps[0].Tool != FallbackToolName {
		t.Fatalf("expected general-conversation fallback, got %+v", plan.Steps)
	}
	if plan.Complexity != domain.ComplexitySimple {
		t.Fatalf("expected simple complexity, got %q", plan.Complexity)
	}
}

func TestCreatePlanParsesModelJSON(t *testing.T) {
	model := &fakeModel{
		chatFn: func(_ string, _ []ports.ChatMessage, opts ports.ChatOptions) (string, error) {
			if opts.Temperature != 0.1 {
				t.Fatalf("expected planning temperature 0.1, got %v", opts.Temperature)
			}
			return "```json\n" + `{"steps":[{"step":1,"tool":"get_weather","args":{"location":"Warsaw"},"description":"Fetch the forecast","expected_result":"Current weather"}],"total_steps":1,"estimated_complexity":"simple"}` + "\n```", nil
		},
	}
	planner := NewPlanner(model, weatherToolRegistry(t), 0.1, nil)

	plan := planner.CreatePlan(context.Background(), "What's the weather in Warsaw?", PlanContext{})
	if len(plan.Steps) != 1 {
		t.Fatalf("expected 1 step, got %d", len(plan.Steps))
	}
	if plan.Steps[0].Tool != "get_weather" {
		t.Fatalf("unexpected tool: %q", plan.Steps[0].Tool)
	}
	if plan.Steps[0].Args["location"] != "Warsaw" {
		t.Fatalf("unexpected args: %v", plan.Steps[0].Args)
	}
	if !planner.ValidatePlan(plan) {
		t.Fatalf("expected plan to validate")
	}
}

func TestValidatePlanUnregisteredTool(t *testing.T) {
	planner := NewPlanner(&fakeModel{}, weatherToolRegistry(t), 0.1, nil)

	plan := domain.ExecutionPlan{
		Query: "q",
		Steps: []domain.PlanStep{
			{Step: 1, Tool: "teleport", Args: map[string]any{}},
		},
		TotalSteps: 1,
	}
	if planner.ValidatePlan(plan) {
		t.Fatalf("expected validation failure for unregistered tool")
	}
}

func TestValidatePlanMissingRequiredArg(t *testing.T) {
	planner := NewPlanner(&fakeModel{}, weatherToolRegistry(t), 0.1, nil)

	plan := domain.ExecutionPlan{
		Query: "q",
		Steps: []domain.PlanStep{
			{Step: 1, Tool: "get_weather", Args: map[string]any{}},
		},
		TotalSteps: 1,
	}
	if planner.ValidatePlan(plan) {
		t.Fatalf("expected validation failure for missing required arg")
	}
}

func TestValidatePlanEmptyPlan(t *testing.T) {
	planner := NewPlanner(&fakeModel{}, weatherToolRegistry(t), 0.1, nil)
	if planner.ValidatePlan(domain.ExecutionPlan{Query: "q"}) {
		t.Fatalf("expected validation failure for empty plan")
	}
}

func TestValidatePlanAcceptsFallbackTool(t *testing.T) {
	planner := NewPlanner(&fakeModel{}, weatherToolRegistry(t), 0.1, nil)
	if !planner.ValidatePlan(planner.FallbackPlan("hello")) {
		t.Fatalf("fallback plan must always validate")
	}
}
