package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
)

func TestExecutePartialFailureContinues(t *testing.T) {
	registry := NewToolRegistry(nil)
	_ = registry.Register(domain.ToolDefinition{Name: "step_ok"}, func(context.Context, map[string]any) (any, error) {
		return "first result", nil
	})
	_ = registry.Register(domain.ToolDefinition{Name: "step_bad"}, func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("tool exploded")
	})

	executor := NewPlanExecutor(registry, time.Second, nil)
	plan := domain.ExecutionPlan{
		Query: "q",
		Steps: []domain.PlanStep{
			{Step: 1, Tool: "step_ok", Args: map[string]any{}},
			{Step: 2, Tool: "step_bad", Args: map[string]any{}},
		},
		TotalSteps: 2,
	}

	result := executor.Execute(context.Background(), plan)
	if result.Success {
		t.Fatalf("expected overall failure when a step fails")
	}
	if len(result.StepResults) != 2 {
		t.Fatalf("expected both steps recorded, got %d", len(result.StepResults))
	}
	if !result.StepResults[0].Success || result.StepResults[1].Success {
		t.Fatalf("unexpected step outcomes: %+v", result.StepResults)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 aggregated error, got %v", result.Errors)
	}
}

func TestExecuteAllStepsSucceed(t *testing.T) {
	registry := NewToolRegistry(nil)
	_ = registry.Register(domain.ToolDefinition{Name: "step_ok"}, func(context.Context, map[string]any) (any, error) {
		return "ok", nil
	})

	executor := NewPlanExecutor(registry, time.Second, nil)
	plan := domain.ExecutionPlan{
		Query: "q",
		Steps: []domain.PlanStep{
			{Step: 1, Tool: "step_ok", Args: map[string]any{}},
			{Step: 2, Tool: "step_ok", Args: map[string]any{}},
		},
		TotalSteps: 2,
	}

	result := executor.Execute(context.Background(), plan)
	if !result.Success {
		t.Fatalf("expected success, got errors %v", result.Errors)
	}
	if result.Elapsed <= 0 {
		t.Fatalf("expected elapsed time recorded")
	}
}

func TestExecuteInjectsPreviousResults(t *testing.T) {
	registry := NewToolRegistry(nil)
	_ = registry.Register(domain.ToolDefinition{Name: "produce"}, func(context.Context, map[string]any) (any, error) {
		return "payload", nil
	})
	var seen any
	_ = registry.Register(domain.ToolDefinition{Name: "consume"}, func(_ context.Context, args map[string]any) (any, error) {
		seen = args["step_1_result"]
		return "done", nil
	})

	executor := NewPlanExecutor(registry, time.Second, nil)
	plan := domain.ExecutionPlan{
		Query: "q",
		Steps: []domain.PlanStep{
			{Step: 1, Tool: "produce", Args: map[string]any{}},
			{Step: 2, Tool: "consume", Args: map[string]any{}},
		},
		TotalSteps: 2,
	}

	if result := executor.Execute(context.Background(), plan); !result.Success {
		t.Fatalf("expected success, got %v", result.Errors)
	}
	if seen != "payload" {
		t.Fatalf("expected step 1 result injected, got %v", seen)
	}
}

func TestExecuteStepTimeoutRecordedAsFailure(t *testing.T) {
	registry := NewToolRegistry(nil)
	_ = registry.Register(domain.ToolDefinition{Name: "slow"}, func(ctx context.Context, _ map[string]any) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return "too late", nil
		}
	})

	executor := NewPlanExecutor(registry, 10*time.Millisecond, nil)
	plan := domain.ExecutionPlan{
		Query:      "q",
		Steps:      []domain.PlanStep{{Step: 1, Tool: "slow", Args: map[string]any{}}},
		TotalSteps: 1,
	}

	result := executor.Execute(context.Background(), plan)
	if result.Success {
		t.Fatalf("expected timeout failure")
	}
	if result.StepResults[0].Error == "" {
		t.Fatalf("expected timeout error message")
	}
}

func TestExecuteEmptyPlanIsNotSuccess(t *testing.T) {
	executor := NewPlanExecutor(NewToolRegistry(nil), time.Second, nil)
	result := executor.Execute(context.Background(), domain.ExecutionPlan{Query: "q"})
	if result.Success {
		t.Fatalf("empty plan must not report success")
	}
}
