package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kowalskidev/assistant-core/internal/core/ports"
)

// End-to-end pass through plan → execute → synthesize with a scripted model:
// the planner gets JSON, the synthesizer gets prose, and the weather tool
// result must surface in the final answer.
func TestPlanExecuteSynthesizeWeatherQuery(t *testing.T) {
	model := &fakeModel{
		chatFn: func(_ string, messages []ports.ChatMessage, opts ports.ChatOptions) (string, error) {
			if opts.JSONFormat {
				return `{"steps":[{"step":1,"tool":"get_weather","args":{"location":"Warsaw"},"description":"Fetch the forecast"}],"total_steps":1,"estimated_complexity":"simple"}`, nil
			}
			for _, msg := range messages {
				if strings.Contains(msg.Content, "sunny, 22C") {
					return "It's sunny and 22C in Warsaw right now.", nil
				}
			}
			t.Fatalf("synthesis prompt missing step result: %+v", messages)
			return "", nil
		},
	}

	tools := weatherToolRegistry(t)
	planner := NewPlanner(model, tools, 0.1, nil)
	executor := NewPlanExecutor(tools, time.Second, nil)
	synth := NewSynthesizer(model, 0.4, nil)

	query := "What's the weather in Warsaw?"
	plan := planner.CreatePlan(context.Background(), query, PlanContext{})
	if !planner.ValidatePlan(plan) {
		t.Fatalf("expected valid plan, got %+v", plan)
	}

	result := executor.Execute(context.Background(), plan)
	if !result.Success {
		t.Fatalf("expected execution success, got %v", result.Errors)
	}

	response := synth.Respond(context.Background(), query, result, "", "")
	if !response.Success {
		t.Fatalf("expected final success, got %+v", response)
	}
	if !strings.Contains(response.Text, "sunny") {
		t.Fatalf("weather result must reach the final answer, got %q", response.Text)
	}
}
