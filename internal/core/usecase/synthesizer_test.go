package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
	"github.com/kowalskidev/assistant-core/internal/core/ports"
)

func resultWith(steps ...domain.StepResult) domain.ExecutionResult {
	result := domain.ExecutionResult{
		Plan:        domain.ExecutionPlan{Complexity: domain.ComplexityMedium},
		StepResults: steps,
		Elapsed:     50 * time.Millisecond,
	}
	allOK := len(steps) > 0
	for _, sr := range steps {
		if !sr.Success {
			allOK = false
			result.Errors = append(result.Errors, sr.Error)
		}
	}
	result.Success = allOK
	return result
}

func TestRespondApologizesWhenEverythingFailed(t *testing.T) {
	synth := NewSynthesizer(&fakeModel{}, 0.4, nil)

	result := resultWith(
		domain.StepResult{Step: domain.PlanStep{Tool: "get_weather", Description: "Fetch the forecast"}, Error: "backend down"},
		domain.StepResult{Step: domain.PlanStep{Tool: "web_search"}, Error: "backend down"},
	)

	response := synth.Respond(context.Background(), "weather?", result, "", "llama3.1:8b")
	if response.Success {
		t.Fatalf("expected failure response")
	}
	if !strings.Contains(response.Text, "sorry") && !strings.Contains(response.Text, "Sorry") {
		t.Fatalf("expected apology, got %q", response.Text)
	}
	if !strings.Contains(response.Text, "1. Fetch the forecast") {
		t.Fatalf("expected numbered failed steps, got %q", response.Text)
	}
	if response.Error == "" {
		t.Fatalf("expected error field set")
	}
}

func TestRespondSynthesizesWithModel(t *testing.T) {
	model := &fakeModel{
		chatFn: func(_ string, _ []ports.ChatMessage, opts ports.ChatOptions) (string, error) {
			if opts.Temperature != 0.4 {
				t.Fatalf("expected synthesis temperature 0.4, got %v", opts.Temperature)
			}
			return "Response: \"It's sunny and 22C in Warsaw today.\"", nil
		},
	}
	synth := NewSynthesizer(model, 0.4, nil)

	result := resultWith(
		domain.StepResult{Step: domain.PlanStep{Step: 1, Tool: "get_weather"}, Success: true, Result: "sunny, 22C"},
	)

	response := synth.Respond(context.Background(), "weather in Warsaw?", result, "", "llama3.1:8b")
	if !response.Success {
		t.Fatalf("expected success, got %+v", response)
	}
	if response.Text != "It's sunny and 22C in Warsaw today." {
		t.Fatalf("expected cleaned text, got %q", response.Text)
	}
	if response.Metadata["synthesized"] != true {
		t.Fatalf("expected synthesized metadata, got %v", response.Metadata)
	}
}

func TestRespondFallsBackToConcatenation(t *testing.T) {
	synth := NewSynthesizer(&fakeModel{}, 0.4, nil)

	result := resultWith(
		domain.StepResult{Step: domain.PlanStep{Step: 1, Tool: "get_weather"}, Success: true, Result: "sunny, 22C"},
		domain.StepResult{Step: domain.PlanStep{Step: 2, Tool: "web_search"}, Success: true, Result: "3 results found"},
	)

	response := synth.Respond(context.Background(), "q", result, "", "llama3.1:8b")
	if !response.Success {
		t.Fatalf("expected success, got %+v", response)
	}
	if !strings.Contains(response.Text, "1. sunny, 22C") || !strings.Contains(response.Text, "2. 3 results found") {
		t.Fatalf("expected numbered concatenation, got %q", response.Text)
	}
	if response.Metadata["synthesized"] != false {
		t.Fatalf("expected synthesized=false, got %v", response.Metadata)
	}
}

func TestRespondPartialFailureStillAnswers(t *testing.T) {
	synth := NewSynthesizer(&fakeModel{}, 0.4, nil)

	result := resultWith(
		domain.StepResult{Step: domain.PlanStep{Step: 1, Tool: "get_weather"}, Success: true, Result: "sunny, 22C"},
		domain.StepResult{Step: domain.PlanStep{Step: 2, Tool: "web_search"}, Error: "search offline"},
	)

	response := synth.Respond(context.Background(), "q", result, "", "llama3.1:8b")
	if !response.Success {
		t.Fatalf("partial success must still answer, got %+v", response)
	}
	if response.Text == "" {
		t.Fatalf("expected non-empty answer")
	}
	if response.Metadata["partial_failure"] != true {
		t.Fatalf("expected partial_failure flagged, got %v", response.Metadata)
	}
}

func TestCleanResponseStripsWrappers(t *testing.T) {
	raw := "```\nAnswer: The capital of France is Paris.\n\n\n\n```"
	if got := cleanResponse(raw); got != "The capital of France is Paris." {
		t.Fatalf("unexpected cleaned text: %q", got)
	}
}
