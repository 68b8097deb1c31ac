package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
	"github.com/kowalskidev/assistant-core/internal/core/ports"
)

// FallbackToolName is the tool every failed planning attempt degrades to:
// a single step forwarding the raw query to general conversation.
const FallbackToolName = "general_conversation"

// PlanContext carries the memory-derived hints a plan may use.
type PlanContext struct {
	Summary     string
	Preferences map[string]string
	Model       string
}

// Planner decomposes a request into an ordered tool plan. CreatePlan never
// fails: malformed model output and backend errors both degrade to the
// single-step general-conversation fallback.
type Planner struct {
	model       ports.ModelClient
	tools       *ToolRegistry
	temperature float64
	logger      *slog.Logger
}

func NewPlanner(model ports.ModelClient, tools *ToolRegistry, temperature float64, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	if temperature <= 0 {
		temperature = 0.1
	}
	return &Planner{
		model:       model,
		tools:       tools,
		temperature: temperature,
		logger:      logger,
	}
}

func (p *Planner) CreatePlan(ctx context.Context, query string, planCtx PlanContext) domain.ExecutionPlan {
	if strings.TrimSpace(query) == "" {
		return p.FallbackPlan(query)
	}

	messages := []ports.ChatMessage{
		{Role: "system", Content: p.systemPrompt()},
		{Role: "user", Content: p.userPrompt(query, planCtx)},
	}

	content, err := p.model.Chat(ctx, planCtx.Model, messages, ports.ChatOptions{
		Temperature: p.temperature,
		JSONFormat:  true,
	})
	if err != nil {
		p.logger.Warn("plan_model_failed", "error", err)
		return p.FallbackPlan(query)
	}

	plan, ok := p.parsePlan(query, content)
	if !ok {
		p.logger.Warn("plan_unparsable", "content", truncate(content, 200))
		return p.FallbackPlan(query)
	}

	p.logger.Info("plan_created", "steps", len(plan.Steps), "complexity", plan.Complexity)
	return plan
}

func (p *Planner) systemPrompt() string {
	return fmt.Sprintf(`You are a task planning expert. Break the user's request into ordered steps using only the available tools.

Answer with JSON only, exactly this shape:
{"steps": [{"step": 1, "tool": "tool_name", "args": {"arg": "value"}, "description": "what this step does", "expected_result": "what we expect back"}], "total_steps": 1, "estimated_complexity": "simple"}

Available tools:
%s
Rules:
1. Use only the tools listed above.
2. Plan sequentially: earlier results may feed later steps.
3. A simple request needs exactly one step.
4. estimated_complexity is one of "simple", "medium", "complex".`, p.tools.Descriptions())
}

func (p *Planner) userPrompt(query string, planCtx PlanContext) string {
	var b strings.Builder
	b.WriteString("User request: " + query)
	if planCtx.Summary != "" {
		b.WriteString("\n\nConversation context: " + planCtx.Summary)
	}
	if len(planCtx.Preferences) > 0 {
		pairs := make([]string, 0, len(planCtx.Preferences))
		for k, v := range planCtx.Preferences {
			pairs = append(pairs, k+"="+v)
		}
		sort.Strings(pairs)
		b.WriteString("\nUser preferences: " + strings.Join(pairs, ", "))
	}
	b.WriteString("\n\nCreate the execution plan:")
	return b.String()
}

func (p *Planner) parsePlan(query, content string) (domain.ExecutionPlan, bool) {
	var parsed struct {
		Steps []struct {
			Step           int            `json:"step"`
			Tool           string         `json:"tool"`
			Args           map[string]any `json:"args"`
			Description    string         `json:"description"`
			ExpectedResult string         `json:"expected_result"`
		} `json:"steps"`
		TotalSteps int    `json:"total_steps"`
		Complexity string `json:"estimated_complexity"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(content)), &parsed); err != nil {
		return domain.ExecutionPlan{}, false
	}
	if len(parsed.Steps) == 0 {
		return domain.ExecutionPlan{}, false
	}

	steps := make([]domain.PlanStep, 0, len(parsed.Steps))
	for i, s := range parsed.Steps {
		if strings.TrimSpace(s.Tool) == "" {
			return domain.ExecutionPlan{}, false
		}
		args := s.Args
		if args == nil {
			args = map[string]any{}
		}
		step := s.Step
		if step <= 0 {
			step = i + 1
		}
		steps = append(steps, domain.PlanStep{
			Step:           step,
			Tool:           s.Tool,
			Args:           args,
			Description:    s.Description,
			ExpectedResult: s.ExpectedResult,
		})
	}

	complexity := parsed.Complexity
	switch complexity {
	case domain.ComplexitySimple, domain.ComplexityMedium, domain.ComplexityComplex:
	default:
		if len(steps) > 1 {
			complexity = domain.ComplexityMedium
		} else {
			complexity = domain.ComplexitySimple
		}
	}

	return domain.ExecutionPlan{
		Query:      query,
		Steps:      steps,
		TotalSteps: len(steps),
		Complexity: complexity,
	}, true
}

// FallbackPlan forwards the raw query to general conversation in one step.
func (p *Planner) FallbackPlan(query string) domain.ExecutionPlan {
	return domain.ExecutionPlan{
		Query: query,
		Steps: []domain.PlanStep{
			{
				Step:           1,
				Tool:           FallbackToolName,
				Args:           map[string]any{"message": query},
				Description:    "Answer the user's request directly",
				ExpectedResult: "A conversational answer",
			},
		},
		TotalSteps: 1,
		Complexity: domain.ComplexitySimple,
	}
}

// ValidatePlan reports whether the plan is executable: at least one step,
// every non-fallback tool registered, every invocation carrying its
// required arguments. It never errors; the caller decides what to do with
// an invalid plan.
func (p *Planner) ValidatePlan(plan domain.ExecutionPlan) bool {
	if len(plan.Steps) == 0 {
		return false
	}
	for _, step := range plan.Steps {
		if step.Tool == FallbackToolName {
			continue
		}
		def, ok := p.tools.Get(step.Tool)
		if !ok {
			return false
		}
		for _, required := range def.RequiredArgs {
			if _, present := step.Args[required]; !present {
				return false
			}
		}
	}
	return true
}
