package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
	"github.com/kowalskidev/assistant-core/internal/core/ports"
)

// Synthesizer turns execution results into one final answer. Total failure
// becomes a safe apology; otherwise the model weaves successful results
// into prose, and a deterministic numbered concatenation covers the case
// where the model itself is down.
type Synthesizer struct {
	model       ports.ModelClient
	temperature float64
	logger      *slog.Logger
}

func NewSynthesizer(model ports.ModelClient, temperature float64, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	if temperature <= 0 {
		temperature = 0.4
	}
	return &Synthesizer{
		model:       model,
		temperature: temperature,
		logger:      logger,
	}
}

func (s *Synthesizer) Respond(ctx context.Context, query string, result domain.ExecutionResult, memContext, model string) domain.AgentResponse {
	successful := result.SuccessfulSteps()
	if len(successful) == 0 {
		return s.apology(result)
	}

	text, usedModel := s.synthesize(ctx, query, result, memContext, model)

	metadata := map[string]any{
		"steps_executed":  len(result.StepResults),
		"steps_succeeded": len(successful),
		"plan_complexity": result.Plan.Complexity,
		"elapsed_ms":      result.Elapsed.Milliseconds(),
		"synthesized":     usedModel,
	}
	if len(result.Errors) > 0 {
		metadata["partial_failure"] = true
		metadata["errors"] = result.Errors
	}

	return domain.AgentResponse{
		Success:  true,
		Text:     text,
		Metadata: metadata,
	}
}

func (s *Synthesizer) apology(result domain.ExecutionResult) domain.AgentResponse {
	var b strings.Builder
	b.WriteString("I'm sorry, I wasn't able to complete your request.")
	if len(result.StepResults) > 0 {
		b.WriteString(" The following steps failed:")
		for i, sr := range result.StepResults {
			desc := sr.Step.Description
			if desc == "" {
				desc = sr.Step.Tool
			}
			fmt.Fprintf(&b, "\n%d. %s", i+1, desc)
		}
	}
	return domain.AgentResponse{
		Success: false,
		Text:    b.String(),
		Error:   "all plan steps failed",
		Metadata: map[string]any{
			"errors": result.Errors,
		},
	}
}

func (s *Synthesizer) synthesize(ctx context.Context, query string, result domain.ExecutionResult, memContext, model string) (string, bool) {
	if s.model == nil {
		return numberedConcatenation(result), false
	}

	messages := []ports.ChatMessage{
		{
			Role: "system",
			Content: "You combine step results into one natural, fluent answer for the user. " +
				"Answer in plain conversational prose. Do not mention steps, tools, or any internal process. " +
				"If some information is missing because a step failed, acknowledge the gap briefly without technical detail.",
		},
		{
			Role:    "user",
			Content: s.userPrompt(query, result, memContext),
		},
	}

	content, err := s.model.Chat(ctx, model, messages, ports.ChatOptions{Temperature: s.temperature})
	if err != nil {
		s.logger.Warn("synthesis_model_failed", "error", err)
		return numberedConcatenation(result), false
	}

	cleaned := cleanResponse(content)
	if cleaned == "" {
		s.logger.Warn("synthesis_empty_after_cleaning")
		return numberedConcatenation(result), false
	}
	return cleaned, true
}

func (s *Synthesizer) userPrompt(query string, result domain.ExecutionResult, memContext string) string {
	var b strings.Builder
	b.WriteString("User asked: " + query + "\n")
	if memContext != "" {
		b.WriteString("\nConversation context:\n" + memContext + "\n")
	}
	b.WriteString("\nStep results:\n")
	for i, sr := range result.StepResults {
		desc := sr.Step.Description
		if desc == "" {
			desc = sr.Step.Tool
		}
		if sr.Success {
			fmt.Fprintf(&b, "%d. %s: %v\n", i+1, desc, sr.Result)
		} else {
			fmt.Fprintf(&b, "%d. %s: failed\n", i+1, desc)
		}
	}
	b.WriteString("\nWrite the final answer:")
	return b.String()
}

// numberedConcatenation is the deterministic fallback when the model cannot
// phrase the answer: successful results, numbered, in order.
func numberedConcatenation(result domain.ExecutionResult) string {
	successful := result.SuccessfulSteps()
	if len(successful) == 1 {
		return strings.TrimSpace(fmt.Sprintf("%v", successful[0].Result))
	}
	var b strings.Builder
	for i, sr := range successful {
		fmt.Fprintf(&b, "%d. %v\n", i+1, sr.Result)
	}
	return strings.TrimSpace(b.String())
}

// cleanResponse strips the formatting wrappers models like to add around
// an otherwise fine answer.
func cleanResponse(raw string) string {
	cleaned := stripCodeFences(raw)
	for _, prefix := range []string{"Response:", "Answer:", "Final answer:", "Result:"} {
		if strings.HasPrefix(cleaned, prefix) {
			cleaned = strings.TrimSpace(strings.TrimPrefix(cleaned, prefix))
		}
	}
	cleaned = strings.Trim(cleaned, "\"'")

	lines := strings.Split(cleaned, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
