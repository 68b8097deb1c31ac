package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kowalskidev/assistant-core/internal/core/domain"
)

// PlanExecutor runs plan steps strictly in declared order with a per-step
// timeout. A failing step is recorded and execution continues: later
// independent steps may still succeed. Overall success requires every step
// to succeed.
type PlanExecutor struct {
	tools       *ToolRegistry
	stepTimeout time.Duration
	logger      *slog.Logger

	// Optional observability hook, wired at bootstrap.
	OnStep func(tool, status string)
}

func NewPlanExecutor(tools *ToolRegistry, stepTimeout time.Duration, logger *slog.Logger) *PlanExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	if stepTimeout <= 0 {
		stepTimeout = 30 * time.Second
	}
	return &PlanExecutor{
		tools:       tools,
		stepTimeout: stepTimeout,
		logger:      logger,
	}
}

func (e *PlanExecutor) Execute(ctx context.Context, plan domain.ExecutionPlan) domain.ExecutionResult {
	start := time.Now()
	stepResults := make([]domain.StepResult, 0, len(plan.Steps))
	var errs []string

	e.logger.Info("plan_execution_started", "steps", len(plan.Steps), "complexity", plan.Complexity)

	for i, step := range plan.Steps {
		stepResult := e.executeStep(ctx, step, stepResults)
		stepResults = append(stepResults, stepResult)

		status := "success"
		if !stepResult.Success {
			status = "failure"
			errs = append(errs, fmt.Sprintf("step %d (%s): %s", i+1, step.Tool, stepResult.Error))
			e.logger.Warn("plan_step_failed", "step", i+1, "tool", step.Tool, "error", stepResult.Error)
		}
		if e.OnStep != nil {
			e.OnStep(step.Tool, status)
		}
	}

	result := domain.ExecutionResult{
		Plan:        plan,
		StepResults: stepResults,
		Success:     len(errs) == 0 && len(stepResults) > 0,
		Elapsed:     time.Since(start),
		Errors:      errs,
	}
	result.FinalResult = finalResult(stepResults)

	e.logger.Info("plan_execution_finished",
		"success", result.Success,
		"successful_steps", len(result.SuccessfulSteps()),
		"total_steps", len(stepResults),
		"elapsed", result.Elapsed,
	)
	return result
}

func (e *PlanExecutor) executeStep(ctx context.Context, step domain.PlanStep, previous []domain.StepResult) domain.StepResult {
	start := time.Now()

	stepCtx, cancel := context.WithTimeout(ctx, e.stepTimeout)
	defer cancel()

	args := injectPreviousResults(step.Args, previous)
	result, err := e.tools.Execute(stepCtx, step.Tool, args)
	elapsed := time.Since(start)

	if err != nil {
		msg := err.Error()
		if stepCtx.Err() == context.DeadlineExceeded {
			msg = fmt.Sprintf("tool %q timed out after %s", step.Tool, e.stepTimeout)
		}
		return domain.StepResult{
			Step:    step,
			Success: false,
			Error:   msg,
			Elapsed: elapsed,
		}
	}
	return domain.StepResult{
		Step:    step,
		Success: true,
		Result:  result,
		Elapsed: elapsed,
	}
}

// injectPreviousResults exposes each earlier successful step's payload to
// the current step as step_N_result, so sequential plans can chain data.
func injectPreviousResults(stepArgs map[string]any, previous []domain.StepResult) map[string]any {
	args := make(map[string]any, len(stepArgs)+len(previous))
	for k, v := range stepArgs {
		args[k] = v
	}
	for i, prev := range previous {
		if prev.Success {
			args[fmt.Sprintf("step_%d_result", i+1)] = prev.Result
		}
	}
	return args
}

func finalResult(stepResults []domain.StepResult) any {
	if len(stepResults) == 0 {
		return nil
	}
	if len(stepResults) == 1 {
		return stepResults[0].Result
	}
	successful := make([]any, 0, len(stepResults))
	for _, sr := range stepResults {
		if sr.Success {
			successful = append(successful, sr.Result)
		}
	}
	if len(successful) == 0 {
		return nil
	}
	return successful
}
