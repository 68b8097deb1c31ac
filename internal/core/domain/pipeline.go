package domain

import "time"

// IntentData is the ephemeral classification of one utterance.
type IntentData struct {
	Type       string            `json:"type"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities"`
}

// ToolDefinition is the static contract of an invocable capability.
type ToolDefinition struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	RequiredArgs []string `json:"required_args"`
	OptionalArgs []string `json:"optional_args,omitempty"`
	ReturnType   string   `json:"return_type"`
	Examples     []string `json:"examples,omitempty"`
}

// PlanStep is one tool invocation inside an execution plan.
type PlanStep struct {
	Step           int            `json:"step"`
	Tool           string         `json:"tool"`
	Args           map[string]any `json:"args"`
	Description    string         `json:"description"`
	ExpectedResult string         `json:"expected_result,omitempty"`
}

// Plan complexity tags emitted by the planner.
const (
	ComplexitySimple  = "simple"
	ComplexityMedium  = "medium"
	ComplexityComplex = "complex"
)

// ExecutionPlan is an ordered decomposition of a query, consumed once.
type ExecutionPlan struct {
	Query      string     `json:"query"`
	Steps      []PlanStep `json:"steps"`
	TotalSteps int        `json:"total_steps"`
	Complexity string     `json:"estimated_complexity"`
}

// StepResult records the outcome of a single executed step.
type StepResult struct {
	Step    PlanStep      `json:"step"`
	Success bool          `json:"success"`
	Result  any           `json:"result,omitempty"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// ExecutionResult aggregates all step outcomes. Success is true only when
// every step succeeded; partial runs keep both sides.
type ExecutionResult struct {
	Plan        ExecutionPlan `json:"plan"`
	StepResults []StepResult  `json:"step_results"`
	Success     bool          `json:"success"`
	FinalResult any           `json:"final_result,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
	Errors      []string      `json:"errors,omitempty"`
}

// SuccessfulSteps returns the subset of step results that succeeded.
func (r ExecutionResult) SuccessfulSteps() []StepResult {
	out := make([]StepResult, 0, len(r.StepResults))
	for _, sr := range r.StepResults {
		if sr.Success {
			out = append(out, sr)
		}
	}
	return out
}

// AgentResponse is the single canonical return shape of every agent, router
// and orchestrator path. TextStream, when set, delivers the answer
// incrementally; Text always carries the full answer.
type AgentResponse struct {
	Success    bool           `json:"success"`
	Text       string         `json:"text,omitempty"`
	TextStream <-chan string  `json:"-"`
	Data       map[string]any `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ErrorResponse builds a failed AgentResponse with a user-safe message.
// Internal detail belongs in logs, never here.
func ErrorResponse(userMessage string) AgentResponse {
	return AgentResponse{
		Success: false,
		Text:    userMessage,
		Error:   userMessage,
	}
}

// ProcessOptions tune a single Process call.
type ProcessOptions struct {
	AltModel         string `json:"alt_model,omitempty"`
	Stream           bool   `json:"stream,omitempty"`
	MaxContextTokens int    `json:"max_context_tokens,omitempty"`
	VerifyKnowledge  bool   `json:"verify_knowledge,omitempty"`
}

// Request is the single entry-point payload of the orchestrator.
type Request struct {
	Query     string         `json:"query"`
	SessionID string         `json:"session_id"`
	Options   ProcessOptions `json:"options"`
}
