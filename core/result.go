package core

import (
	"fmt"
	"strings"
)

// Status is the terminal status a sub-agent reports.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// DelegationRequest hands a task to a sub-agent. It is the only channel by
// which a sub-agent receives context.
type DelegationRequest struct {
	Target  string `json:"target"`
	Task    string `json:"task"`
	Context string `json:"context,omitempty"`
}

// SeedText renders the request as the single Human turn that opens the
// sub-agent's history.
func (r DelegationRequest) SeedText() string {
	if strings.TrimSpace(r.Context) == "" {
		return r.Task
	}
	return r.Task + "\n\nContext:\n" + r.Context
}

// AgentResult is the structured outcome of a finished sub-agent run.
type AgentResult struct {
	Status      Status `json:"request_status"`
	Summary     string `json:"summary"`
	Information string `json:"information,omitempty"`
	ErrorInfo   string `json:"error_info,omitempty"`
}

// Failed builds a failure result from a fatal error.
func Failed(summary string, err error) *AgentResult {
	r := &AgentResult{Status: StatusFailure, Summary: summary}
	if err != nil {
		r.ErrorInfo = err.Error()
	}
	return r
}

// AgentQuestion is returned when a sub-agent needs an answer before it can
// continue.
type AgentQuestion struct {
	Question string `json:"question"`
}

// Outcome is what a sub-agent invocation returns: exactly one of Result or
// Question is set.
type Outcome struct {
	Result   *AgentResult
	Question *AgentQuestion
}

// Classify checks the outcome carries exactly one shape.
func (o Outcome) Classify() error {
	switch {
	case o.Result != nil && o.Question == nil:
		return nil
	case o.Result == nil && o.Question != nil:
		return nil
	default:
		return ErrUnclassifiedOutcome
	}
}

// IsQuestion reports whether the sub-agent is waiting for an answer.
func (o Outcome) IsQuestion() bool { return o.Question != nil && o.Result == nil }

// String renders the outcome for a tool result turn.
func (o Outcome) String() string {
	switch {
	case o.Result != nil:
		var b strings.Builder
		fmt.Fprintf(&b, "status: %s\nsummary: %s", o.Result.Status, o.Result.Summary)
		if o.Result.Information != "" {
			fmt.Fprintf(&b, "\ninformation: %s", o.Result.Information)
		}
		if o.Result.ErrorInfo != "" {
			fmt.Fprintf(&b, "\nerror: %s", o.Result.ErrorInfo)
		}
		return b.String()
	case o.Question != nil:
		return "question: " + o.Question.Question
	default:
		return ""
	}
}
