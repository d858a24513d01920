package core

import (
	"errors"
	"strings"
	"testing"
)

func TestOutcome_Classify(t *testing.T) {
	if err := (Outcome{}).Classify(); !errors.Is(err, ErrUnclassifiedOutcome) {
		t.Fatalf("empty outcome must be unclassified, got %v", err)
	}
	both := Outcome{Result: &AgentResult{Status: StatusSuccess}, Question: &AgentQuestion{Question: "?"}}
	if err := both.Classify(); !errors.Is(err, ErrUnclassifiedOutcome) {
		t.Fatalf("outcome with both shapes must be unclassified, got %v", err)
	}
	q := Outcome{Question: &AgentQuestion{Question: "which one?"}}
	if err := q.Classify(); err != nil || !q.IsQuestion() {
		t.Fatalf("question outcome misclassified: %v", err)
	}
}

func TestOutcome_String(t *testing.T) {
	o := Outcome{Result: &AgentResult{Status: StatusFailure, Summary: "could not cancel", ErrorInfo: "boom"}}
	s := o.String()
	if !strings.Contains(s, "status: failure") || !strings.Contains(s, "error: boom") {
		t.Fatalf("unexpected rendering: %s", s)
	}
}

func TestDelegationRequest_SeedText(t *testing.T) {
	r := DelegationRequest{Target: "calendar_agent", Task: "cancel my 3pm meeting"}
	if r.SeedText() != "cancel my 3pm meeting" {
		t.Fatalf("unexpected seed: %q", r.SeedText())
	}
	r.Context = "meeting is with Bob"
	if !strings.Contains(r.SeedText(), "meeting is with Bob") {
		t.Fatalf("context missing from seed: %q", r.SeedText())
	}
}

func TestIsFatal(t *testing.T) {
	if IsFatal(nil) {
		t.Fatal("nil is not fatal")
	}
	if IsFatal(&ValidationError{Tool: "t", Field: "end", Message: "missing"}) {
		t.Fatal("validation errors are recoverable")
	}
	if IsFatal(&CollaboratorError{Op: "delete_event", Err: errors.New("404")}) {
		t.Fatal("collaborator errors are recoverable")
	}
	if !IsFatal(&RoutingError{Node: "agent", Tool: "nope"}) {
		t.Fatal("routing errors are fatal")
	}
	if !IsFatal(ErrUnknownCheckpoint) {
		t.Fatal("unknown checkpoint is fatal")
	}
}
