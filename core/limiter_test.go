package core

import (
	"errors"
	"testing"
)

func TestIterationLimiter(t *testing.T) {
	l := NewIterationLimiter(2)
	if err := l.Increment("agent"); err != nil {
		t.Fatal(err)
	}
	if err := l.Increment("agent"); err != nil {
		t.Fatal(err)
	}
	if err := l.Increment("action"); err != nil {
		t.Fatal("counters must be per node")
	}
	if err := l.Increment("agent"); !errors.Is(err, ErrMaxIterations) {
		t.Fatalf("expected ErrMaxIterations, got %v", err)
	}
	if l.Remaining("action") != 1 {
		t.Fatalf("unexpected remaining: %d", l.Remaining("action"))
	}
}

func TestIterationLimiter_Restore(t *testing.T) {
	l := NewIterationLimiter(3)
	_ = l.Increment("agent")
	_ = l.Increment("agent")

	r := RestoreIterationLimiter(3, l.Snapshot())
	if r.Count("agent") != 2 {
		t.Fatalf("restored count = %d", r.Count("agent"))
	}
	_ = r.Increment("agent")
	if err := r.Increment("agent"); !errors.Is(err, ErrMaxIterations) {
		t.Fatalf("expected ErrMaxIterations after restore, got %v", err)
	}
}

func TestIterationLimiter_Unlimited(t *testing.T) {
	l := NewIterationLimiter(0)
	for i := 0; i < 100; i++ {
		if err := l.Increment("n"); err != nil {
			t.Fatal(err)
		}
	}
	if l.Remaining("n") != -1 {
		t.Fatal("unlimited limiter should report -1")
	}
}
