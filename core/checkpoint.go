package core

import "time"

// Checkpoint captures a suspended graph invocation: the node that
// interrupted, the history at the moment of suspension, the per-node entry
// counts and the interrupt payload (for example the question text).
//
// A checkpoint is resumed at most once.
type Checkpoint struct {
	ID         string         `json:"id"`
	ThreadID   string         `json:"thread_id"`
	Graph      string         `json:"graph"`
	Node       string         `json:"node"`
	History    History        `json:"history"`
	Iterations map[string]int `json:"iterations,omitempty"`
	Payload    string         `json:"payload"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Clone returns a deep copy of the checkpoint.
func (c Checkpoint) Clone() Checkpoint {
	out := c
	out.History = c.History.Clone()
	if c.Iterations != nil {
		out.Iterations = make(map[string]int, len(c.Iterations))
		for k, v := range c.Iterations {
			out.Iterations[k] = v
		}
	}
	return out
}

// CheckpointStore keeps suspended invocations keyed by checkpoint id, with
// at most one pending checkpoint per thread.
type CheckpointStore interface {
	// Put stores cp, replacing any checkpoint pending for the same thread.
	Put(cp Checkpoint) error
	// Get returns the checkpoint without consuming it. Unknown ids fail with
	// ErrUnknownCheckpoint.
	Get(id string) (Checkpoint, error)
	// Take removes and returns the checkpoint. Unknown or already consumed
	// ids fail with ErrUnknownCheckpoint.
	Take(id string) (Checkpoint, error)
	// Pending returns the checkpoint waiting on thread, if any.
	Pending(threadID string) (Checkpoint, bool)
	// Clear drops whatever is pending for thread.
	Clear(threadID string)
}
