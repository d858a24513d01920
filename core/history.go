package core

import "fmt"

// History is the ordered conversation owned by a single graph invocation.
// It is append-only; insertion order is the only ordering guarantee.
type History []Turn

// NewHistory builds a history from the given turns.
func NewHistory(turns ...Turn) History {
	h := make(History, 0, len(turns))
	return append(h, turns...)
}

// Append adds turns at the end of the history.
func (h *History) Append(turns ...Turn) { *h = append(*h, turns...) }

// Len returns the number of turns.
func (h History) Len() int { return len(h) }

// Last returns the most recent turn.
func (h History) Last() (Turn, bool) {
	if len(h) == 0 {
		return Turn{}, false
	}
	return h[len(h)-1], true
}

// LastAssistant returns the most recent assistant turn.
func (h History) LastAssistant() (Turn, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Role == RoleAssistant {
			return h[i], true
		}
	}
	return Turn{}, false
}

// Clone returns a deep copy safe for independent mutation.
func (h History) Clone() History {
	if h == nil {
		return nil
	}
	c := make(History, len(h))
	for i, t := range h {
		c[i] = t.Clone()
	}
	return c
}

// Validate rejects histories a graph cannot start from: a run must begin
// with at least one System or Human turn.
func (h History) Validate() error {
	if len(h) == 0 {
		return ErrEmptyHistory
	}
	switch h[0].Role {
	case RoleSystem, RoleHuman:
		return nil
	default:
		return fmt.Errorf("%w: first turn has role %q", ErrEmptyHistory, h[0].Role)
	}
}

// ResultFor returns the tool result answering the given call id, if any.
func (h History) ResultFor(callID string) (ToolResult, bool) {
	for _, t := range h {
		if t.Role == RoleTool && t.Result != nil && t.Result.CallID == callID {
			return *t.Result, true
		}
	}
	return ToolResult{}, false
}
