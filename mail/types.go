// Package mail is the mail store the mail agent and the watcher work
// against: keyword and semantic inbox search, label changes, e-mail text
// cleaning and a small embedding index.
package mail

import (
	"context"
	"time"
)

// Email is a cleaned message as shown to the model.
type Email struct {
	ID         string    `json:"email_id"`
	ThreadID   string    `json:"thread_id,omitempty"`
	Sender     string    `json:"sender"`
	Recipients []string  `json:"recipients,omitempty"`
	Date       time.Time `json:"sent_on"`
	Subject    string    `json:"subject,omitempty"`
	Labels     []string  `json:"label_names,omitempty"`
	Text       string    `json:"text"`
}

// DefaultSemanticK is how many matches a semantic inbox query returns.
const DefaultSemanticK = 5

// Store is the mail collaborator.
type Store interface {
	KeywordSearch(ctx context.Context, keywords, subject string, start, end *time.Time) ([]Email, error)
	SemanticSearch(ctx context.Context, query string, k int, start, end *time.Time) ([]Email, error)
	AddLabel(ctx context.Context, id, label string) error
	RemoveLabel(ctx context.Context, id, label string) error
}

// APIObserver receives one record per Gmail API operation.
type APIObserver interface {
	RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration)
}

// Dedupe drops repeated ids, keeping first occurrences in order.
func Dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
