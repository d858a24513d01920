// Package mailagent is the sub-agent that searches and labels the user's
// Gmail inbox on behalf of the dispatcher.
package mailagent

import (
	"time"

	"github.com/hupe1980/inboxmesh/core"
	"github.com/hupe1980/inboxmesh/mail"
	"github.com/hupe1980/inboxmesh/tool"
)

// Tool names.
const (
	AddLabelToolName      = "add_label_to_email"
	RemoveLabelToolName   = "remove_label_from_email"
	KeywordQueryToolName  = "keyword_query_inbox"
	SemanticQueryToolName = "semantically_query_inbox"
)

// LabelArgs are the arguments of add_label_to_email and
// remove_label_from_email.
type LabelArgs struct {
	EmailID   string `json:"email_id" description:"Gmail id of the e-mail."`
	LabelName string `json:"label_name" description:"Name of the label."`
}

// KeywordQueryArgs are the arguments of keyword_query_inbox.
type KeywordQueryArgs struct {
	Keywords string     `json:"keywords" description:"Words the e-mail must contain, such as people, places or things."`
	Subject  string     `json:"subject,omitempty" description:"Words the subject must contain."`
	Start    *time.Time `json:"start,omitempty" description:"Only e-mails sent on or after this time (RFC 3339)."`
	End      *time.Time `json:"end,omitempty" description:"Only e-mails sent on or before this time (RFC 3339)."`
}

// SemanticQueryArgs are the arguments of semantically_query_inbox.
type SemanticQueryArgs struct {
	Query string     `json:"query" description:"What the e-mails should be about."`
	Start *time.Time `json:"start,omitempty" description:"Only e-mails sent on or after this time (RFC 3339)."`
	End   *time.Time `json:"end,omitempty" description:"Only e-mails sent on or before this time (RFC 3339)."`
}

// Tools returns the mail agent's domain tools over store.
func Tools(store mail.Store) []tool.Tool {
	return []tool.Tool{
		tool.NewFunctionTool(AddLabelToolName,
			"Add a label to an e-mail.",
			func(tc *core.ToolContext, args LabelArgs) (any, error) {
				if err := store.AddLabel(tc.Context(), args.EmailID, args.LabelName); err != nil {
					return tool.Failure("failed to add label", err), nil
				}
				return tool.Success("added label", "email_id", args.EmailID, "label_name", args.LabelName), nil
			}),

		tool.NewFunctionTool(RemoveLabelToolName,
			"Remove a label from an e-mail.",
			func(tc *core.ToolContext, args LabelArgs) (any, error) {
				if err := store.RemoveLabel(tc.Context(), args.EmailID, args.LabelName); err != nil {
					return tool.Failure("failed to remove label", err), nil
				}
				return tool.Success("removed label", "email_id", args.EmailID, "label_name", args.LabelName), nil
			}),

		tool.NewFunctionTool(KeywordQueryToolName,
			"Search the inbox by keywords. Use it when specific words such as people, places or things must appear in the e-mail.",
			func(tc *core.ToolContext, args KeywordQueryArgs) (any, error) {
				emails, err := store.KeywordSearch(tc.Context(), args.Keywords, args.Subject, args.Start, args.End)
				if err != nil {
					return tool.Failure("failed to search inbox", err), nil
				}
				return tool.Success("found e-mails", "emails", orEmpty(emails)), nil
			}),

		tool.NewFunctionTool(SemanticQueryToolName,
			"Search the inbox by meaning. Use it when the general meaning of the query matters more than its exact words.",
			func(tc *core.ToolContext, args SemanticQueryArgs) (any, error) {
				emails, err := store.SemanticSearch(tc.Context(), args.Query, mail.DefaultSemanticK, args.Start, args.End)
				if err != nil {
					return tool.Failure("failed to search inbox", err), nil
				}
				return tool.Success("found e-mails", "emails", dedupe(emails)), nil
			}),
	}
}

func dedupe(emails []mail.Email) []mail.Email {
	seen := make(map[string]bool, len(emails))
	out := make([]mail.Email, 0, len(emails))
	for _, e := range emails {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
	}
	return out
}

func orEmpty(emails []mail.Email) []mail.Email {
	if emails == nil {
		return []mail.Email{}
	}
	return emails
}
