package watcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/inboxmesh/core"
	"github.com/hupe1980/inboxmesh/logging"
	"github.com/hupe1980/inboxmesh/mail"
	"github.com/hupe1980/inboxmesh/model"
	"github.com/hupe1980/inboxmesh/tool"
)

// ClassifyToolName is the structured-output tool the classifier forces.
const ClassifyToolName = "classify_email"

// LabelDescriptor names a label the classifier may apply and tells the
// model what it means.
type LabelDescriptor struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Classification is the classifier's verdict for one e-mail.
type Classification struct {
	Label   string `json:"classification"`
	Summary string `json:"summary"`
}

// Labeler applies a label to an e-mail.
type Labeler interface {
	AddLabel(ctx context.Context, id, label string) error
}

// ClassifierOptions configure a Classifier.
type ClassifierOptions struct {
	Logger logging.Logger
}

// Classifier labels incoming e-mails with one of a fixed set of labels and
// a short summary, using a model call constrained to a classify_email tool.
type Classifier struct {
	model    model.Model
	labeler  Labeler
	labels   []LabelDescriptor
	registry *tool.Registry
	logger   logging.Logger
}

// NewClassifier builds a classifier over labels. At least one label is
// required.
func NewClassifier(m model.Model, labeler Labeler, labels []LabelDescriptor, optFns ...func(o *ClassifierOptions)) (*Classifier, error) {
	opts := ClassifierOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if len(labels) == 0 {
		return nil, errors.New("watcher: classifier needs at least one label")
	}

	reg, err := tool.NewRegistry([]tool.Tool{newClassifyTool(labels)})
	if err != nil {
		return nil, fmt.Errorf("watcher: %w", err)
	}
	return &Classifier{
		model:    m,
		labeler:  labeler,
		labels:   append([]LabelDescriptor(nil), labels...),
		registry: reg,
		logger:   logging.With(opts.Logger, "component", "classifier"),
	}, nil
}

// Handles reports whether label is one the classifier applies.
func (c *Classifier) Handles(label string) bool {
	for _, l := range c.labels {
		if strings.EqualFold(l.Name, label) {
			return true
		}
	}
	return false
}

// Classify asks the model for a label and summary and applies the label to
// the e-mail in the mailbox.
func (c *Classifier) Classify(ctx context.Context, email mail.Email) (Classification, error) {
	resp, err := c.model.Infer(ctx, model.Request{
		Instructions: "You are an email inbox assistant. Classify and summarize the email by calling " + ClassifyToolName + ".",
		History:      core.NewHistory(core.NewHumanTurn(classifyPrompt(email))),
		Tools:        c.registry.Definitions(),
		RequireTool:  true,
	})
	if err != nil {
		return Classification{}, fmt.Errorf("classify %s: %w", email.ID, err)
	}

	call, ok := resp.Turn.FirstToolCall()
	if !ok || call.Name != ClassifyToolName {
		return Classification{}, fmt.Errorf("classify %s: model did not call %s", email.ID, ClassifyToolName)
	}
	args, err := c.registry.Validate(call.Name, call.Arguments)
	if err != nil {
		return Classification{}, fmt.Errorf("classify %s: %w", email.ID, err)
	}
	verdict := args.(Classification)

	if err := c.labeler.AddLabel(ctx, email.ID, verdict.Label); err != nil {
		return verdict, fmt.Errorf("label %s as %s: %w", email.ID, verdict.Label, err)
	}
	c.logger.Info("watcher.email.classified", "email_id", email.ID, "label", verdict.Label, "summary", verdict.Summary)
	return verdict, nil
}

func classifyPrompt(e mail.Email) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\n", e.Sender)
	if e.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", e.Subject)
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(e.Text))
	return b.String()
}

// classifyTool is a route tool whose schema enumerates the configured
// labels, so the registry rejects any label outside the set.
type classifyTool struct {
	params map[string]any
}

func newClassifyTool(labels []LabelDescriptor) *classifyTool {
	names := make([]any, 0, len(labels))
	lines := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.Name)
		lines = append(lines, l.Name+": "+l.Description)
	}
	return &classifyTool{params: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"classification": map[string]any{
				"type":        "string",
				"enum":        names,
				"description": "Classifies the content of the email.\n\nPossible labels:\n" + strings.Join(lines, "\n"),
			},
			"summary": map[string]any{
				"type":        "string",
				"description": "Short blurb about the contents of the email.",
			},
		},
		"required":             []any{"classification", "summary"},
		"additionalProperties": false,
	}}
}

func (t *classifyTool) Name() string { return ClassifyToolName }

func (t *classifyTool) Description() string {
	return "Record the label and a short summary for the email."
}

func (t *classifyTool) Parameters() map[string]any { return t.params }

func (t *classifyTool) Kind() tool.Kind { return tool.KindRoute }

func (t *classifyTool) Decode(raw json.RawMessage) (any, error) {
	var c Classification
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return nil, err
	}
	return c, nil
}

func (t *classifyTool) Call(*core.ToolContext, any) (any, error) {
	return nil, tool.NewToolError(ClassifyToolName, "tool is handled by the classifier", tool.CodeExecution)
}

var _ tool.Tool = (*classifyTool)(nil)
