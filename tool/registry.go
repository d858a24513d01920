package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/hupe1980/inboxmesh/core"
	"github.com/hupe1980/inboxmesh/model"
)

// ErrUnknownTool is returned when a call names a tool the registry lacks.
var ErrUnknownTool = errors.New("unknown tool")

// Observer receives one record per executed tool call.
type Observer interface {
	RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration)
}

// Registry maps tool names to specs and compiled schemas. It is immutable
// after construction and safe to share between sessions.
type Registry struct {
	tools    map[string]Tool
	order    []string
	schemas  map[string]*jsonschema.Schema
	observer Observer
	printer  *message.Printer
}

// RegistryOptions configure a Registry.
type RegistryOptions struct {
	Observer Observer
}

// NewRegistry compiles the schema of every tool. Duplicate names and schemas
// that fail to compile are construction errors.
func NewRegistry(tools []Tool, optFns ...func(o *RegistryOptions)) (*Registry, error) {
	opts := RegistryOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	r := &Registry{
		tools:    make(map[string]Tool, len(tools)),
		schemas:  make(map[string]*jsonschema.Schema, len(tools)),
		observer: opts.Observer,
		printer:  message.NewPrinter(language.English),
	}

	for _, t := range tools {
		name := t.Name()
		if _, dup := r.tools[name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", name)
		}
		schema, err := compileSchema(name, t.Parameters())
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", name, err)
		}
		r.tools[name] = t
		r.schemas[name] = schema
		r.order = append(r.order, name)
	}

	return r, nil
}

func compileSchema(name string, params map[string]any) (*jsonschema.Schema, error) {
	// Round-trip through JSON so the compiler sees plain decoded values.
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	url := name + ".json"
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string { return append([]string(nil), r.order...) }

// NamesOf returns the sorted names of tools of the given kind.
func (r *Registry) NamesOf(k Kind) []string {
	var out []string
	for _, name := range r.order {
		if r.tools[name].Kind() == k {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Definitions exposes the registry to a model request.
func (r *Registry) Definitions() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Validate checks raw arguments against the tool's schema and decodes them
// into the tool's typed argument value. Schema violations are reported as
// *core.ValidationError naming the offending field.
func (r *Registry) Validate(name string, raw json.RawMessage) (any, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, &core.ValidationError{Tool: name, Message: "arguments are not valid JSON: " + err.Error()}
	}

	if err := r.schemas[name].Validate(inst); err != nil {
		return nil, r.validationError(name, err)
	}

	args, err := t.Decode(raw)
	if err != nil {
		return nil, &core.ValidationError{Tool: name, Message: err.Error()}
	}
	return args, nil
}

func (r *Registry) validationError(name string, err error) *core.ValidationError {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return &core.ValidationError{Tool: name, Message: err.Error()}
	}

	// The first leaf cause is the most specific violation.
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}

	field := strings.Join(leaf.InstanceLocation, ".")
	msg := leaf.ErrorKind.LocalizedString(r.printer)

	switch k := leaf.ErrorKind.(type) {
	case *kind.Required:
		if len(k.Missing) > 0 {
			field = joinField(field, k.Missing[0])
			msg = "required field is missing"
		}
	case *kind.AdditionalProperties:
		if len(k.Properties) > 0 {
			field = joinField(field, k.Properties[0])
			msg = "unknown field"
		}
	}

	return &core.ValidationError{Tool: name, Field: field, Message: msg}
}

func joinField(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + "." + child
}

// Execute validates and runs an action tool. The returned content is what
// the model sees in the ToolResult turn. err is nil on success, a
// *core.ValidationError for bad arguments (content carries the message so
// the model can correct itself), or a *core.CollaboratorError when the tool
// ran and failed (content carries the failure envelope). Panics inside the
// tool are recovered as collaborator failures.
func (r *Registry) Execute(toolCtx *core.ToolContext, call core.ToolCallRequest) (string, error) {
	t, ok := r.tools[call.Name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}
	if t.Kind() != KindAction {
		return "", fmt.Errorf("tool %s is routed, not executed", call.Name)
	}

	args, err := r.Validate(call.Name, call.Arguments)
	if err != nil {
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			r.record(toolCtx, call.Name, "invalid", 0)
			return verr.Error(), verr
		}
		return "", err
	}

	start := time.Now()
	result, err := safeCall(t, toolCtx, args)
	dur := time.Since(start)

	if err != nil {
		r.record(toolCtx, call.Name, "error", dur)
		cerr := &core.CollaboratorError{Op: call.Name, Err: err}
		return Failure("failed to run "+call.Name, err).String(), cerr
	}

	if env, ok := result.(Envelope); ok && !env.OK() {
		r.record(toolCtx, call.Name, "failure", dur)
		msg, _ := env["error"].(string)
		return env.String(), &core.CollaboratorError{Op: call.Name, Err: errors.New(msg)}
	}

	r.record(toolCtx, call.Name, "success", dur)
	return Render(result), nil
}

func safeCall(t Tool, toolCtx *core.ToolContext, args any) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &ToolError{
				Tool:    t.Name(),
				Message: fmt.Sprintf("panic: %v", rec),
				Code:    CodePanic,
				Details: string(debug.Stack()),
			}
		}
	}()
	return t.Call(toolCtx, args)
}

func (r *Registry) record(toolCtx *core.ToolContext, name, status string, dur time.Duration) {
	if r.observer == nil {
		return
	}
	r.observer.RecordToolInvocation(toolCtx.Context(), name, status, dur)
}
