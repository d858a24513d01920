package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/inboxmesh/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures the normalized model input produced by graph nodes.
type Request struct {
	Instructions string           `json:"instructions"`
	History      core.History     `json:"history"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	// RequireTool asks the provider to force a tool call when tools are present.
	RequireTool bool `json:"require_tool,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the result of one inference step.
type Response struct {
	Turn         core.Turn   `json:"turn"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "scripted", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by graph nodes to drive inference.
type Model interface {
	Infer(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// Step produces the assistant turn for one scripted inference call.
type Step func(req Request) (core.Turn, error)

// ScriptedModel is a deterministic in-memory Model for tests and demos. It
// replays its steps in order and records every request it receives.
type ScriptedModel struct {
	info  Info
	steps []Step

	mu       sync.Mutex
	next     int
	requests []Request
}

// NewScriptedModel constructs a ScriptedModel replaying steps in order.
func NewScriptedModel(name string, steps ...Step) *ScriptedModel {
	return &ScriptedModel{
		info:  Info{Name: name, Provider: "scripted", SupportsTools: true},
		steps: steps,
	}
}

// Reply returns a step emitting a fixed turn.
func Reply(turn core.Turn) Step {
	return func(Request) (core.Turn, error) { return turn.Clone(), nil }
}

// Infer implements Model.
func (m *ScriptedModel) Infer(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.requests = append(m.requests, Request{
		Instructions: req.Instructions,
		History:      req.History.Clone(),
		Tools:        req.Tools,
		RequireTool:  req.RequireTool,
	})
	if m.next >= len(m.steps) {
		m.mu.Unlock()
		return nil, fmt.Errorf("scripted model %s: script exhausted after %d calls", m.info.Name, len(m.steps))
	}
	step := m.steps[m.next]
	m.next++
	m.mu.Unlock()

	turn, err := step(req)
	if err != nil {
		return nil, err
	}

	finish := "stop"
	if turn.HasToolCall() {
		finish = "tool_calls"
	}
	return &Response{Turn: turn, FinishReason: finish}, nil
}

// Requests returns copies of all requests received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns how many inference calls were made.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.next
}

// Reset rewinds the script and forgets recorded requests.
func (m *ScriptedModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.next = 0
	m.requests = nil
}

// Info implements Model.
func (m *ScriptedModel) Info() Info { return m.info }
