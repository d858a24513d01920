package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrTool      = "tool"
	attrModel     = "model"
	attrGraph     = "graph"
	attrNode      = "node"
	attrOutcome   = "outcome"
)

// Metrics records engine and Google API metrics. A zero Metrics is a no-op
// recorder.
type Metrics struct {
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	inferenceCallsTotal metric.Int64Counter
	inferenceTokens     metric.Int64Counter
	inferenceDuration   metric.Float64Histogram

	graphRunsTotal        metric.Int64Counter
	graphRunDuration      metric.Float64Histogram
	graphSuspensionsTotal metric.Int64Counter

	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram
}

// NewMetrics creates a new Metrics instance with all instruments registered
// on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.toolInvocationsTotal, err = meter.Int64Counter(
		"tool_invocations_total",
		metric.WithDescription("Total number of tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"tool_duration_seconds",
		metric.WithDescription("Tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool_duration_seconds histogram: %w", err)
	}

	m.inferenceCallsTotal, err = meter.Int64Counter(
		"inference_calls_total",
		metric.WithDescription("Total number of model inference calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create inference_calls_total counter: %w", err)
	}

	m.inferenceTokens, err = meter.Int64Counter(
		"inference_tokens_total",
		metric.WithDescription("Total number of tokens used by model inference"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create inference_tokens_total counter: %w", err)
	}

	m.inferenceDuration, err = meter.Float64Histogram(
		"inference_duration_seconds",
		metric.WithDescription("Model inference duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create inference_duration_seconds histogram: %w", err)
	}

	m.graphRunsTotal, err = meter.Int64Counter(
		"graph_runs_total",
		metric.WithDescription("Total number of graph runs and resumes by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph_runs_total counter: %w", err)
	}

	m.graphRunDuration, err = meter.Float64Histogram(
		"graph_run_duration_seconds",
		metric.WithDescription("Graph run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph_run_duration_seconds histogram: %w", err)
	}

	m.graphSuspensionsTotal, err = meter.Int64Counter(
		"graph_suspensions_total",
		metric.WithDescription("Total number of graph suspensions"),
		metric.WithUnit("{suspension}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create graph_suspensions_total counter: %w", err)
	}

	m.googleAPIOperationsTotal, err = meter.Int64Counter(
		"google_api_operations_total",
		metric.WithDescription("Total number of Google API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operations_total counter: %w", err)
	}

	m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordToolInvocation records one executed tool call.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m.toolInvocationsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	)
	m.toolInvocationsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordInference records one model call and its token usage.
func (m *Metrics) RecordInference(ctx context.Context, model string, tokens int, duration time.Duration, err error) {
	if m.inferenceCallsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrModel, model),
		attribute.String(attrStatus, statusOf(err)),
	)
	m.inferenceCallsTotal.Add(ctx, 1, attrs)
	m.inferenceDuration.Record(ctx, duration.Seconds(), attrs)
	if tokens > 0 {
		m.inferenceTokens.Add(ctx, int64(tokens), metric.WithAttributes(attribute.String(attrModel, model)))
	}
}

// RecordGraphRun records a finished, suspended or failed graph invocation.
func (m *Metrics) RecordGraphRun(ctx context.Context, graph, outcome string, duration time.Duration) {
	if m.graphRunsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrGraph, graph),
		attribute.String(attrOutcome, outcome),
	)
	m.graphRunsTotal.Add(ctx, 1, attrs)
	m.graphRunDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordSuspension records a node suspending its graph.
func (m *Metrics) RecordSuspension(ctx context.Context, graph, node string) {
	if m.graphSuspensionsTotal == nil {
		return
	}
	m.graphSuspensionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrGraph, graph),
		attribute.String(attrNode, node),
	))
}

// RecordGoogleAPIOperation records a Google API operation with service,
// operation, status and duration.
//
// Parameters:
//   - service: Google service name (gmail, calendar, tasks)
//   - operation: API method, e.g. "events.list"
//   - status: "success" or "error"
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m.googleAPIOperationsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.googleAPIOperationsTotal.Add(ctx, 1, attrs)
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

func statusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
