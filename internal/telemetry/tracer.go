package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for pipeline spans.
const (
	AttrRunID     = "chainsnap.run_id"
	AttrAction    = "chainsnap.action"
	AttrStage     = "chainsnap.stage"
	AttrNetwork   = "chainsnap.network"
	AttrRetention = "chainsnap.retention"
	AttrArchive   = "chainsnap.archive"
	AttrSize      = "chainsnap.archive_size"
	AttrTarget    = "chainsnap.target"
	AttrKind      = "chainsnap.target_kind"
	AttrResult    = "chainsnap.result"
)

func RunID(id string) attribute.KeyValue        { return attribute.String(AttrRunID, id) }
func Action(a string) attribute.KeyValue        { return attribute.String(AttrAction, a) }
func Network(n string) attribute.KeyValue       { return attribute.String(AttrNetwork, n) }
func Retention(r string) attribute.KeyValue     { return attribute.String(AttrRetention, r) }
func Archive(name string) attribute.KeyValue    { return attribute.String(AttrArchive, name) }
func ArchiveSize(n int64) attribute.KeyValue    { return attribute.Int64(AttrSize, n) }
func Target(name string) attribute.KeyValue     { return attribute.String(AttrTarget, name) }
func TargetKind(kind string) attribute.KeyValue { return attribute.String(AttrKind, kind) }
func Result(r string) attribute.KeyValue        { return attribute.String(AttrResult, r) }

// StartRunSpan starts the root span of a pipeline run.
func StartRunSpan(ctx context.Context, runID, action string) (context.Context, trace.Span) {
	return StartSpan(ctx, "chainsnap."+action,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(RunID(runID), Action(action)),
	)
}

// StartStageSpan starts a child span for one pipeline stage.
func StartStageSpan(ctx context.Context, stage string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{attribute.String(AttrStage, stage)}, attrs...)
	return StartSpan(ctx, "stage."+stage, trace.WithAttributes(attrs...))
}

// StartTargetSpan starts a span for one remote distribution target.
func StartTargetSpan(ctx context.Context, name, kind string) (context.Context, trace.Span) {
	return StartSpan(ctx, "distribute."+name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(Target(name), TargetKind(kind)),
	)
}
