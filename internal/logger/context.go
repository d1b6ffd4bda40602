package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

var runContextKey = contextKey{}

// RunContext holds run-scoped logging fields.
type RunContext struct {
	TraceID   string // OpenTelemetry trace ID
	RunID     string // Pipeline run identifier
	Action    string // publish, distribute, run, restart
	Stage     string // locate, verify, stop, package, publish, distribute, start
	Network   string // mainnet, testnet
	Target    string // Distribution target name
	StartTime time.Time
}

// NewRunContext creates a RunContext for a new pipeline run.
func NewRunContext(runID, action string) *RunContext {
	return &RunContext{
		RunID:     runID,
		Action:    action,
		StartTime: time.Now(),
	}
}

// WithContext returns a new context carrying rc.
func WithContext(ctx context.Context, rc *RunContext) context.Context {
	return context.WithValue(ctx, runContextKey, rc)
}

// FromContext retrieves the RunContext from ctx, or nil if not present.
func FromContext(ctx context.Context) *RunContext {
	if ctx == nil {
		return nil
	}
	rc, _ := ctx.Value(runContextKey).(*RunContext)
	return rc
}

// Clone creates a copy of the RunContext
func (rc *RunContext) Clone() *RunContext {
	if rc == nil {
		return nil
	}
	c := *rc
	return &c
}

// WithStage returns a copy with the stage set
func (rc *RunContext) WithStage(stage string) *RunContext {
	c := rc.Clone()
	if c != nil {
		c.Stage = stage
	}
	return c
}

// WithNetwork returns a copy with the network set
func (rc *RunContext) WithNetwork(network string) *RunContext {
	c := rc.Clone()
	if c != nil {
		c.Network = network
	}
	return c
}

// WithTarget returns a copy with the distribution target set
func (rc *RunContext) WithTarget(target string) *RunContext {
	c := rc.Clone()
	if c != nil {
		c.Target = target
	}
	return c
}

// WithTrace returns a copy with the trace id set
func (rc *RunContext) WithTrace(traceID string) *RunContext {
	c := rc.Clone()
	if c != nil {
		c.TraceID = traceID
	}
	return c
}

// Stage derives a context whose RunContext has the stage set. When ctx
// carries no RunContext a fresh one is attached.
func Stage(ctx context.Context, stage string) context.Context {
	rc := FromContext(ctx)
	if rc == nil {
		rc = &RunContext{StartTime: time.Now()}
	}
	return WithContext(ctx, rc.WithStage(stage))
}

// Elapsed returns the duration since StartTime.
func (rc *RunContext) Elapsed() time.Duration {
	if rc == nil || rc.StartTime.IsZero() {
		return 0
	}
	return time.Since(rc.StartTime)
}
