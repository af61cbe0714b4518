package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds session-scoped logging context for a single client run.
type LogContext struct {
	TraceID      string    // correlation id spanning a full reload cycle
	SpanID       string    // correlation id for a single restart/reload request
	SessionID    string    // client session identifier (internal/session.ClientState.ID)
	ArtifactPath string    // resolved library path for the active session
	ChildPID     int       // pid of the supervised client process, 0 if none
	Generation   int       // number of successful swaps this session has performed
	StartTime    time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for the given session id.
func NewLogContext(sessionID string) *LogContext {
	return &LogContext{
		SessionID: sessionID,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:      lc.TraceID,
		SpanID:       lc.SpanID,
		SessionID:    lc.SessionID,
		ArtifactPath: lc.ArtifactPath,
		ChildPID:     lc.ChildPID,
		Generation:   lc.Generation,
		StartTime:    lc.StartTime,
	}
}

// WithArtifact returns a copy with the artifact path set
func (lc *LogContext) WithArtifact(path string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ArtifactPath = path
	}
	return clone
}

// WithChild returns a copy with the supervised child pid set
func (lc *LogContext) WithChild(pid int) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ChildPID = pid
	}
	return clone
}

// WithGeneration returns a copy with the generation counter set
func (lc *LogContext) WithGeneration(generation int) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Generation = generation
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
