package log

import (
	"context"
	"log/slog"
)

type requestIDKey struct{}

// WithRequestID returns a context carrying the request id used to correlate
// the legs of one handshake in the logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id stored in ctx, or "".
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

func buildCtxArgs(ctx context.Context, component string, fields map[string]any) []any {
	args := buildArgs(component, fields)
	if id := RequestID(ctx); id != "" {
		args = append(args, "request_id", id)
	}
	return args
}

func LogInfoCtx(ctx context.Context, component, message string, fields map[string]any) {
	slog.Default().InfoContext(ctx, message, buildCtxArgs(ctx, component, fields)...)
}

func LogDebugCtx(ctx context.Context, component, message string, fields map[string]any) {
	slog.Default().DebugContext(ctx, message, buildCtxArgs(ctx, component, fields)...)
}

func LogWarnCtx(ctx context.Context, component, message string, fields map[string]any) {
	slog.Default().WarnContext(ctx, message, buildCtxArgs(ctx, component, fields)...)
}

func LogErrorCtx(ctx context.Context, component, message string, fields map[string]any) {
	slog.Default().ErrorContext(ctx, message, buildCtxArgs(ctx, component, fields)...)
}

func LogTraceCtx(ctx context.Context, component, message string, fields map[string]any) {
	if currentLevel.Load().(slog.Level) <= LevelTrace {
		slog.Default().Log(ctx, LevelTrace, message, buildCtxArgs(ctx, component, fields)...)
	}
}
