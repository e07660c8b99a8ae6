package httpapi

import (
	"context"

	"github.com/and161185/fieldsync/internal/model"
)

type ctxKey string

const (
	callerKey    ctxKey = "fs.caller"
	requestIDKey ctxKey = "fs.requestID"
)

// WithCaller stores the authenticated caller in context.
func WithCaller(ctx context.Context, c model.Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFromCtx fetches the authenticated caller from context.
func CallerFromCtx(ctx context.Context) (model.Caller, bool) {
	v := ctx.Value(callerKey)
	if v == nil {
		return model.Caller{}, false
	}
	c, ok := v.(model.Caller)
	return c, ok
}

// WithRequestID stores the request id in context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id or "".
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}
