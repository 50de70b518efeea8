// Package model defines the CRM records exchanged with the remote API, the
// derived dashboard statistics, and the error taxonomy shared by all
// packages.
package model

import "context"

// RequestContext carries the session and tracing identifiers for the
// lifetime of a browser request. It is immutable after construction and
// safe for concurrent reads.
type RequestContext struct {
	SessionID     string
	CorrelationID string
	TraceID       string
	Locale        string
}

type contextKey struct{}

// WithRequestContext attaches a RequestContext to the given context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom extracts the RequestContext from the context, or returns nil
// if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}
