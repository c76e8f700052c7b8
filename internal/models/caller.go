package models

import "context"

type callerKey struct{}

// Caller is the authenticated identity behind a request.
type Caller struct {
	TenantID string
	UserID   string
	BranchID string
	Role     string
}

// WithCaller stores the caller on the context.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller, or ErrUnauthorized when none is present.
func CallerFromContext(ctx context.Context) (Caller, error) {
	caller, ok := ctx.Value(callerKey{}).(Caller)
	if !ok || caller.TenantID == "" || caller.UserID == "" {
		return Caller{}, NewError(KindUnauthorized, "caller identity missing")
	}
	return caller, nil
}
