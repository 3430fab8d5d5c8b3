package core

import "context"

type contextKey string

const ctxKeyOwner contextKey = "owner_id"

// ContextWithOwner attaches the authenticated owner to ctx.
func ContextWithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ctxKeyOwner, ownerID)
}

// OwnerFromContext returns the owner set by ContextWithOwner, if any.
func OwnerFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyOwner).(string)
	return v, ok && v != ""
}
