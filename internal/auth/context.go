// Package auth carries the authenticated caller through a request context.
package auth

import "context"

type contextKey struct{}

// Identity is the caller of a request. A subscriber has UserID set; a
// partner scanner has PartnerID set.
type Identity struct {
	UserID    string
	PartnerID int64
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

func WithUser(ctx context.Context, userID string) context.Context {
	return WithIdentity(ctx, Identity{UserID: userID})
}

func WithPartner(ctx context.Context, partnerID int64) context.Context {
	return WithIdentity(ctx, Identity{PartnerID: partnerID})
}

// UserID returns the subscriber's ID, or "" for anonymous and partner requests.
func UserID(ctx context.Context) string {
	id, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return id.UserID
}

func PartnerID(ctx context.Context) int64 {
	id, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return id.PartnerID
}
