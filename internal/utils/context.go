package utils

import "context"

type contextKey string

const identityKey contextKey = "identity"

// Fine is one outstanding charge as reported by the library system.
type Fine struct {
	Type         string `json:"fine"`
	Organization string `json:"organization,omitempty"`
	Title        string `json:"title,omitempty"`
	Balance      int64  `json:"balance"`
}

// Identity is the authenticated patron as carried by the access token.
// Fines and ReturnURL are signed by the token issuer; they are never taken
// from the patron's own request.
type Identity struct {
	UserID      int64
	CatUsername string
	Name        string
	Email       string
	Language    string
	Fines       []Fine
	ReturnURL   string
}

// SetIdentity stores the caller identity (called by middleware)
func SetIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext retrieves the caller identity safely
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
