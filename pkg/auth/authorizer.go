// Package auth holds identity primitives shared by the API and the CLI:
// password hashing, signed session tokens, roles and the identity context.
package auth

import "context"

type contextKey string

const contextKeyUser contextKey = "user"

// WithUser adds the authenticated user id to the context.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeyUser, userID)
}

// GetUser extracts the authenticated user id from the context.
func GetUser(ctx context.Context) string {
	if user, ok := ctx.Value(contextKeyUser).(string); ok {
		return user
	}
	return ""
}
