package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// SessionIDOr returns the ID of the context session, or fallback when the
// request carries none.
func SessionIDOr(ctx context.Context, fallback string) string {
	if sess := SessionFromContext(ctx); sess != nil && sess.ID != "" {
		return sess.ID
	}
	return fallback
}
