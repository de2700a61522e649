package auth

import "context"

type ctxKey string

const ctxKeySub ctxKey = "sub"

// WithSubject stamps the authenticated user ID onto the request context.
func WithSubject(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, ctxKeySub, sub)
}

// SubjectFromContext returns the authenticated user ID, or "" for
// unauthenticated requests.
func SubjectFromContext(ctx context.Context) string {
	sub, _ := ctx.Value(ctxKeySub).(string)
	return sub
}
