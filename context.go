package goMFA

import "context"

type clientIPContextKey struct{}
type connectionIDContextKey struct{}
type secondFactorContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine records it
// in issued challenges and audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithConnectionID attaches the transport connection identifier to ctx.
func WithConnectionID(ctx context.Context, connectionID string) context.Context {
	return context.WithValue(ctx, connectionIDContextKey{}, connectionID)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func connectionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(connectionIDContextKey{}).(string)
	return id
}

// SecondFactorVerified reports whether ctx belongs to a login that just
// passed the OTP check. [SessionIssuer] implementations use it to record the
// authentication methods in the artifact they mint.
func SecondFactorVerified(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	ok, _ := ctx.Value(secondFactorContextKey{}).(bool)
	return ok
}

func withSecondFactorVerified(ctx context.Context) context.Context {
	return context.WithValue(ctx, secondFactorContextKey{}, true)
}
