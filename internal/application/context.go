package application

import (
	"context"
	"strings"
)

type (
	grantTokenKey    struct{}
	clientAddressKey struct{}
)

// WithGrantToken attaches the caller's grant token to ctx. Group
// conversations are only reachable with a live grant for their window;
// public conversations ignore it.
func WithGrantToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, grantTokenKey{}, strings.TrimSpace(token))
}

// GrantTokenFromContext returns the token attached by WithGrantToken.
func GrantTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(grantTokenKey{}).(string)
	return token
}

// WithClientAddress records the network address a request came from.
// GateService throttles credential attempts per slug and address, so one
// client exhausting its attempts does not lock others out of the window.
func WithClientAddress(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, clientAddressKey{}, strings.TrimSpace(addr))
}

// ClientAddressFromContext returns the address attached by WithClientAddress.
func ClientAddressFromContext(ctx context.Context) string {
	addr, _ := ctx.Value(clientAddressKey{}).(string)
	return addr
}

// attemptKey scopes attempt throttling. Callers without an address share the
// slug's bucket.
func attemptKey(ctx context.Context, slug string) string {
	if addr := ClientAddressFromContext(ctx); addr != "" {
		return slug + "|" + addr
	}
	return slug
}
