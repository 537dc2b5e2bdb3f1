package storage

import "context"

type tenantKey struct{}

// WithTenant attaches a tenant id to a context. Every product, bug system,
// and version write must happen under a tenant scope established here.
func WithTenant(ctx context.Context, tenantID int64) context.Context {
	if tenantID <= 0 {
		return ctx
	}
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// TenantFromContext returns the tenant id stored in the context, if any.
func TenantFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	if value, ok := ctx.Value(tenantKey{}).(int64); ok && value > 0 {
		return value, true
	}
	return 0, false
}
