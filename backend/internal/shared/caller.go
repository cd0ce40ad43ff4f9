package shared

import "context"

// Caller identifies who is invoking a grading operation
type Caller struct {
	UserID string
	Role   string
}

// IsPrivileged reports whether the caller bypasses the maintenance gate
func (c Caller) IsPrivileged() bool {
	return NormalizeRole(c.Role) == RoleAdmin
}

type callerKey struct{}

// WithCaller attaches the caller to ctx
func WithCaller(ctx context.Context, caller Caller) context.Context {
	caller.Role = NormalizeRole(caller.Role)
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller attached to ctx. A context without a
// caller yields an anonymous, unprivileged caller.
func CallerFromContext(ctx context.Context) Caller {
	if caller, ok := ctx.Value(callerKey{}).(Caller); ok {
		return caller
	}
	return Caller{}
}

// RoleOfCaller returns the normalized role of the caller in ctx
func RoleOfCaller(ctx context.Context) string {
	return CallerFromContext(ctx).Role
}
