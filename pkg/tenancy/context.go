package tenancy

import (
	"context"

	"github.com/caregrid/caregrid/pkg/contextkeys"
)

// withFrame returns a context carrying the given frame as the top of the
// tenant stack. The stack lives entirely on the context; there is no
// process-global state.
func withFrame(ctx context.Context, frame *TenantContext) context.Context {
	return context.WithValue(ctx, contextkeys.TenantStackKey, frame)
}

// Current returns the innermost tenant frame on the context, if any
func Current(ctx context.Context) (*TenantContext, bool) {
	frame, ok := ctx.Value(contextkeys.TenantStackKey).(*TenantContext)
	if !ok || frame == nil {
		return nil, false
	}
	return frame, true
}

// RequireCurrent returns the innermost tenant frame or ErrNoTenantContext
func RequireCurrent(ctx context.Context) (*TenantContext, error) {
	frame, ok := Current(ctx)
	if !ok {
		return nil, ErrNoTenantContext
	}
	return frame, nil
}

// CurrentTenantID returns the active tenant ID, if a frame is present
func CurrentTenantID(ctx context.Context) (string, bool) {
	frame, ok := Current(ctx)
	if !ok {
		return "", false
	}
	return frame.TenantID, true
}
