package services

import "context"

type suspendKey struct{}

// WithSuspendedSync marks the context so outbound sync handlers become
// no-ops. The webhook handler uses this to stop an inbound unsubscribe
// from triggering a redundant round-trip back to Marketo; because the
// marker lives on the context it is released on every exit path,
// including errors, with nothing to reset.
func WithSuspendedSync(ctx context.Context) context.Context {
	return context.WithValue(ctx, suspendKey{}, true)
}

// SyncSuspended reports whether outbound syncs are suspended on this
// context.
func SyncSuspended(ctx context.Context) bool {
	suspended, _ := ctx.Value(suspendKey{}).(bool)
	return suspended
}
