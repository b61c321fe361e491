package stage

import "context"

// Caller runs one adapter call made from inside a unit.
type Caller func(ctx context.Context, op string, call func(context.Context) error) error

type callerKey struct{}

// WithCaller attaches c to ctx for Call to find.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// Call runs fn through the Caller attached to ctx, or directly when none is.
// Units of a PerCall definition route each adapter call through here so the
// timeout and retry policy bound every call on its own.
func Call(ctx context.Context, op string, fn func(context.Context) error) error {
	if c, ok := ctx.Value(callerKey{}).(Caller); ok && c != nil {
		return c(ctx, op, fn)
	}
	return fn(ctx)
}
