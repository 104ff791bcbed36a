package audit

import "context"

type contextKeyDevice struct{}

// WithDevice stores the caller's device display name on the context. The
// transport middleware sets it; Emit picks it up for every event of the
// request.
func WithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, contextKeyDevice{}, device)
}

// DeviceFromContext returns the device display name, or empty when the
// context did not pass through the transport layer.
func DeviceFromContext(ctx context.Context) string {
	device, ok := ctx.Value(contextKeyDevice{}).(string)
	if !ok {
		return ""
	}
	return device
}
