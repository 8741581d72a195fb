package ports

import "context"

// Transport performs a single JSON request against the remote API.
// body may be nil for requests without a payload; out may be nil when the
// response body is not needed. Non-2xx responses and network failures are
// reported as *domain.TransportError.
type Transport interface {
	Do(ctx context.Context, method, path string, body, out any) error
}
