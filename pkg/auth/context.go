package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/rhuss/vaultgate/pkg/backend"
	"github.com/rhuss/vaultgate/pkg/observability"
)

// ErrNoRequestContext is returned when no RequestContext is bound.
var ErrNoRequestContext = errors.New("no request context bound: lookup outside of a gateway request")

// RequestContext is the per-request execution state shared with downstream
// handlers. It is created once per request, owned by that request only, and
// never mutated after Bind.
type RequestContext struct {
	// ID is unique per request and is used for logging.
	ID string

	// Backend is the client built for this request alone.
	Backend backend.Handle

	VaultID   string
	Anonymous bool

	releaseOnce sync.Once
	releaseErr  error
}

// newRequestContext counts the context as active until Release.
func newRequestContext(id string, h backend.Handle, vaultID string, anonymous bool) *RequestContext {
	observability.RequestContextsActive.Inc()
	return &RequestContext{ID: id, Backend: h, VaultID: vaultID, Anonymous: anonymous}
}

// Release closes the backend handle. Only the first call has an effect.
func (rc *RequestContext) Release() error {
	rc.releaseOnce.Do(func() {
		observability.RequestContextsActive.Dec()
		if rc.Backend != nil {
			rc.releaseErr = rc.Backend.Close()
		}
	})
	return rc.releaseErr
}

// requestContextKey is a private type for the request context key.
type requestContextKey struct{}

// Bind returns a child of ctx carrying rc. Every context derived from the
// result, including those handed to goroutines, sees rc.
func Bind(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext returns the RequestContext bound to ctx.
func FromContext(ctx context.Context) (*RequestContext, error) {
	if rc, ok := ctx.Value(requestContextKey{}).(*RequestContext); ok && rc != nil {
		return rc, nil
	}
	return nil, ErrNoRequestContext
}

// MustFromContext is like FromContext but panics when nothing is bound.
// A missing binding is a wiring bug, never a runtime condition.
func MustFromContext(ctx context.Context) *RequestContext {
	rc, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return rc
}
