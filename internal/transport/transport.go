// Package transport defines how the orchestrator talks to REST endpoints and
// provides the default JSON-over-HTTP implementation.
package transport

import (
	"context"
	"fmt"
	"net/http"
)

// Request is one outgoing call. Body is JSON-encoded for methods that carry one.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   any
}

// Clone returns a copy with an independent header map.
func (r *Request) Clone() *Request {
	c := *r
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = http.Header{}
	}
	return &c
}

// Response is a decoded reply. Transports report every HTTP status through
// Status; only failures to obtain a response are returned as errors.
type Response struct {
	Status int
	Data   any
	Header http.Header
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Transport performs a single call. attempt is 0 for the first try and 1 for
// the retry after a credential refresh. entityPath is the resolved path
// relative to the host.
type Transport interface {
	RoundTrip(ctx context.Context, req *Request, attempt int, entityPath string) (*Response, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, req *Request, attempt int, entityPath string) (*Response, error)

func (f Func) RoundTrip(ctx context.Context, req *Request, attempt int, entityPath string) (*Response, error) {
	return f(ctx, req, attempt, entityPath)
}

// Cancelable is implemented by transports that can report whether aborting
// the request context actually interrupts them.
type Cancelable interface {
	CanCancel() bool
}

// SupportsCancel reports whether t honors context cancellation. Transports
// that do not implement Cancelable are assumed not to.
func SupportsCancel(t Transport) bool {
	c, ok := t.(Cancelable)
	return ok && c.CanCancel()
}

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Status int
	URL    string
	Body   any
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s failed with status %d", e.URL, e.Status)
}
