// Package client issues REST calls on behalf of the query engine. It
// resolves hosts and headers per entity, continues paginated reads, retries
// once after a credential refresh, exposes cancellation, wraps calls in
// policies and falls back to the default transport when an injected one
// fails.
package client

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"restql/internal/auth"
	"restql/internal/cursor"
	"restql/internal/observability"
	"restql/internal/policy"
	"restql/internal/transport"
)

// EntityOptions overrides the host and headers for one entity.
type EntityOptions struct {
	URL     string
	Headers http.Header
}

// Options configures a Client.
type Options struct {
	// APIURL is the default host. A trailing slash is removed.
	APIURL string

	// Headers are sent with every request.
	Headers http.Header

	// Paths holds per-entity overrides keyed by entity name.
	Paths map[string]EntityOptions

	// DataExtractor turns a decoded response body into the usable payload.
	// The identity is used when nil.
	DataExtractor func(any) any

	// Refresher is invoked once when a request is answered with 401.
	Refresher auth.Refresher

	// Policy wraps every call unless Policies has an entry for the entity
	// or exact path.
	Policy   policy.Policy
	Policies map[string]policy.Policy

	// CanCancel creates a cancellation handle per request, see Client.Cancel.
	CanCancel bool

	// Transport is an injected transport. Default is used when nil and as
	// the single fallback when Transport returns an error.
	Transport transport.Transport
	Default   transport.Transport

	// Pagination enables token continuation of GET requests. Store holds
	// the state; a MemoryStore is created when nil.
	Pagination *cursor.Spec
	Store      cursor.Store

	// Debug logs every request and response at debug level.
	Debug   bool
	Logger  *slog.Logger
	Metrics *observability.QueryMetrics
}

// Result is the outcome of a successful call.
type Result struct {
	Status int `json:"status"`
	Data   any `json:"data"`
}

// Client dispatches REST calls. It is safe for concurrent use.
type Client struct {
	opts     Options
	apiURL   string
	fallback transport.Transport
	store    cursor.Store
	logger   *slog.Logger

	mu      sync.Mutex
	headers http.Header
	cancel  context.CancelFunc
}

// New builds a client from opts.
func New(opts Options) *Client {
	c := &Client{
		opts:     opts,
		apiURL:   standardiseEndSlash(opts.APIURL),
		fallback: opts.Default,
		store:    opts.Store,
		logger:   opts.Logger,
		headers:  opts.Headers.Clone(),
	}
	if c.fallback == nil {
		c.fallback = transport.NewHTTPTransport(0)
	}
	if c.store == nil {
		c.store = cursor.NewMemoryStore()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.headers == nil {
		c.headers = http.Header{}
	}
	return c
}

// Store returns the pagination store.
func (c *Client) Store() cursor.Store { return c.store }

// ResetPagination drops all continuation state.
func (c *Client) ResetPagination(ctx context.Context) error {
	return c.store.Reset(ctx)
}

// Cancel aborts the most recently started request when cancellation is
// enabled. It is a no-op otherwise.
func (c *Client) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Client) Get(ctx context.Context, path string, data any) (*Result, error) {
	return c.Dispatch(ctx, path, http.MethodGet, data)
}

func (c *Client) Post(ctx context.Context, path string, data any) (*Result, error) {
	return c.Dispatch(ctx, path, http.MethodPost, data)
}

func (c *Client) Put(ctx context.Context, path string, data any) (*Result, error) {
	return c.Dispatch(ctx, path, http.MethodPut, data)
}

func (c *Client) Delete(ctx context.Context, path string) (*Result, error) {
	return c.Dispatch(ctx, path, http.MethodDelete, nil)
}

// entityOf returns the first segment of a request path.
func entityOf(path string) string {
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexAny(path, "/?"); i >= 0 {
		return path[:i]
	}
	return path
}

func (c *Client) host(entity string) string {
	if o, ok := c.opts.Paths[entity]; ok && o.URL != "" {
		return standardiseEndSlash(o.URL)
	}
	return c.apiURL
}

// requestHeaders merges the current default headers with entity overrides.
func (c *Client) requestHeaders(entity string) http.Header {
	c.mu.Lock()
	h := c.headers.Clone()
	c.mu.Unlock()
	if o, ok := c.opts.Paths[entity]; ok {
		for k, vs := range o.Headers {
			h[k] = append([]string(nil), vs...)
		}
	}
	return h
}

// applyRefreshed stores refreshed credentials as the new defaults.
func (c *Client) applyRefreshed(h http.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, vs := range h {
		c.headers[k] = append([]string(nil), vs...)
	}
}

// policyFor picks the entity policy, then the exact path policy, then the
// global one.
func (c *Client) policyFor(entity, path string) policy.Policy {
	if p, ok := c.opts.Policies[entity]; ok && p != nil {
		return p
	}
	if p, ok := c.opts.Policies[path]; ok && p != nil {
		return p
	}
	return c.opts.Policy
}

func (c *Client) extract(data any) any {
	if c.opts.DataExtractor == nil {
		return data
	}
	return c.opts.DataExtractor(data)
}

func standardiseEndSlash(u string) string {
	if len(u) > 1 && strings.HasSuffix(u, "/") {
		return u[:len(u)-1]
	}
	return u
}
