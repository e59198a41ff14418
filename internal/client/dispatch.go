package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"restql/internal/policy"
	"restql/internal/transport"
)

// Dispatch sends one request for path, relative to the entity host. GET data
// becomes the query string; other methods send it as the JSON body. The
// entity is the first path segment.
func (c *Client) Dispatch(ctx context.Context, path, method string, data any) (*Result, error) {
	return c.DispatchFor(ctx, entityOf(path), path, method, data)
}

// DispatchFor is Dispatch for a path whose entity is not its first segment,
// such as a nested route. Host, header and policy overrides follow entity.
func (c *Client) DispatchFor(ctx context.Context, entity, path, method string, data any) (*Result, error) {
	path = strings.TrimPrefix(path, "/")
	ctx, span := startDispatchSpan(ctx, method, entity)
	defer span.End()

	result, err := c.dispatch(ctx, entity, path, method, data)
	finishSpan(span, err)
	return result, err
}

func (c *Client) dispatch(ctx context.Context, entity, path, method string, data any) (*Result, error) {
	base := c.host(entity) + "/" + path
	req := &transport.Request{Method: method, Header: c.requestHeaders(entity)}

	var rawQuery string
	if method == http.MethodGet {
		q, err := encodeQuery(data)
		if err != nil {
			return nil, err
		}
		rawQuery = q
	} else {
		req.Body = data
	}

	var page *pageState
	if method == http.MethodGet && c.opts.Pagination.Enabled() {
		p, err := c.loadPage(ctx, base, rawQuery)
		if err != nil {
			return nil, err
		}
		page = p
		rawQuery = p.query
	}
	req.URL = base
	if rawQuery != "" {
		req.URL += "?" + rawQuery
	}

	ctx, release := c.cancellable(ctx)
	defer release()

	v, err := policy.Run(ctx, c.policyFor(entity, path), func() (interface{}, error) {
		return c.send(ctx, req, entity, path)
	})
	if err != nil {
		return nil, err
	}
	resp, ok := v.(*transport.Response)
	if !ok || resp == nil {
		return nil, fmt.Errorf("policy for %s returned %T, want *transport.Response", entity, v)
	}

	extracted := c.extract(resp.Data)
	if page != nil {
		extracted, err = c.advance(ctx, page, entity, resp, extracted)
		if err != nil {
			return nil, err
		}
	}
	return &Result{Status: resp.Status, Data: extracted}, nil
}

// cancellable installs a fresh cancellation handle when enabled. A transport
// that cannot observe cancellation gets a no-op handle.
func (c *Client) cancellable(ctx context.Context) (context.Context, context.CancelFunc) {
	if !c.opts.CanCancel {
		return ctx, func() {}
	}
	if !transport.SupportsCancel(c.active()) {
		c.mu.Lock()
		c.cancel = func() {}
		c.mu.Unlock()
		return ctx, func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	return ctx, cancel
}

func (c *Client) active() transport.Transport {
	if c.opts.Transport != nil {
		return c.opts.Transport
	}
	return c.fallback
}

// send runs the refresh state machine: a 401 on the first attempt with a
// refresher configured refreshes credentials and retries exactly once.
func (c *Client) send(ctx context.Context, req *transport.Request, entity, path string) (*transport.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := c.roundTrip(ctx, req, attempt, entity, path)
		if err != nil {
			return nil, err
		}
		if resp.Status == http.StatusUnauthorized && attempt == 0 && c.opts.Refresher != nil {
			c.opts.Metrics.RecordRefresh(ctx, entity)
			headers, err := c.opts.Refresher.Refresh(ctx, req.URL)
			if err != nil {
				return nil, fmt.Errorf("refresh credentials for %s: %w", req.URL, err)
			}
			c.applyRefreshed(headers)
			req = req.Clone()
			for k, vs := range headers {
				req.Header[k] = append([]string(nil), vs...)
			}
			continue
		}
		if !resp.OK() {
			return nil, &transport.StatusError{Status: resp.Status, URL: req.URL, Body: resp.Data}
		}
		return resp, nil
	}
}

// roundTrip calls the active transport. When an injected transport fails,
// the default transport is tried once; if that fails too the injected
// transport's error is returned.
func (c *Client) roundTrip(ctx context.Context, req *transport.Request, attempt int, entity, path string) (*transport.Response, error) {
	resp, err := c.timed(ctx, c.active(), req, attempt, entity, path)
	if err == nil || c.opts.Transport == nil || ctx.Err() != nil {
		return resp, err
	}

	c.logger.Warn("transport failed, retrying on default transport",
		slog.String("entity", entity),
		slog.String("url", req.URL),
		slog.String("error", err.Error()),
	)
	c.opts.Metrics.RecordFallback(ctx, entity)
	resp, fallbackErr := c.timed(ctx, c.fallback, req, attempt, entity, path)
	if fallbackErr != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) timed(ctx context.Context, t transport.Transport, req *transport.Request, attempt int, entity, path string) (*transport.Response, error) {
	if c.opts.Debug {
		c.logger.Debug("upstream request",
			slog.String("method", req.Method),
			slog.String("url", req.URL),
			slog.String("entity", entity),
			slog.Int("attempt", attempt),
		)
	}
	start := time.Now()
	resp, err := t.RoundTrip(ctx, req, attempt, path)
	elapsed := time.Since(start)

	status := 0
	if resp != nil {
		status = resp.Status
	}
	c.opts.Metrics.RecordUpstream(ctx, elapsed, req.Method, entity, status)

	if c.opts.Debug {
		attrs := []any{
			slog.String("method", req.Method),
			slog.String("url", req.URL),
			slog.Int("status", status),
			slog.Int("attempt", attempt),
			slog.Duration("duration", elapsed),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		c.logger.Debug("upstream response", attrs...)
	}
	if err == nil && resp == nil {
		return nil, errors.New("transport returned no response")
	}
	return resp, err
}

// encodeQuery renders GET data as a query string with sorted keys.
func encodeQuery(data any) (string, error) {
	switch d := data.(type) {
	case nil:
		return "", nil
	case url.Values:
		return d.Encode(), nil
	case map[string]string:
		values := url.Values{}
		for k, v := range d {
			values.Set(k, v)
		}
		return values.Encode(), nil
	case map[string]any:
		values := url.Values{}
		keys := make([]string, 0, len(d))
		for k := range d {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			switch v := d[k].(type) {
			case []any:
				for _, item := range v {
					values.Add(k, queryText(item))
				}
			case []string:
				for _, item := range v {
					values.Add(k, item)
				}
			default:
				values.Set(k, queryText(v))
			}
		}
		return values.Encode(), nil
	default:
		return "", fmt.Errorf("GET data must be an object, got %T", data)
	}
}

func queryText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
