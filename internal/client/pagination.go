package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"restql/internal/cursor"
	"restql/internal/transport"
)

type pageState struct {
	key      string
	query    string
	prior    cursor.State
	hadPrior bool
}

// loadPage looks up continuation state for the request and injects a stored
// token into the query under the configured parameter.
func (c *Client) loadPage(ctx context.Context, base, rawQuery string) (*pageState, error) {
	param := c.opts.Pagination.ParamName()
	key := cursor.Fingerprint(base, rawQuery, param)
	prior, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load pagination state: %w", err)
	}

	page := &pageState{key: key, query: rawQuery, prior: prior, hadPrior: ok}
	if ok && prior.Token != "" {
		token := url.QueryEscape(param) + "=" + url.QueryEscape(prior.Token)
		if page.query == "" {
			page.query = token
		} else {
			page.query += "&" + token
		}
	}
	return page, nil
}

// advance records the next token. When a previously active sequence yields
// no token the state is cleared and an empty page is returned instead of the
// response body.
func (c *Client) advance(ctx context.Context, page *pageState, entity string, resp *transport.Response, extracted any) (any, error) {
	spec := c.opts.Pagination
	if token, ok := spec.NextToken(resp.Data, extracted, resp.Header); ok {
		state := cursor.State{Token: token, HasMore: true, Param: spec.ParamName()}
		if err := c.store.Set(ctx, page.key, state); err != nil {
			return nil, fmt.Errorf("save pagination state: %w", err)
		}
		c.opts.Metrics.RecordPagination(ctx, entity, "advance")
		return extracted, nil
	}

	if page.hadPrior && page.prior.Token != "" {
		if err := c.store.Delete(ctx, page.key); err != nil {
			return nil, fmt.Errorf("clear pagination state: %w", err)
		}
		c.opts.Metrics.RecordPagination(ctx, entity, "exhausted")
		if c.opts.Debug {
			c.logger.Debug("pagination exhausted", slog.String("entity", entity), slog.String("key", page.key))
		}
		return []any{}, nil
	}
	return extracted, nil
}
