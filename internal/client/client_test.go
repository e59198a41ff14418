package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"restql/internal/auth"
	"restql/internal/cursor"
	"restql/internal/policy"
	"restql/internal/transport"
)

type scripted struct {
	mu        sync.Mutex
	urls      []string
	headers   []http.Header
	responses []*transport.Response
	err       error
}

func (s *scripted) RoundTrip(_ context.Context, req *transport.Request, _ int, _ string) (*transport.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = append(s.urls, req.URL)
	s.headers = append(s.headers, req.Header.Clone())
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return &transport.Response{Status: http.StatusOK, Data: map[string]any{}}, nil
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	return next, nil
}

func items(d any) any { return d.(map[string]any)["items"] }

func TestDispatch_PaginationFromBody(t *testing.T) {
	tr := &scripted{responses: []*transport.Response{
		{Status: 200, Data: map[string]any{"items": []any{1.0, 2.0}, "next": "tok-1"}},
		{Status: 200, Data: map[string]any{"items": []any{3.0}}},
	}}
	c := New(Options{
		APIURL:        "https://api",
		Transport:     tr,
		DataExtractor: items,
		Pagination:    &cursor.Spec{Param: "cursor", ResponsePath: "next"},
	})
	ctx := context.Background()

	res, err := c.Get(ctx, "users", map[string]any{"limit": 2})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, []any{1.0, 2.0}, res.Data)

	res, err = c.Get(ctx, "users", map[string]any{"limit": 2})
	require.NoError(t, err)
	assert.Equal(t, []any{}, res.Data)

	assert.Equal(t, []string{"https://api/users?limit=2", "https://api/users?limit=2&cursor=tok-1"}, tr.urls)
	_, ok, err := c.Store().Get(ctx, "https://api/users?limit=2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDispatch_PaginationFromHeader(t *testing.T) {
	next := http.Header{}
	next.Set("X-Next-Token", "hdr-123")
	tr := &scripted{responses: []*transport.Response{
		{Status: 200, Data: map[string]any{"items": []any{10.0}}, Header: next},
		{Status: 200, Data: map[string]any{"items": []any{20.0}}, Header: http.Header{}},
	}}
	c := New(Options{
		APIURL:        "https://api/",
		Transport:     tr,
		DataExtractor: items,
		Pagination:    &cursor.Spec{Param: "pageToken", ResponseHeader: "X-Next-Token"},
	})

	_, err := c.Get(context.Background(), "things", map[string]any{"category": "a"})
	require.NoError(t, err)
	res, err := c.Get(context.Background(), "things", map[string]any{"category": "a"})
	require.NoError(t, err)

	assert.Equal(t, "https://api/things?category=a&pageToken=hdr-123", tr.urls[1])
	assert.Equal(t, []any{}, res.Data)
}

func TestDispatch_NonPaginatedPassesThrough(t *testing.T) {
	tr := &scripted{responses: []*transport.Response{
		{Status: 200, Data: map[string]any{"items": []any{1.0}}},
	}}
	c := New(Options{APIURL: "https://api", Transport: tr, Pagination: &cursor.Spec{Param: "cursor", ResponsePath: "next"}})

	res, err := c.Get(context.Background(), "entries", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"items": []any{1.0}}, res.Data)
}

func TestDispatch_ResetPaginationDropsTokens(t *testing.T) {
	tr := &scripted{responses: []*transport.Response{
		{Status: 200, Data: map[string]any{"next": "tok-1"}},
		{Status: 200, Data: map[string]any{"id": 1.0}},
	}}
	c := New(Options{APIURL: "https://api", Transport: tr, Pagination: &cursor.Spec{Param: "cursor", ResponsePath: "next"}})
	ctx := context.Background()

	_, err := c.Get(ctx, "users", nil)
	require.NoError(t, err)
	require.NoError(t, c.ResetPagination(ctx))
	res, err := c.Get(ctx, "users", nil)
	require.NoError(t, err)

	assert.Equal(t, "https://api/users", tr.urls[1])
	assert.Equal(t, map[string]any{"id": 1.0}, res.Data)
}

func TestDispatch_RefreshesOnceOn401(t *testing.T) {
	tr := &scripted{responses: []*transport.Response{
		{Status: http.StatusUnauthorized},
		{Status: http.StatusUnauthorized},
	}}
	refreshes := 0
	var refreshedURL string
	c := New(Options{
		APIURL:    "https://api",
		Headers:   http.Header{"Authorization": []string{"Bearer old"}},
		Transport: tr,
		Refresher: auth.RefreshFunc(func(_ context.Context, url string) (http.Header, error) {
			refreshes++
			refreshedURL = url
			return http.Header{"Authorization": []string{"Bearer new"}}, nil
		}),
	})

	_, err := c.Get(context.Background(), "users", nil)
	var se *transport.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.Equal(t, 1, refreshes)
	assert.Equal(t, "https://api/users", refreshedURL)
	require.Len(t, tr.headers, 2)
	assert.Equal(t, "Bearer old", tr.headers[0].Get("Authorization"))
	assert.Equal(t, "Bearer new", tr.headers[1].Get("Authorization"))
}

func TestDispatch_RefreshThenSuccessKeepsNewCredentials(t *testing.T) {
	tr := &scripted{responses: []*transport.Response{
		{Status: http.StatusUnauthorized},
		{Status: http.StatusOK, Data: []any{}},
		{Status: http.StatusOK, Data: []any{}},
	}}
	c := New(Options{
		APIURL:    "https://api",
		Transport: tr,
		Refresher: auth.NewStaticRefresher(map[string]string{"Authorization": "Bearer fresh"}),
	})

	_, err := c.Get(context.Background(), "users", nil)
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "users", nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer fresh", tr.headers[2].Get("Authorization"))
}

func TestDispatch_401WithoutRefresherFails(t *testing.T) {
	tr := &scripted{responses: []*transport.Response{{Status: http.StatusUnauthorized}}}
	c := New(Options{APIURL: "https://api", Transport: tr})

	_, err := c.Get(context.Background(), "users", nil)
	var se *transport.StatusError
	require.ErrorAs(t, err, &se)
	assert.Len(t, tr.urls, 1)
}

func TestDispatch_RefreshErrorPropagates(t *testing.T) {
	tr := &scripted{responses: []*transport.Response{{Status: http.StatusUnauthorized}}}
	boom := errors.New("idp down")
	c := New(Options{
		APIURL:    "https://api",
		Transport: tr,
		Refresher: auth.RefreshFunc(func(context.Context, string) (http.Header, error) { return nil, boom }),
	})

	_, err := c.Get(context.Background(), "users", nil)
	require.ErrorIs(t, err, boom)
}

type countingPolicy struct{ calls int }

func (p *countingPolicy) Execute(fn func() (interface{}, error)) (interface{}, error) {
	p.calls++
	return fn()
}

func TestDispatch_PolicySelection(t *testing.T) {
	global, perEntity := &countingPolicy{}, &countingPolicy{}
	c := New(Options{
		APIURL:    "https://api",
		Transport: &scripted{},
		Policy:    global,
		Policies:  map[string]policy.Policy{"users": perEntity},
	})

	_, err := c.Get(context.Background(), "users/1", nil)
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "posts", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, perEntity.calls)
	assert.Equal(t, 1, global.calls)
}

func TestDispatch_EntityOverrides(t *testing.T) {
	tr := &scripted{}
	c := New(Options{
		APIURL:    "https://api",
		Headers:   http.Header{"X-Global": []string{"g"}},
		Transport: tr,
		Paths: map[string]EntityOptions{
			"posts": {URL: "https://posts.example/", Headers: http.Header{"X-Posts": []string{"p"}}},
		},
	})

	_, err := c.Post(context.Background(), "posts", map[string]any{"title": "t"})
	require.NoError(t, err)
	assert.Equal(t, "https://posts.example/posts", tr.urls[0])
	assert.Equal(t, "g", tr.headers[0].Get("X-Global"))
	assert.Equal(t, "p", tr.headers[0].Get("X-Posts"))
}

func TestDispatch_FallsBackToDefaultTransport(t *testing.T) {
	injected := &scripted{err: errors.New("provider broke")}
	fallback := &scripted{responses: []*transport.Response{{Status: 200, Data: []any{"ok"}}}}
	c := New(Options{APIURL: "https://api", Transport: injected, Default: fallback})

	res, err := c.Get(context.Background(), "users", nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"ok"}, res.Data)
	assert.Len(t, fallback.urls, 1)
}

func TestDispatch_FallbackFailureReturnsOriginalError(t *testing.T) {
	original := errors.New("provider broke")
	c := New(Options{
		APIURL:    "https://api",
		Transport: &scripted{err: original},
		Default:   &scripted{err: errors.New("fallback broke")},
	})

	_, err := c.Get(context.Background(), "users", nil)
	require.ErrorIs(t, err, original)
}

type blockingTransport struct {
	started chan struct{}
}

func (b *blockingTransport) CanCancel() bool { return true }

func (b *blockingTransport) RoundTrip(ctx context.Context, _ *transport.Request, _ int, _ string) (*transport.Response, error) {
	close(b.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCancel_AbortsInFlightRequest(t *testing.T) {
	tr := &blockingTransport{started: make(chan struct{})}
	c := New(Options{APIURL: "https://api", Transport: tr, Default: tr, CanCancel: true})

	errc := make(chan error, 1)
	go func() {
		_, err := c.Get(context.Background(), "users", nil)
		errc <- err
	}()

	<-tr.started
	c.Cancel()
	select {
	case err := <-errc:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("request was not cancelled")
	}
}

func TestCancel_NoopForNonCancelableTransport(t *testing.T) {
	c := New(Options{APIURL: "https://api", Transport: &scripted{}, CanCancel: true})
	_, err := c.Get(context.Background(), "users", nil)
	require.NoError(t, err)
	assert.NotPanics(t, c.Cancel)
}

func TestEncodeQuery(t *testing.T) {
	q, err := encodeQuery(map[string]any{"b": "x y", "a": 1.5, "tags": []any{"p", "q"}})
	require.NoError(t, err)
	assert.Equal(t, "a=1.5&b=x+y&tags=p&tags=q", q)

	_, err = encodeQuery([]int{1})
	require.Error(t, err)
}

func TestDispatch_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	tp.RegisterSpanProcessor(recorder)
	old := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(old)
	}()

	c := New(Options{APIURL: "https://api", Transport: &scripted{}})
	_, err := c.Get(context.Background(), "users", nil)
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "restql.dispatch", spans[0].Name())
}
