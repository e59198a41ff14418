package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restql/internal/addon"
	"restql/internal/client"
	"restql/internal/cursor"
	"restql/internal/query"
	"restql/internal/resultset"
	"restql/internal/transport"
)

type call struct {
	method string
	url    string
	body   any
}

type fakeAPI struct {
	mu     sync.Mutex
	routes map[string]any
	calls  []call
}

func (f *fakeAPI) RoundTrip(_ context.Context, req *transport.Request, _ int, _ string) (*transport.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{method: req.Method, url: req.URL, body: req.Body})

	key := req.Method + " " + strings.TrimPrefix(req.URL, "https://api/")
	data, ok := f.routes[key]
	if !ok {
		if req.Method != http.MethodGet {
			return &transport.Response{Status: http.StatusOK, Data: req.Body}, nil
		}
		return &transport.Response{Status: http.StatusNotFound}, nil
	}
	return &transport.Response{Status: http.StatusOK, Data: data}, nil
}

func (f *fakeAPI) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.method + " " + c.url
	}
	return out
}

func newEngine(api *fakeAPI, mutate ...func(*Config)) *Engine {
	cfg := Config{Client: client.Options{APIURL: "https://api", Transport: api, Default: api}}
	for _, m := range mutate {
		m(&cfg)
	}
	return New(cfg)
}

func usersAndPosts() *fakeAPI {
	return &fakeAPI{routes: map[string]any{
		"GET users": []any{
			map[string]any{"id": 1.0, "name": "Ann"},
			map[string]any{"id": 2.0, "name": "Bob"},
		},
		"GET posts": []any{
			map[string]any{"id": 10.0, "userId": 1.0, "title": "Hi"},
			map[string]any{"id": 11.0, "userId": 2.0, "title": "Yo"},
		},
		"GET users/1": map[string]any{"id": 1.0, "name": "Ann"},
	}}
}

func TestExec_SelectJoin(t *testing.T) {
	e := newEngine(usersAndPosts())

	out, err := e.Exec(context.Background(), "SELECT users.name, title FROM users JOIN posts ON users.id = posts.userId ORDER BY title DESC", nil)
	require.NoError(t, err)
	res, ok := out.(resultset.Result)
	require.True(t, ok)
	require.True(t, res.Joined())

	rows := res.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "Yo", rows[0]["title"])
	assert.Equal(t, "Bob", rows[0]["name"])
	assert.Equal(t, 2.0, rows[0]["id"])
}

func TestSelect_PerEntityResult(t *testing.T) {
	e := newEngine(usersAndPosts())

	res, err := e.Select(context.Background(), "SELECT name, title FROM users, posts", nil)
	require.NoError(t, err)
	assert.Equal(t, []resultset.Row{{"name": "Ann"}, {"name": "Bob"}}, res.Entity("users"))
	assert.Equal(t, []resultset.Row{{"title": "Hi"}, {"title": "Yo"}}, res.Entity("posts"))
}

func TestSelect_WhereEqualityUsesEntityPath(t *testing.T) {
	api := usersAndPosts()
	e := newEngine(api)

	res, err := e.Select(context.Background(), "SELECT name FROM users WHERE id = 1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"GET https://api/users/1"}, api.urls())
	assert.Equal(t, []resultset.Row{{"name": "Ann"}}, res.Entity("users"))
}

func TestSelect_WhereInFiltersRows(t *testing.T) {
	e := newEngine(usersAndPosts())

	res, err := e.Select(context.Background(), "SELECT name FROM users WHERE users.id IN (2, 3)", nil)
	require.NoError(t, err)
	assert.Equal(t, []resultset.Row{{"name": "Bob"}}, res.Entity("users"))
}

func TestSelect_NestedRoute(t *testing.T) {
	api := &fakeAPI{routes: map[string]any{
		"GET users/1/posts": []any{map[string]any{"title": "Hi"}},
	}}
	e := newEngine(api, func(c *Config) {
		c.PathMap = map[string]string{"posts": "users/{users.id}/posts"}
	})

	res, err := e.Select(context.Background(), "SELECT title FROM posts WHERE users.id = 1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"GET https://api/users/1/posts"}, api.urls())
	assert.Equal(t, []resultset.Row{{"title": "Hi"}}, res.Entity("posts"))
}

func TestSelect_NestedRouteRequiresWhere(t *testing.T) {
	e := newEngine(&fakeAPI{}, func(c *Config) {
		c.PathMap = map[string]string{"posts": "users/{users.id}/posts"}
	})

	_, err := e.Select(context.Background(), "SELECT title FROM posts", nil)
	require.ErrorIs(t, err, ErrNestedRouteWithoutCondition)
}

func TestSelect_NestedRouteUnboundPlaceholder(t *testing.T) {
	e := newEngine(&fakeAPI{}, func(c *Config) {
		c.PathMap = map[string]string{"posts": "orgs/{orgs.id}/posts"}
	})

	_, err := e.Select(context.Background(), "SELECT title FROM posts WHERE users.id = 1", nil)
	require.ErrorIs(t, err, ErrUnresolvedRouteParam)
}

func TestSelect_AnyFetchFailureFailsQuery(t *testing.T) {
	api := &fakeAPI{routes: map[string]any{"GET users": []any{}}}
	e := newEngine(api)

	_, err := e.Select(context.Background(), "SELECT * FROM users, missing", nil)
	var se *transport.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Status)
}

func TestSelect_MalformedQuery(t *testing.T) {
	e := newEngine(&fakeAPI{})

	_, err := e.Exec(context.Background(), "SELECT name users", nil)
	require.ErrorIs(t, err, query.ErrMalformedQuery)
}

func TestExec_UnsupportedCommand(t *testing.T) {
	e := newEngine(&fakeAPI{})

	_, err := e.Exec(context.Background(), "DROP TABLE users", nil)
	require.ErrorIs(t, err, ErrUnsupportedCommand)
}

func TestInsert_ValuesList(t *testing.T) {
	api := &fakeAPI{}
	e := newEngine(api)

	out, err := e.Insert(context.Background(), "INSERT INTO users (name, age) VALUES ('Ann', 30)", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string][]any{"users": {map[string]any{"name": "Ann", "age": 30.0}}}, out)
	assert.Equal(t, "POST https://api/users", api.urls()[0])
}

func TestInsert_Payload(t *testing.T) {
	api := &fakeAPI{}
	e := newEngine(api)

	out, err := e.Exec(context.Background(), "INSERT INTO users", map[string]any{"name": "Bob"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]any{"users": {map[string]any{"name": "Bob"}}}, out)
}

func TestUpdate_SetList(t *testing.T) {
	api := &fakeAPI{}
	e := newEngine(api)

	out, err := e.Update(context.Background(), "UPDATE users SET name = 'Ann', active = true WHERE id = 1", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"users": map[string]any{"name": "Ann", "active": true}}, out)
	assert.Equal(t, "PUT https://api/users/1", api.urls()[0])
}

func TestUpdate_Payload(t *testing.T) {
	api := &fakeAPI{}
	e := newEngine(api)

	out, err := e.Exec(context.Background(), "UPDATE users WHERE id = 7", map[string]any{"name": "Cy"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"users": map[string]any{"name": "Cy"}}, out)
	assert.Equal(t, "PUT https://api/users/7", api.urls()[0])
}

func TestDelete(t *testing.T) {
	api := &fakeAPI{}
	e := newEngine(api)

	out, err := e.Exec(context.Background(), "DELETE FROM users WHERE id = 3", nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "3"}, out)
	assert.Equal(t, "DELETE https://api/users/3", api.urls()[0])
}

func TestExec_AddonPipeline(t *testing.T) {
	e := newEngine(usersAndPosts(), func(c *Config) {
		c.Addons = []addon.Addon{addon.NewTagger("trivial", "")}
	})

	out, err := e.Exec(context.Background(), "SELECT TRIVIAL users.name, title FROM users LEFT JOIN posts ON users.id = posts.userId", nil)
	require.NoError(t, err)
	rows := out.(resultset.Result).Rows()
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, true, row["trivial"])
	}
}

func TestSetConfig_ResetsPagination(t *testing.T) {
	api := &fakeAPI{routes: map[string]any{
		"GET users": map[string]any{"users": []any{map[string]any{"id": 1.0}}, "next": "tok"},
	}}
	store := cursor.NewMemoryStore()
	cfg := Config{Client: client.Options{
		APIURL:     "https://api",
		Transport:  api,
		Default:    api,
		Pagination: &cursor.Spec{Param: "cursor", ResponsePath: "next"},
		Store:      store,
	}}
	e := New(cfg)

	_, err := e.Select(context.Background(), "SELECT id FROM users", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())

	require.NoError(t, e.SetConfig(context.Background(), cfg))
	assert.Equal(t, 0, store.Len())
}

func TestExplain(t *testing.T) {
	e := newEngine(&fakeAPI{})

	plan, err := e.Explain("SELECT name FROM users WHERE id = 4", nil)
	require.NoError(t, err)
	assert.Equal(t, query.CommandSelect, plan.Command)
	assert.Equal(t, "SELECT name FROM users WHERE id = ?", plan.SQL)
	assert.Equal(t, []PlannedRequest{{Method: "GET", Path: "users/4"}}, plan.Requests)

	plan, err = e.Explain("DELETE FROM users WHERE id = 4", nil)
	require.NoError(t, err)
	assert.Equal(t, []PlannedRequest{{Method: "DELETE", Path: "users/4"}}, plan.Requests)
}

func TestExec_TransportErrorSurfaces(t *testing.T) {
	boom := errors.New("down")
	failing := transport.Func(func(context.Context, *transport.Request, int, string) (*transport.Response, error) {
		return nil, boom
	})
	e := New(Config{Client: client.Options{APIURL: "https://api", Transport: failing, Default: failing}})

	_, err := e.Exec(context.Background(), "SELECT * FROM users", nil)
	require.ErrorIs(t, err, boom)
}

func TestSelect_DebugLogsCompiledSQL(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e := newEngine(usersAndPosts(), func(c *Config) {
		c.Client.Logger = logger
		c.Client.Debug = true
	})

	_, err := e.Exec(context.Background(), "SELECT name FROM users WHERE id = 1", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "select compiled")
	assert.Contains(t, buf.String(), "SELECT name FROM users WHERE id =")
}

func TestSelect_NoCompiledSQLWithoutDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e := newEngine(usersAndPosts(), func(c *Config) { c.Client.Logger = logger })

	_, err := e.Exec(context.Background(), "SELECT name FROM users", nil)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "select compiled")
}
