package rest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	domain "github.com/ahrav/cbexpiry/internal/domain/expiry"
	"github.com/ahrav/cbexpiry/pkg/common/logger"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	c, err := NewClient(Config{Host: host, Port: port, Username: "admin", Password: "secret"},
		NewHTTPClient(5*time.Second), logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	require.NoError(t, err)
	return c
}

func collect(t *testing.T, it domain.PageIterator) ([]string, error) {
	t.Helper()
	defer it.Close()
	var ids []string
	for it.Next() {
		ids = append(ids, it.ID())
	}
	return ids, it.Err()
}

func TestPageURL(t *testing.T) {
	c, err := NewClient(Config{Host: " cb.local "}, http.DefaultClient, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	require.NoError(t, err)

	got := c.PageURL(domain.PageRequest{Bucket: "sessions", View: "expiring ", Skip: 4000, Limit: 2000})
	assert.Equal(t,
		"http://cb.local:8092/sessions/_design/expiring/_view/expiring?connection_timeout=60000&limit=2000&skip=4000&stale=false",
		got)
}

func TestNewClient_RejectsHostWithPort(t *testing.T) {
	_, err := NewClient(Config{Host: "cb.local:8091"}, http.DefaultClient, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	assert.Error(t, err)

	_, err = NewClient(Config{}, http.DefaultClient, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	assert.Error(t, err)
}

func TestFetchPage_Success(t *testing.T) {
	var gotQuery url.Values
	var gotPath, gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		gotUser, gotPass, _ = r.BasicAuth()
		fmt.Fprint(w, `{"total_rows":5000,"rows":[
			{"id":"doc-1","key":"doc-1","value":null},
			{"id":"doc-2","key":["a",1],"value":{"x":1}},
			{"id":"doc-3","key":null,"value":null}
		]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	it, err := c.FetchPage(context.Background(), domain.PageRequest{Bucket: "b1", View: "v1", Skip: 10, Limit: 3})
	require.NoError(t, err)

	ids, err := collect(t, it)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1", "doc-2", "doc-3"}, ids)

	assert.Equal(t, "/b1/_design/v1/_view/v1", gotPath)
	assert.Equal(t, "false", gotQuery.Get("stale"))
	assert.Equal(t, "10", gotQuery.Get("skip"))
	assert.Equal(t, "3", gotQuery.Get("limit"))
	assert.Equal(t, "60000", gotQuery.Get("connection_timeout"))
	assert.Equal(t, "admin", gotUser)
	assert.Equal(t, "secret", gotPass)
}

func TestFetchPage_RowsNotFirst(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"debug_info":{"a":[1,2]},"rows":[{"id":"x"}],"total_rows":1}`)
	}))
	defer srv.Close()

	it, err := newTestClient(t, srv).FetchPage(context.Background(), domain.PageRequest{Bucket: "b", View: "v", Limit: 10})
	require.NoError(t, err)
	ids, err := collect(t, it)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, ids)
}

func TestFetchPage_EmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"total_rows":0,"rows":[]}`)
	}))
	defer srv.Close()

	it, err := newTestClient(t, srv).FetchPage(context.Background(), domain.PageRequest{Bucket: "b", View: "v", Limit: 10})
	require.NoError(t, err)
	ids, err := collect(t, it)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFetchPage_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
		// lazy errors surface from the iterator rather than FetchPage.
		lazy bool
	}{
		{name: "not found", status: 404, body: `{"error":"not_found","reason":"missing"}`, wantStatus: 404, wantMsg: "not_found: missing"},
		{name: "unauthorized", status: 401, body: `Unauthorized`, wantStatus: 401, wantMsg: "Unauthorized"},
		{name: "server error", status: 500, body: `{"error":"timeout","reason":"index build"}`, wantStatus: 500, wantMsg: "timeout"},
		{name: "not json", status: 200, body: `<html>`, wantStatus: 200, wantMsg: "malformed"},
		{name: "missing rows", status: 200, body: `{"total_rows":0}`, wantStatus: 200, wantMsg: "missing rows"},
		{name: "truncated rows", status: 200, body: `{"rows":[{"id":"a"},{"id":`, wantMsg: "malformed view row", lazy: true},
		{name: "reduced row", status: 200, body: `{"rows":[{"key":null,"value":42}]}`, wantMsg: "missing id", lazy: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			req := domain.PageRequest{Bucket: "b", View: "v", Skip: 2000, Limit: 10}
			it, err := newTestClient(t, srv).FetchPage(context.Background(), req)
			if tt.lazy {
				require.NoError(t, err)
				_, err = collect(t, it)
			}
			require.Error(t, err)

			var qe *domain.QueryError
			require.ErrorAs(t, err, &qe)
			assert.Equal(t, tt.wantStatus, qe.StatusCode)
			assert.Equal(t, 2000, qe.Skip)
			assert.Contains(t, qe.Error(), tt.wantMsg)
		})
	}
}

func TestFetchPage_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := newTestClient(t, srv)
	srv.Close()

	_, err := c.FetchPage(context.Background(), domain.PageRequest{Bucket: "b", View: "v", Limit: 1})
	assert.True(t, domain.IsQueryError(err))
}

func TestFetchPage_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(t, srv).FetchPage(ctx, domain.PageRequest{Bucket: "b", View: "v", Limit: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchPage_InvalidRequest(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newTestClient(t, srv).FetchPage(context.Background(), domain.PageRequest{Bucket: "b", View: "v", Limit: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidPageRequest)
}
