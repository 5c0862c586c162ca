// Package rest pages Couchbase views through the view REST endpoint on the
// API port (8092 by default).
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/ahrav/cbexpiry/internal/domain/expiry"
	"github.com/ahrav/cbexpiry/pkg/common"
	"github.com/ahrav/cbexpiry/pkg/common/logger"
)

// DefaultPort is the Couchbase view REST port.
const DefaultPort = 8092

// viewURLFormat is host, port, bucket, view (used for both the design
// document and the view), limit, skip.
const viewURLFormat = "http://%s:%d/%s/_design/%s/_view/%s?connection_timeout=60000&limit=%d&skip=%d&stale=false"

// Config configures a Client.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// RequestsPerSecond throttles page requests; zero disables throttling.
	RequestsPerSecond float64
}

var _ domain.ViewQuerier = (*Client)(nil)

// Client issues view page requests with HTTP basic auth.
type Client struct {
	cfg         Config
	httpClient  *http.Client
	rateLimiter *common.RateLimiter

	logger *logger.Logger
	tracer trace.Tracer
}

// NewClient creates a Client. The http.Client should carry its own transport
// level timeouts; each request is additionally bound to the caller's context.
func NewClient(cfg Config, httpClient *http.Client, logger *logger.Logger, tracer trace.Tracer) (*Client, error) {
	cfg.Host = strings.TrimSpace(cfg.Host)
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if strings.Contains(cfg.Host, ":") {
		return nil, fmt.Errorf("host %q must not include a port", cfg.Host)
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	return &Client{
		cfg:         cfg,
		httpClient:  httpClient,
		rateLimiter: common.NewRateLimiter(cfg.RequestsPerSecond, 1),
		logger:      logger.With("component", "view_rest_client"),
		tracer:      tracer,
	}, nil
}

// PageURL builds the view URL for one page.
func (c *Client) PageURL(req domain.PageRequest) string {
	view := url.PathEscape(strings.TrimSpace(req.View))
	return fmt.Sprintf(viewURLFormat, c.cfg.Host, c.cfg.Port, url.PathEscape(req.Bucket), view, view, req.Limit, req.Skip)
}

// viewError is the body Couchbase returns for failed view requests.
type viewError struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// FetchPage requests one page. The returned iterator decodes rows from the
// response body as they are consumed and must be closed.
func (c *Client) FetchPage(ctx context.Context, req domain.PageRequest) (domain.PageIterator, error) {
	ctx, span := c.tracer.Start(ctx, "view_rest_client.fetch_page",
		trace.WithAttributes(
			attribute.String("bucket", req.Bucket),
			attribute.String("view", req.View),
			attribute.Int("skip", req.Skip),
			attribute.Int("limit", req.Limit),
		))
	defer span.End()

	fail := func(status int, err error, msg string) (domain.PageIterator, error) {
		qe := domain.NewQueryError(req, status, err)
		span.RecordError(qe)
		span.SetStatus(codes.Error, msg)
		return nil, qe
	}

	if err := req.Validate(); err != nil {
		return fail(0, err, "invalid page request")
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fail(0, fmt.Errorf("rate limiter wait failed: %w", err), "rate limiter wait failed")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.PageURL(req), nil)
	if err != nil {
		return fail(0, fmt.Errorf("failed to create view request: %w", err), "failed to create request")
	}
	httpReq.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fail(0, fmt.Errorf("view request failed: %w", err), "request failed")
	}

	span.SetAttributes(attribute.Int("status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var ve viewError
		if json.Unmarshal(data, &ve) == nil && ve.Error != "" {
			return fail(resp.StatusCode, fmt.Errorf("%s: %s", ve.Error, ve.Reason), "non-2xx response")
		}
		return fail(resp.StatusCode, fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(data))), "non-2xx response")
	}

	it, err := newRowIterator(resp.Body, req)
	if err != nil {
		resp.Body.Close()
		return fail(resp.StatusCode, err, "malformed response")
	}

	span.SetStatus(codes.Ok, "view page opened")
	return it, nil
}
