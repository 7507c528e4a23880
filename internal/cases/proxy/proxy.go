// Package proxy is the HTTP client for the backend KYC record service. It
// forwards case operations and reports transport failures through the domain
// error vocabulary; upstream HTTP statuses are returned verbatim for the
// handler to relay.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"casegate/internal/platform/metrics"
	derrors "casegate/pkg/domain-errors"
)

// Response is a raw upstream reply. Case routes are a pass-through surface:
// non-2xx statuses and bodies are relayed, not reinterpreted.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the upstream replied with a 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client forwards case operations to the record service.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	readTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithMetrics enables latency and outcome instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New builds a client for the record service at baseURL. readTimeout bounds
// list and get forwards only; mutations run to completion so a slow backend
// cannot leave a half-applied write behind an abandoned request.
func New(baseURL string, readTimeout time.Duration, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{},
		readTimeout: readTimeout,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// recordsPath is the record service's collection sub-path.
const recordsPath = "/api/kyc-records"

// List forwards GET /api/kyc-records with the caller's query string intact.
func (c *Client) List(ctx context.Context, rawQuery string) (*Response, error) {
	target := c.baseURL + recordsPath
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return c.do(ctx, "list", http.MethodGet, target, nil, true)
}

// Get forwards GET /api/kyc-records/{id}.
func (c *Client) Get(ctx context.Context, id string) (*Response, error) {
	return c.do(ctx, "get", http.MethodGet, c.caseURL(id), nil, true)
}

// Create forwards POST /api/kyc-records with the record payload.
func (c *Client) Create(ctx context.Context, body []byte) (*Response, error) {
	return c.do(ctx, "create", http.MethodPost, c.baseURL+recordsPath, body, false)
}

// Update forwards PUT /api/kyc-records/{id}.
func (c *Client) Update(ctx context.Context, id string, body []byte) (*Response, error) {
	return c.do(ctx, "update", http.MethodPut, c.caseURL(id), body, false)
}

// Delete forwards DELETE /api/kyc-records/{id}.
func (c *Client) Delete(ctx context.Context, id string) (*Response, error) {
	return c.do(ctx, "delete", http.MethodDelete, c.caseURL(id), nil, false)
}

// SendToPAS forwards POST /api/kyc-records/{id}/send-to-pas, handing the
// case over to the policy administration system.
func (c *Client) SendToPAS(ctx context.Context, id string, body []byte) (*Response, error) {
	return c.do(ctx, "send_to_pas", http.MethodPost, c.caseURL(id)+"/send-to-pas", body, false)
}

func (c *Client) caseURL(id string) string {
	return c.baseURL + recordsPath + "/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, operation, method, target string, body []byte, bounded bool) (*Response, error) {
	if bounded && c.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.readTimeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "build upstream request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.ObserveUpstream(operation, time.Since(start))
	if err != nil {
		c.count(operation, "transport_error")
		if isTimeout(err) {
			c.logger.WarnContext(ctx, "record service timed out",
				"operation", operation, "timeout", c.readTimeout)
			return nil, derrors.Wrap(err, derrors.CodeUpstreamTimeout, "record service timed out")
		}
		c.logger.ErrorContext(ctx, "record service unreachable",
			"operation", operation, "error", err)
		return nil, derrors.Wrap(err, derrors.CodeUpstream, "record service unreachable")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.count(operation, "read_error")
		return nil, derrors.Wrap(err, derrors.CodeUpstream, "read record service response")
	}

	c.count(operation, outcomeFor(resp.StatusCode))
	return &Response{StatusCode: resp.StatusCode, Body: data}, nil
}

func (c *Client) count(operation, outcome string) {
	if c.metrics == nil {
		return
	}
	c.metrics.ProxyRequests.WithLabelValues(operation, outcome).Inc()
}

func outcomeFor(status int) string {
	switch {
	case status < 300:
		return "ok"
	case status < 500:
		return "client_error"
	default:
		return "server_error"
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue) && ue.Timeout()
}

// ValidationFields extracts field-level detail from a record service
// validation reply of the form {"detail": [{"loc": [...], "msg": "..."}]}.
// loc entries mix strings and array indices, so both are stringified. A body
// in any other shape yields nil.
func ValidationFields(body []byte) []derrors.FieldError {
	var payload struct {
		Detail []struct {
			Loc []any  `json:"loc"`
			Msg string `json:"msg"`
		} `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return nil
	}
	fields := make([]derrors.FieldError, 0, len(payload.Detail))
	for _, d := range payload.Detail {
		loc := make([]string, 0, len(d.Loc))
		for _, part := range d.Loc {
			switch v := part.(type) {
			case string:
				loc = append(loc, v)
			case float64:
				loc = append(loc, fmt.Sprintf("%d", int(v)))
			default:
				loc = append(loc, fmt.Sprint(v))
			}
		}
		fields = append(fields, derrors.FieldError{Loc: loc, Msg: d.Msg})
	}
	return fields
}
