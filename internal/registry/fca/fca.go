// Package fca is the client for the financial-services register. Every
// operation is a GET; firm data is spread across one details endpoint plus
// nine sub-resource endpoints that the aggregate layer joins.
package fca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	derrors "casegate/pkg/domain-errors"
)

// Envelope is the register's standard reply wrapper. Data is kept raw: the
// register's row shapes are open-ended and this layer does not interpret
// them beyond the documented quirks.
type Envelope struct {
	Data json.RawMessage `json:"Data"`
}

// Client talks to the register at a fixed base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New builds a register client. timeout bounds every call.
func New(baseURL string, timeout time.Duration, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search queries the register. typ defaults to "firm" and perPage to 10,
// matching the register's own defaults. The reply is returned verbatim.
func (c *Client) Search(ctx context.Context, query, typ string, perPage int) (json.RawMessage, error) {
	if typ == "" {
		typ = "firm"
	}
	if perPage <= 0 {
		perPage = 10
	}
	params := url.Values{
		"q":        {query},
		"type":     {typ},
		"per_page": {strconv.Itoa(perPage)},
	}
	return c.get(ctx, "/api/search?"+params.Encode())
}

// Firm sub-resource endpoints. Each returns the enveloped Data payload.

func (c *Client) FirmDetails(ctx context.Context, frn string) (Envelope, error) {
	return c.getEnvelope(ctx, c.firmPath(frn, ""))
}

func (c *Client) Individuals(ctx context.Context, frn string) (Envelope, error) {
	return c.getEnvelope(ctx, c.firmPath(frn, "individuals"))
}

func (c *Client) Permissions(ctx context.Context, frn string) (Envelope, error) {
	return c.getEnvelope(ctx, c.firmPath(frn, "permissions"))
}

func (c *Client) Address(ctx context.Context, frn string) (Envelope, error) {
	return c.getEnvelope(ctx, c.firmPath(frn, "address"))
}

func (c *Client) Requirements(ctx context.Context, frn string) (Envelope, error) {
	return c.getEnvelope(ctx, c.firmPath(frn, "requirements"))
}

func (c *Client) Regulators(ctx context.Context, frn string) (Envelope, error) {
	return c.getEnvelope(ctx, c.firmPath(frn, "regulators"))
}

func (c *Client) Passports(ctx context.Context, frn string) (Envelope, error) {
	return c.getEnvelope(ctx, c.firmPath(frn, "passports"))
}

func (c *Client) Disciplinary(ctx context.Context, frn string) (Envelope, error) {
	return c.getEnvelope(ctx, c.firmPath(frn, "disciplinary"))
}

func (c *Client) Waivers(ctx context.Context, frn string) (Envelope, error) {
	return c.getEnvelope(ctx, c.firmPath(frn, "waivers"))
}

func (c *Client) TradingNames(ctx context.Context, frn string) (Envelope, error) {
	return c.getEnvelope(ctx, c.firmPath(frn, "names"))
}

// Individual fetches one person on the register by individual reference
// number.
func (c *Client) Individual(ctx context.Context, irn string) (json.RawMessage, error) {
	return c.get(ctx, "/api/individual/"+url.PathEscape(irn))
}

func (c *Client) firmPath(frn, sub string) string {
	p := "/api/firm/" + url.PathEscape(frn)
	if sub != "" {
		p += "/" + sub
	}
	return p
}

func (c *Client) getEnvelope(ctx context.Context, path string) (Envelope, error) {
	body, err := c.get(ctx, path)
	if err != nil {
		return Envelope{}, err
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, derrors.Wrap(err, derrors.CodeUpstream, "malformed register reply")
	}
	return env, nil
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "build register request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, derrors.Wrap(err, derrors.CodeUpstreamTimeout, "register timed out")
		}
		return nil, derrors.Wrap(err, derrors.CodeUpstream, "register unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeUpstream, "read register reply")
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, derrors.New(derrors.CodeNotFound, "not found on register")
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.WarnContext(ctx, "register error reply",
			"path", path, "status", resp.StatusCode)
		return nil, derrors.New(derrors.CodeUpstream,
			fmt.Sprintf("register returned status %d", resp.StatusCode))
	}
	return body, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue) && ue.Timeout()
}
