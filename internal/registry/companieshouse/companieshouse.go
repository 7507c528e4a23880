// Package companieshouse is the client for the companies registry. Search
// and company lookup only; the company reply bundles profile, officers, PSC
// and filing history in one document.
package companieshouse

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

// ItemList is a registry sub-collection wrapper, e.g. {"items": [...]}.
type ItemList struct {
	Items []json.RawMessage `json:"items"`
}

// CompanyReply is the combined company document.
type CompanyReply struct {
	Profile       json.RawMessage `json:"profile"`
	Officers      *ItemList       `json:"officers"`
	PSC           *ItemList       `json:"psc"`
	FilingHistory *ItemList       `json:"filing_history"`
}

// Client talks to the registry at a fixed base URL.
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

// New builds a registry client. timeout bounds every call.
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

// Search queries the registry. itemsPerPage defaults to 10. The reply is
// returned verbatim.
func (c *Client) Search(ctx context.Context, query string, itemsPerPage int) (json.RawMessage, error) {
	if itemsPerPage <= 0 {
		itemsPerPage = 10
	}
	params := url.Values{
		"q":              {query},
		"items_per_page": {strconv.Itoa(itemsPerPage)},
	}
	return c.get(ctx, "/api/companies/search?"+params.Encode())
}

// Company fetches the combined company document by registration number.
func (c *Client) Company(ctx context.Context, companyNumber string) (CompanyReply, error) {
	body, err := c.get(ctx, "/api/companies/"+url.PathEscape(companyNumber))
	if err != nil {
		return CompanyReply{}, err
	}
	var reply CompanyReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return CompanyReply{}, derrors.Wrap(err, derrors.CodeUpstream, "malformed registry reply")
	}
	return reply, nil
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "build registry request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, derrors.Wrap(err, derrors.CodeUpstreamTimeout, "registry timed out")
		}
		return nil, derrors.Wrap(err, derrors.CodeUpstream, "registry unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeUpstream, "read registry reply")
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, derrors.New(derrors.CodeNotFound, "company not found")
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.WarnContext(ctx, "registry error reply",
			"path", path, "status", resp.StatusCode)
		return nil, derrors.New(derrors.CodeUpstream,
			fmt.Sprintf("registry returned status %d", resp.StatusCode))
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
