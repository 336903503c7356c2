// Package httpapi is a connector for providers that expose the platform's
// normalized records over a plain JSON REST API. It serves every capability
// (accounting, bank, both push directions), so one registration covers any
// provider speaking the wire format.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/vipul43/ledger-sync-worker/internal/connector"
)

// Config keys read by this connector.
const (
	KeyBaseURL           = "baseUrl"
	KeyAPIKey            = "apiKey"
	KeyClientID          = "clientId"
	KeyClientSecret      = "clientSecret"
	KeyTokenURL          = "tokenUrl"
	KeyScopes            = "scopes"
	KeyRequestsPerSecond = "requestsPerSecond"
)

const (
	defaultRequestsPerSecond = 5.0
	defaultPageSize          = 200
	maxPages                 = 1000
)

var (
	_ connector.AccountingConnector = (*Client)(nil)
	_ connector.BankConnector       = (*Client)(nil)
	_ connector.InvoicePusher       = (*Client)(nil)
	_ connector.TransactionPusher   = (*Client)(nil)
)

type Client struct {
	httpClient *http.Client

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiters:   make(map[string]*rate.Limiter),
	}
}

// NewClientWithHTTP uses the given http.Client as the base transport.
func NewClientWithHTTP(hc *http.Client) *Client {
	c := NewClient()
	c.httpClient = hc
	return c
}

type settings struct {
	baseURL string
	apiKey  string
	oauth   *clientcredentials.Config
	rps     float64
}

func parseSettings(cfg connector.Config) (*settings, error) {
	base, ok := cfg.String(KeyBaseURL)
	if !ok {
		return nil, connector.Fatal(fmt.Errorf("invalid configuration: %s is required", KeyBaseURL))
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, connector.Fatal(fmt.Errorf("invalid configuration: bad %s %q", KeyBaseURL, base))
	}

	s := &settings{
		baseURL: strings.TrimRight(base, "/"),
		rps:     defaultRequestsPerSecond,
	}
	s.apiKey, _ = cfg.String(KeyAPIKey)

	clientID, hasID := cfg.String(KeyClientID)
	if hasID {
		secret, _ := cfg.String(KeyClientSecret)
		tokenURL, ok := cfg.String(KeyTokenURL)
		if !ok {
			return nil, connector.Fatal(fmt.Errorf("invalid configuration: %s is required with %s", KeyTokenURL, KeyClientID))
		}
		var scopes []string
		if raw, ok := cfg.String(KeyScopes); ok {
			scopes = strings.Fields(raw)
		}
		s.oauth = &clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: secret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
		}
	}

	if rps, ok := cfg.Float(KeyRequestsPerSecond); ok && rps > 0 {
		s.rps = rps
	}
	return s, nil
}

func (c *Client) limiter(s *settings) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.limiters[s.baseURL]
	if !ok {
		l = rate.NewLimiter(rate.Limit(s.rps), int(s.rps)+1)
		c.limiters[s.baseURL] = l
	}
	return l
}

func (c *Client) clientFor(ctx context.Context, s *settings) *http.Client {
	if s.oauth == nil {
		return c.httpClient
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	return s.oauth.Client(ctx)
}

func (c *Client) do(ctx context.Context, s *settings, method, path string, query url.Values, body, out interface{}) error {
	if err := c.limiter(s).Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	endpoint := s.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := c.clientFor(ctx, s).Do(req)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return fmt.Errorf("%s %s: authentication failed: %s", method, path, re.ErrorCode)
		}
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(method, path, resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}

// statusError phrases HTTP failures so the sync engine's retry classifier
// can tell permanent rejections from transient ones.
func statusError(method, path string, status int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	if len(detail) > 200 {
		detail = detail[:200]
	}

	var reason string
	switch status {
	case http.StatusUnauthorized:
		reason = "authentication failed"
	case http.StatusForbidden:
		reason = "permission denied"
	case http.StatusNotFound:
		reason = "not found"
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		reason = "invalid configuration"
	case http.StatusTooManyRequests:
		reason = "rate limited"
	default:
		reason = "server error"
	}
	return fmt.Errorf("%s %s: %s (HTTP %d): %s", method, path, reason, status, detail)
}

type pageResponse[T any] struct {
	Data       []T    `json:"data"`
	NextCursor string `json:"nextCursor"`
}

type pushResponse struct {
	Results []connector.PushResult `json:"results"`
}

func fetchAll[T any](ctx context.Context, c *Client, s *settings, path string, since, until time.Time, opts connector.FetchOptions) ([]T, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var all []T
	cursor := ""
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		q.Set("since", since.UTC().Format(time.RFC3339))
		q.Set("until", until.UTC().Format(time.RFC3339))
		q.Set("limit", strconv.Itoa(pageSize))
		if opts.ClientCompanyID != nil {
			q.Set("clientCompanyId", *opts.ClientCompanyID)
		}
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		var resp pageResponse[T]
		if err := c.do(ctx, s, http.MethodGet, path, q, nil, &resp); err != nil {
			return nil, err
		}
		all = append(all, resp.Data...)

		if resp.NextCursor == "" || resp.NextCursor == cursor {
			return all, nil
		}
		cursor = resp.NextCursor
	}
	return all, nil
}

func (c *Client) TestConnection(ctx context.Context, cfg connector.Config) (connector.TestResult, error) {
	s, err := parseSettings(cfg)
	if err != nil {
		return connector.TestResult{Success: false, Message: err.Error()}, nil
	}
	if err := c.do(ctx, s, http.MethodGet, "/health", nil, nil, nil); err != nil {
		return connector.TestResult{Success: false, Message: err.Error()}, nil
	}
	return connector.TestResult{Success: true, Message: "connection ok"}, nil
}

func (c *Client) FetchInvoices(ctx context.Context, cfg connector.Config, since, until time.Time, opts connector.FetchOptions) ([]connector.NormalizedInvoice, error) {
	s, err := parseSettings(cfg)
	if err != nil {
		return nil, err
	}
	return fetchAll[connector.NormalizedInvoice](ctx, c, s, "/invoices", since, until, opts)
}

func (c *Client) FetchTransactions(ctx context.Context, cfg connector.Config, since, until time.Time, opts connector.FetchOptions) ([]connector.NormalizedBankTransaction, error) {
	s, err := parseSettings(cfg)
	if err != nil {
		return nil, err
	}
	return fetchAll[connector.NormalizedBankTransaction](ctx, c, s, "/transactions", since, until, opts)
}

func (c *Client) PushInvoices(ctx context.Context, invoices []connector.NormalizedInvoice, cfg connector.Config) ([]connector.PushResult, error) {
	s, err := parseSettings(cfg)
	if err != nil {
		return nil, err
	}
	var resp pushResponse
	body := map[string]interface{}{"invoices": invoices}
	if err := c.do(ctx, s, http.MethodPost, "/invoices", nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) PushTransactions(ctx context.Context, txns []connector.NormalizedBankTransaction, cfg connector.Config) ([]connector.PushResult, error) {
	s, err := parseSettings(cfg)
	if err != nil {
		return nil, err
	}
	var resp pushResponse
	body := map[string]interface{}{"transactions": txns}
	if err := c.do(ctx, s, http.MethodPost, "/transactions", nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}
