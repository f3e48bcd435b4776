package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultPageSize  = 100
	syncPath         = "/transactions/sync"
	accountsPath     = "/accounts/get"
	maxErrorBodySize = 4096
)

var (
	plaidMeter       = otel.Meter("spendsync/plaid")
	plaidRequests, _ = plaidMeter.Int64Counter("plaid.requests.total", metric.WithDescription("Provider requests by endpoint and outcome"))
)

type Config struct {
	ClientID          string
	Secret            string
	BaseURL           string
	PageSize          int
	RequestsPerSecond float64
}

// Client handles communication with the Plaid API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	cfg        Config
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}

	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		burst = max(1, int(cfg.RequestsPerSecond))
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(limit, burst),
		cfg:     cfg,
	}
}

// SyncTransactions fetches one page of changes since cursor. An empty cursor
// starts from the beginning of the item's history.
func (c *Client) SyncTransactions(ctx context.Context, accessToken, cursor string) (*SyncResponse, error) {
	req := SyncRequest{
		ClientID:    c.cfg.ClientID,
		Secret:      c.cfg.Secret,
		AccessToken: accessToken,
		Cursor:      cursor,
		Count:       c.cfg.PageSize,
		Options:     SyncOptions{IncludePersonalFinanceCategory: true},
	}

	var resp SyncResponse
	if err := c.post(ctx, syncPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetAccounts fetches the current account snapshot of an item.
func (c *Client) GetAccounts(ctx context.Context, accessToken string) (*AccountsResponse, error) {
	req := AccountsRequest{
		ClientID:    c.cfg.ClientID,
		Secret:      c.cfg.Secret,
		AccessToken: accessToken,
	}

	var resp AccountsResponse
	if err := c.post(ctx, accountsPath, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) (err error) {
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		plaidRequests.Add(ctx, 1, metric.WithAttributes(
			attribute.String("endpoint", path),
			attribute.String("outcome", outcome),
		))
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &Error{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.ErrorCode == "" {
			if len(respBody) > maxErrorBodySize {
				respBody = respBody[:maxErrorBodySize]
			}
			return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respBody))
		}
		return apiErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
