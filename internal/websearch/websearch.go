// Package websearch provides the outbound web search client used for
// queries that need evidence beyond the indexed corpus.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/finsight-ai/finsight/internal/search"
)

// Result is one external search hit.
type Result struct {
	Title       string
	URL         string
	Snippet     string
	PublishedAt time.Time
}

// Client searches the public web.
type Client interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// HTTPClient calls a search gateway that speaks a simple JSON contract:
// GET {endpoint}?q=...&limit=N with a bearer key, returning a results array.
type HTTPClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	retry      search.RetryPolicy
}

// NewHTTPClient creates a gateway client.
func NewHTTPClient(endpoint, apiKey string, retry search.RetryPolicy) *HTTPClient {
	if retry.MaxAttempts == 0 {
		retry = search.DefaultRetryPolicy()
	}
	return &HTTPClient{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		retry:      retry,
	}
}

type gatewayResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet"`
	PublishedAt string `json:"published_at"`
}

type gatewayResponse struct {
	Results []gatewayResult `json:"results"`
}

// Search queries the gateway, retrying transient failures.
func (c *HTTPClient) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("websearch: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	var out []Result
	err = c.retry.Do(ctx, func() error {
		results, err := c.fetch(ctx, u.String())
		if err != nil {
			return err
		}
		out = results
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("websearch: search: %w", err)
	}
	return out, nil
}

func (c *HTTPClient) fetch(ctx context.Context, rawURL string) ([]Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var gw gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&gw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	results := make([]Result, 0, len(gw.Results))
	for _, r := range gw.Results {
		res := Result{Title: r.Title, URL: r.URL, Snippet: r.Snippet}
		if r.PublishedAt != "" {
			if ts, err := time.Parse(time.RFC3339, r.PublishedAt); err == nil {
				res.PublishedAt = ts.UTC()
			}
		}
		results = append(results, res)
	}
	return results, nil
}

// NoopClient returns no results. Used when no gateway is configured.
type NoopClient struct{}

// Search returns no results.
func (NoopClient) Search(context.Context, string, int) ([]Result, error) { return nil, nil }
