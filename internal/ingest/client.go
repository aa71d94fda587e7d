package ingest

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/lexfield/regscreen/pkg/config"
)

// Client fetches register pages over HTTP. Requests are rate limited
// so a sync pass never hammers the public register.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	userAgent  string
}

// NewClient creates a rate-limited register client from the feed
// settings in the application config.
func NewClient(cfg *config.Config) *Client {
	rps := cfg.FeedRateLimit
	if rps <= 0 {
		rps = 2.0
	}
	timeout := cfg.FeedTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		baseURL:   strings.TrimRight(cfg.FeedBaseURL, "/"),
		userAgent: "regscreen-corpus-sync/1.0",
	}
}

// Get performs a rate-limited GET against the register and returns the
// parsed document.
func (c *Client) Get(ctx context.Context, path string) (*goquery.Document, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, path)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML for %s: %w", path, err)
	}
	return doc, nil
}

// Health checks that the register answers at all
func (c *Client) Health(ctx context.Context) error {
	_, err := c.Get(ctx, "/")
	return err
}

// Close releases idle connections
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
