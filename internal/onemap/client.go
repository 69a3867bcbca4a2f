package onemap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dhanyyudi/onemap-building-sg/internal/models"
	"golang.org/x/time/rate"
)

// BaseURL is the OneMap elastic search endpoint.
const BaseURL = "https://www.onemap.gov.sg/api/common/elastic/search"

// DefaultTimeout is the per-request timeout applied by the default HTTP client.
const DefaultTimeout = 60 * time.Second

// HTTPClient defines the interface for making HTTP requests.
// This allows for easy mocking in tests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client queries the OneMap search API. It is safe for concurrent use.
type Client struct {
	client  HTTPClient    // HTTP client for making requests
	baseURL string        // Base URL for the OneMap search API
	log     *slog.Logger  // Logger for logging operations
	limiter *rate.Limiter // Optional rate limiter, nil disables limiting
}

// StatusError is returned when the API responds with a non-200 status.
// Its message matches the reason format used in the permanent-failure log.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Code)
}

// NewClient creates a OneMap client with its own HTTP client using the given
// per-request timeout. A rateLimit of 0 disables client-side rate limiting.
func NewClient(timeout time.Duration, rateLimit int, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var limiter *rate.Limiter
	if rateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(rateLimit), rateLimit)
	}

	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: BaseURL,
		log:     log,
		limiter: limiter,
	}
}

// NewClientWithHTTP creates a client around a custom HTTP client.
// Useful for testing with mocked transports.
func NewClientWithHTTP(client HTTPClient, baseURL string, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = BaseURL
	}
	return &Client{
		client:  client,
		baseURL: baseURL,
		log:     log,
	}
}

// Search fetches one result page for a postal code.
// It returns a *StatusError for non-200 responses.
func (c *Client) Search(ctx context.Context, postalCode string, page int) (*models.SearchResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
		}
	}

	reqURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}

	query := reqURL.Query()
	query.Set("searchVal", postalCode)
	query.Set("returnGeom", "Y")
	query.Set("getAddrDetails", "Y")
	query.Set("pageNum", strconv.Itoa(page))
	reqURL.RawQuery = query.Encode()

	c.log.DebugContext(ctx, "OneMap search request", "postal_code", postalCode, "page", page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var result models.SearchResponse
	if err = json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	return &result, nil
}

// IsTimeout reports whether err was caused by a request timeout, the only
// class of failure the downloader retries.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
