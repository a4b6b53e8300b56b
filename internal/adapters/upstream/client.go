// Package upstream implements the HTTP transport to the trip-planning API.
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/transitclock/refresher/internal/ports/out/transport"
)

// DefaultTimeout bounds a single upstream request.
const DefaultTimeout = 15 * time.Second

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 4 << 20

// Client is a transport.Getter over net/http.
type Client struct {
	httpClient *http.Client
	userAgent  string
}

// NewClient returns a client with the given timeout (DefaultTimeout when zero).
func NewClient(timeout time.Duration, userAgent string) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
	}
}

// NewClientWithHTTP wraps an existing *http.Client, e.g. one from httptest.
func NewClientWithHTTP(c *http.Client, userAgent string) *Client {
	return &Client{httpClient: c, userAgent: userAgent}
}

func (c *Client) Get(ctx context.Context, url string, header http.Header) (transport.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return transport.Response{}, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transport.Response{}, fmt.Errorf("GET %s: %w", req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return transport.Response{}, fmt.Errorf("read %s: %w", req.URL.Redacted(), err)
	}
	return transport.Response{StatusCode: resp.StatusCode, Body: body}, nil
}
