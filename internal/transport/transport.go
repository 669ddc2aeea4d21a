// Package transport issues HTTP requests on behalf of protocol adapters.
// It owns connection tuning, authentication headers, ranged reads, and
// retry of transient failures.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stardustai/dataset-viewer/internal/retry"
)

// Auth carries request credentials. Either Username/Password (basic auth)
// or Token (bearer) may be set; both empty means anonymous.
type Auth struct {
	Username string
	Password string
	Token    string
}

// Client is the HTTP request primitive shared by HTTP-based adapters.
type Client struct {
	httpClient  *http.Client
	auth        Auth
	retryConfig retry.Config
}

// Config holds transport configuration.
type Config struct {
	Timeout     time.Duration
	Auth        Auth
	RetryConfig retry.Config
}

// New creates a transport client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		auth:        cfg.Auth,
		retryConfig: cfg.RetryConfig,
	}
}

func (c *Client) applyAuth(req *http.Request) {
	switch {
	case c.auth.Token != "":
		req.Header.Set("Authorization", "Bearer "+c.auth.Token)
	case c.auth.Username != "" || c.auth.Password != "":
		req.SetBasicAuth(c.auth.Username, c.auth.Password)
	}
}

// Do issues a request and returns the response. Transient failures
// (network errors, 5xx) are retried with backoff; the response body is
// the caller's to close. Non-2xx statuses are returned, not treated as
// errors; protocol adapters interpret them.
func (c *Client) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (*http.Response, error) {
	var resp *http.Response

	err := retry.Do(ctx, c.retryConfig, func() error {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rdr)
		if err != nil {
			return err
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		c.applyAuth(req)

		r, err := c.httpClient.Do(req)
		if err != nil {
			return retry.Retryable(err)
		}
		if r.StatusCode >= 500 {
			r.Body.Close()
			return retry.Retryable(fmt.Errorf("%s %s: server returned %d", method, url, r.StatusCode))
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetRange issues a GET restricted to [start, start+length) when length > 0,
// or from start to EOF when length < 0. start == 0 and length < 0 requests
// the full body with no Range header.
func (c *Client) GetRange(ctx context.Context, url string, start, length int64) (*http.Response, error) {
	headers := map[string]string{}
	switch {
	case length > 0:
		headers["Range"] = fmt.Sprintf("bytes=%d-%d", start, start+length-1)
	case start > 0:
		headers["Range"] = fmt.Sprintf("bytes=%d-", start)
	}
	return c.Do(ctx, http.MethodGet, url, headers, nil)
}

// Head issues a HEAD request.
func (c *Client) Head(ctx context.Context, url string) (*http.Response, error) {
	resp, err := c.Do(ctx, http.MethodHead, url, nil, nil)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return resp, nil
}

// SizeOf returns the total size of the resource at url. It tries HEAD
// first; servers that refuse HEAD or omit Content-Length get one ranged
// GET of the first byte, whose Content-Range carries the total.
func (c *Client) SizeOf(ctx context.Context, url string) (int64, error) {
	resp, err := c.Head(ctx, url)
	if err == nil && resp.StatusCode < 300 && resp.ContentLength >= 0 {
		return resp.ContentLength, nil
	}

	r, err := c.GetRange(ctx, url, 0, 1)
	if err != nil {
		return 0, err
	}
	defer func() {
		io.Copy(io.Discard, r.Body)
		r.Body.Close()
	}()

	if r.StatusCode == http.StatusPartialContent {
		if total, ok := parseContentRangeTotal(r.Header.Get("Content-Range")); ok {
			return total, nil
		}
	}
	if r.StatusCode < 300 && r.ContentLength >= 0 {
		return r.ContentLength, nil
	}
	return 0, fmt.Errorf("size of %s: no length in response (status %d)", url, r.StatusCode)
}

// parseContentRangeTotal extracts the total from "bytes start-end/total".
func parseContentRangeTotal(v string) (int64, bool) {
	idx := strings.LastIndexByte(v, '/')
	if idx < 0 {
		return 0, false
	}
	total, err := strconv.ParseInt(v[idx+1:], 10, 64)
	if err != nil || total < 0 {
		return 0, false
	}
	return total, true
}
