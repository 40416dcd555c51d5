// Package httpsource holds the HTTP plumbing shared by the feed and lookup
// fetchers.
package httpsource

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"SalesAnalytics/internal/domain"
)

const userAgent = "SalesAnalytics/1.0"

// NewClient returns a client whose dial and TLS handshake are bounded by
// connectTimeout. Overall request time is bounded per call through context.
func NewClient(connectTimeout time.Duration) *http.Client {
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}).DialContext
	transport.TLSHandshakeTimeout = connectTimeout
	return &http.Client{Transport: transport}
}

// ValidateURL accepts only absolute http(s) addresses.
func ValidateURL(source domain.SourceName, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return domain.NewSourceError(source, raw, domain.KindConfig, fmt.Errorf("parse url: %w", err))
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.NewSourceError(source, raw, domain.KindConfig, fmt.Errorf("unsupported url %q", raw))
	}
	return nil
}

// Response is an open body plus the cancel func of its deadline.
type Response struct {
	*http.Response
	cancel context.CancelFunc
}

// Close releases the body and the request deadline.
func (r *Response) Close() error {
	defer r.cancel()
	return r.Body.Close()
}

// Get issues a GET bounded by timeout (zero disables the deadline). Network
// failures and non-2xx statuses come back as transient source errors.
func Get(ctx context.Context, client *http.Client, source domain.SourceName, rawURL string, timeout time.Duration) (*Response, error) {
	return do(ctx, client, http.MethodGet, source, rawURL, timeout)
}

// Head issues a HEAD request bounded by timeout.
func Head(ctx context.Context, client *http.Client, source domain.SourceName, rawURL string, timeout time.Duration) (*Response, error) {
	return do(ctx, client, http.MethodHead, source, rawURL, timeout)
}

func do(ctx context.Context, client *http.Client, method string, source domain.SourceName, rawURL string, timeout time.Duration) (*Response, error) {
	if err := ValidateURL(source, rawURL); err != nil {
		return nil, err
	}

	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		cancel()
		return nil, domain.NewSourceError(source, rawURL, domain.KindConfig, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, Transient(source, rawURL, fmt.Errorf("request %s: %w", method, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		cancel()
		return nil, Transient(source, rawURL, fmt.Errorf("unexpected status %s", resp.Status))
	}

	return &Response{Response: resp, cancel: cancel}, nil
}

// Transient wraps err as a retryable source error.
func Transient(source domain.SourceName, rawURL string, err error) error {
	return domain.NewSourceError(source, rawURL, domain.KindTransient, err)
}

// IsTimeout reports whether err came from a deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
