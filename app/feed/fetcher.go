package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultFetchTimeout = 30 * time.Second
	maxDocumentSize     = 10 << 20
)

type FetcherOptions struct {
	UserAgent string
	Timeout   time.Duration
	// ProxyURL is prepended to every target URL, e.g. "https://proxy.example.com/".
	ProxyURL string
	// MaxBytes caps the document size, 10 MB when zero.
	MaxBytes int64
	Client   *http.Client
}

// HTTPFetcher returns the raw body of a feed URL.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	proxyURL  string
	timeout   time.Duration
	maxBytes  int64
}

func NewHTTPFetcher(opts FetcherOptions) *HTTPFetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = maxDocumentSize
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 5,
			},
		}
	}

	return &HTTPFetcher{
		client:    client,
		userAgent: opts.UserAgent,
		proxyURL:  opts.ProxyURL,
		timeout:   timeout,
		maxBytes:  maxBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, f.proxyURL+url, nil)
	if err != nil {
		return nil, &TransportError{URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: url, Err: fmt.Errorf("failed to fetch feed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{URL: url, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &TransportError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if int64(len(data)) > f.maxBytes {
		return nil, &TransportError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("document too large: more than %d bytes", f.maxBytes)}
	}

	if len(data) == 0 {
		return nil, &TransportError{URL: url, StatusCode: resp.StatusCode, Err: errors.New("empty response body")}
	}

	return data, nil
}
