package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetchReturnsBody(t *testing.T) {
	var gotUserAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, "<rss/>")
	}))
	defer srv.Close()

	fetcher := NewHTTPFetcher(FetcherOptions{UserAgent: "RSS River/test"})
	data, err := fetcher.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if string(data) != "<rss/>" {
		t.Errorf("Expected body '<rss/>', got '%s'", string(data))
	}
	if gotUserAgent != "RSS River/test" {
		t.Errorf("Expected user agent 'RSS River/test', got '%s'", gotUserAgent)
	}
}

func TestFetchThroughProxyPrefix(t *testing.T) {
	var gotPath string
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, "<rss/>")
	}))
	defer proxy.Close()

	fetcher := NewHTTPFetcher(FetcherOptions{ProxyURL: proxy.URL + "/"})
	if _, err := fetcher.Fetch(context.Background(), "https://example.com/feed.xml"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !strings.HasSuffix(gotPath, "example.com/feed.xml") {
		t.Errorf("Expected proxied path to carry the target URL, got '%s'", gotPath)
	}
}

func TestFetchTransportErrors(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		statusCode int
	}{
		{
			name:       "not found",
			handler:    func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) },
			statusCode: http.StatusNotFound,
		},
		{
			name:       "server error",
			handler:    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
			statusCode: http.StatusBadGateway,
		},
		{
			name:       "empty body",
			handler:    func(w http.ResponseWriter, r *http.Request) {},
			statusCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewHTTPFetcher(FetcherOptions{}).Fetch(context.Background(), srv.URL)

			var transportErr *TransportError
			if !errors.As(err, &transportErr) {
				t.Fatalf("Expected *TransportError, got %T: %v", err, err)
			}
			if transportErr.StatusCode != tt.statusCode {
				t.Errorf("Expected status %d, got %d", tt.statusCode, transportErr.StatusCode)
			}
			if transportErr.URL != srv.URL {
				t.Errorf("Expected URL '%s', got '%s'", srv.URL, transportErr.URL)
			}
		})
	}
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	fetcher := NewHTTPFetcher(FetcherOptions{Timeout: 50 * time.Millisecond})
	_, err := fetcher.Fetch(context.Background(), srv.URL)

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("Expected *TransportError on timeout, got %T: %v", err, err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded in chain, got: %v", err)
	}
}

func TestFetchUnreachableHost(t *testing.T) {
	_, err := NewHTTPFetcher(FetcherOptions{}).Fetch(context.Background(), "http://127.0.0.1:1/feed")

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("Expected *TransportError, got %T: %v", err, err)
	}
}

func TestFetchRejectsOversizedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 65))
	}))
	defer srv.Close()

	fetcher := NewHTTPFetcher(FetcherOptions{MaxBytes: 64})
	_, err := fetcher.Fetch(context.Background(), srv.URL)

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("Expected TransportError, got: %v", err)
	}
	if !strings.Contains(err.Error(), "document too large") {
		t.Errorf("Expected 'document too large' error, got: %v", err)
	}
}

func TestFetchAcceptsDocumentAtLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("x", 64))
	}))
	defer srv.Close()

	data, err := NewHTTPFetcher(FetcherOptions{MaxBytes: 64}).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(data) != 64 {
		t.Errorf("Expected 64 bytes, got %d", len(data))
	}
}
