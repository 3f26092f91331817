package engine

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Fetcher performs the pipeline's outbound HTTP: page GETs through the page
// cache with exponential backoff, and JSON POSTs with stealth retries.
type Fetcher struct {
	client *http.Client
	cache  *PageCache
}

// NewFetcher wraps client; a nil client gets a scraping-tuned default. cache
// may be nil.
func NewFetcher(client *http.Client, cache *PageCache, timeout time.Duration) *Fetcher {
	if client == nil {
		client = newFetchClient(timeout)
	}
	return &Fetcher{client: client, cache: cache}
}

// newFetchClient creates an HTTP client with proper settings for web scraping.
func newFetchClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 5,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 15 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			return nil
		},
	}
}

// FetchPage returns the body at url, serving from the page cache when possible.
func (f *Fetcher) FetchPage(ctx context.Context, url string) ([]byte, error) {
	if body, ok := f.cache.Get(ctx, url); ok {
		return body, nil
	}
	body, err := f.FetchPageFresh(ctx, url)
	if err != nil {
		return nil, err
	}
	f.cache.Set(ctx, url, body)
	return body, nil
}

// FetchPageFresh always goes to the network. The result is not cached.
func (f *Fetcher) FetchPageFresh(ctx context.Context, url string) ([]byte, error) {
	metrics.FetchRequests.Add(1)
	resp, err := f.getWithRetry(ctx, url)
	if err != nil {
		metrics.FetchErrors.Add(1)
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	body, err := readResponseBody(resp)
	if err != nil {
		metrics.FetchErrors.Add(1)
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}

// getWithRetry performs an HTTP GET with exponential backoff. Transport errors
// and non-retryable statuses stop immediately.
func (f *Fetcher) getWithRetry(ctx context.Context, url string) (*http.Response, error) {
	operation := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		setPageHeaders(req)

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if retryablePageStatus(resp.StatusCode) {
			resp.Body.Close()
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}
		return resp, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 1 * time.Second
	bo.MaxInterval = 10 * time.Second

	return backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(3), backoff.WithMaxElapsedTime(30*time.Second))
}

// PostJSON marshals payload, POSTs it to endpoint with the given headers and
// returns the response body. Retryable statuses are retried with stealth's
// default policy.
func (f *Fetcher) PostJSON(ctx context.Context, endpoint string, payload any, headers map[string]string) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	metrics.FetchRequests.Add(1)

	resp, err := retryPost(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", UserAgentChrome)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		return f.client.Do(req)
	})
	if err != nil {
		metrics.FetchErrors.Add(1)
		return nil, fmt.Errorf("post %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := readResponseBody(resp)
	if err != nil {
		metrics.FetchErrors.Add(1)
		return nil, fmt.Errorf("read %s: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.FetchErrors.Add(1)
		return nil, fmt.Errorf("post %s: status %d", endpoint, resp.StatusCode)
	}
	return body, nil
}

// readResponseBody reads the response body, handling gzip decompression if needed.
func readResponseBody(resp *http.Response) ([]byte, error) {
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		return io.ReadAll(gz)
	}
	return io.ReadAll(resp.Body)
}
