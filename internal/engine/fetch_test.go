package engine

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestFetchPageUsesCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("<html>watch</html>"))
	}))
	defer srv.Close()

	cache := NewPageCache("", time.Minute, 10, 0)
	defer cache.Close()
	f := NewFetcher(srv.Client(), cache, 0)
	ctx := context.Background()

	for range 2 {
		body, err := f.FetchPage(ctx, srv.URL)
		if err != nil {
			t.Fatalf("FetchPage: %v", err)
		}
		if string(body) != "<html>watch</html>" {
			t.Fatalf("body = %q", body)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1", hits.Load())
	}

	if _, err := f.FetchPageFresh(ctx, srv.URL); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 2 {
		t.Errorf("fresh fetch should bypass cache, hits = %d", hits.Load())
	}
}

func TestFetchPageGzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte("compressed"))
		gz.Close()
	}))
	defer srv.Close()

	body, err := NewFetcher(srv.Client(), nil, 0).FetchPage(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "compressed" {
		t.Errorf("body = %q", body)
	}
}

func TestFetchPageNotFoundIsPermanent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := NewFetcher(srv.Client(), nil, 0).FetchPage(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 404")
	}
	if hits.Load() != 1 {
		t.Errorf("404 retried: hits = %d", hits.Load())
	}
}

func TestPostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if r.Header.Get("X-Youtube-Client-Name") != "1" {
			t.Errorf("missing custom header")
		}
		var in map[string]string
		json.NewDecoder(r.Body).Decode(&in)
		json.NewEncoder(w).Encode(map[string]string{"echo": in["q"]})
	}))
	defer srv.Close()

	body, err := NewFetcher(srv.Client(), nil, 0).PostJSON(context.Background(), srv.URL,
		map[string]string{"q": "hi"}, map[string]string{"X-Youtube-Client-Name": "1"})
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]string
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if out["echo"] != "hi" {
		t.Errorf("echo = %q", out["echo"])
	}
}

func TestFetchPageSendsBrowserHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewFetcher(srv.Client(), nil, 0)
	if _, err := f.FetchPageFresh(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}
	if got.Get("User-Agent") != UserAgentChrome {
		t.Errorf("User-Agent = %q", got.Get("User-Agent"))
	}
	if got.Get("Accept-Language") != "en-US,en;q=0.9" {
		t.Errorf("Accept-Language = %q", got.Get("Accept-Language"))
	}
	if got.Get("Cookie") != consentCookie {
		t.Errorf("Cookie = %q", got.Get("Cookie"))
	}
}
