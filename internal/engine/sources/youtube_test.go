package sources

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anatolykoptev/go_ytledger/internal/engine"
)

// newTestYouTube starts a fake YouTube origin and returns a handle pointed at it.
func newTestYouTube(t *testing.T, mux *http.ServeMux) (*YouTube, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	cache := engine.NewPageCache("", time.Minute, 50, 0)
	t.Cleanup(func() { cache.Close() })
	f := engine.NewFetcher(srv.Client(), cache, 0)
	return NewYouTube(f, WithBaseURL(srv.URL)), srv
}
