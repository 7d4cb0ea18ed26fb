package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/trend-radar/internal/httputil"
)

func newFetcher() *Fetcher {
	return New(Options{Retry: httputil.Policy{MaxRetries: 2, BaseDelay: time.Millisecond}})
}

func TestGet_HTML(t *testing.T) {
	var gotUA, gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotHeader = r.Header.Get("X-Trace")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title> Agent
			Market </title></head><body><nav>menu</nav><main><h1>Report</h1><p>Market grew 40%</p></main></body></html>`))
	}))
	defer server.Close()

	f := New(Options{Headers: map[string]string{"X-Trace": "abc"}})
	page, err := f.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, server.URL, page.URL)
	assert.Equal(t, "Agent Market", page.Title)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Contains(t, page.HTML, "<h1>Report</h1>")
	assert.Equal(t, "ReportMarket grew 40%", page.Text)
	assert.NotContains(t, page.Text, "menu")
	assert.Equal(t, defaultUserAgent, gotUA)
	assert.Equal(t, "abc", gotHeader)
}

func TestGet_FollowsRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("moved"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	page, err := newFetcher().Get(context.Background(), server.URL+"/old")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/new", page.URL)
	assert.Equal(t, "moved", page.Text)
}

func TestGet_PlainText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("  line one \n\n line two "))
	}))
	defer server.Close()

	page, err := newFetcher().Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", page.Text)
	assert.Empty(t, page.Title)
}

func TestGet_InvalidURL(t *testing.T) {
	for _, u := range []string{"not-a-valid-url", "ftp://example.com/file", "http://"} {
		t.Run(u, func(t *testing.T) {
			_, err := newFetcher().Get(context.Background(), u)
			var fetchErr *Error
			require.ErrorAs(t, err, &fetchErr)
			assert.Equal(t, "parse", fetchErr.Op)
		})
	}
}

func TestGet_Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("gone"))
	}))
	defer server.Close()

	page, err := newFetcher().Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStatus)
	require.NotNil(t, page)
	assert.Equal(t, http.StatusNotFound, page.StatusCode)
	assert.Equal(t, "gone", page.HTML)
	assert.Contains(t, err.Error(), "404")
}

func TestGet_RetriesUnavailable(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("<p>ok</p>"))
	}))
	defer server.Close()

	page, err := newFetcher().Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", page.Text)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGet_Cancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("late"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newFetcher().Get(ctx, server.URL)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsHTML(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"", true},
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"application/xhtml+xml", true},
		{"text/plain; charset=utf-8", false},
		{"application/json", false},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			assert.Equal(t, tt.want, isHTML(tt.contentType))
		})
	}
}
