package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcherFetchesPosting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tailorbatch/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("<html><head><title> Senior Go Engineer </title></head><body>distributed systems</body></html>"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPFetcherConfig{RequestTimeout: 5 * time.Second})
	p, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, srv.URL, p.Ref)
	assert.Equal(t, "Senior Go Engineer", p.Title)
	assert.Contains(t, p.Body, "distributed systems")
}

func TestHTTPFetcherNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPFetcherConfig{})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 410")
}

func TestHTTPFetcherContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	f := NewHTTPFetcher(HTTPFetcherConfig{})
	_, err := f.Fetch(ctx, srv.URL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPFetcherRateLimitWaitsOnContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("posting"))
	}))
	defer srv.Close()

	// One request per hour: the second fetch must block on the limiter
	// until its context expires.
	f := NewHTTPFetcher(HTTPFetcherConfig{RateLimit: 1.0 / 3600})

	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = f.Fetch(ctx, srv.URL)
	require.Error(t, err)
}

func TestHTTPFetcherUntitledPosting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain text posting"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPFetcherConfig{})
	p, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Empty(t, p.Title)
}
