package fetcher_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kraklabs/crawlcache-core/internal/fetcher"
	"github.com/kraklabs/crawlcache-core/internal/rategovernor"
)

func TestHtmlFetcher_RedirectChainIsFollowedAndRecorded(t *testing.T) {
	var finalURL string
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer final.Close()
	finalURL = final.URL

	hop := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, finalURL, http.StatusFound)
	}))
	defer hop.Close()

	sink := &mockMetadataSink{}
	f := fetcher.NewHtmlFetcher(sink)

	fetchUrl, err := url.Parse(hop.URL)
	require.NoError(t, err)

	retryParam := createTestRetryParam(1)
	result, fetchErr := f.Fetch(context.Background(), 0, fetcher.NewFetchParam(*fetchUrl, "test-user-agent"), retryParam)
	require.Nil(t, fetchErr)
	require.Equal(t, []string{hop.URL}, result.RedirectChain())
}

func TestHtmlFetcher_RedirectLoopHitsLimit(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, server.URL+"/", http.StatusFound)
	})

	sink := &mockMetadataSink{}
	f := fetcher.NewHtmlFetcher(sink)

	fetchUrl, err := url.Parse(server.URL)
	require.NoError(t, err)

	retryParam := createTestRetryParam(1)
	_, fetchErr := f.Fetch(context.Background(), 0, fetcher.NewFetchParam(*fetchUrl, "test-user-agent"), retryParam)
	require.NotNil(t, fetchErr)
}

func TestHtmlFetcher_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := &mockMetadataSink{}
	backoff := rategovernor.NewBackoff(time.Hour, time.Hour)
	f := fetcher.NewHtmlFetcherWithBackoff(sink, backoff)

	fetchUrl, err := url.Parse(server.URL)
	require.NoError(t, err)

	retryParam := createTestRetryParam(1)
	param := fetcher.NewFetchParam(*fetchUrl, "test-user-agent")

	for i := 0; i < 6; i++ {
		_, fetchErr := f.Fetch(context.Background(), 0, param, retryParam)
		require.NotNil(t, fetchErr)
	}

	require.True(t, backoff.InCooldown(fetchUrl.Hostname()), "repeated 5xx failures should trip the breaker and put the host into cool-down")
}
