package poller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func statusServer(t *testing.T, code int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPStatusFetcherReadsStatus(t *testing.T) {
	server := statusServer(t, http.StatusOK, `{"status":"pending"}`)

	status, err := NewHTTPStatusFetcher(server.URL, time.Second).FetchStatus(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusPending {
		t.Fatalf("expected pending, got %s", status)
	}
}

func TestHTTPStatusFetcherMalformedBody(t *testing.T) {
	for _, body := range []string{`not json`, `{}`, `{"status":""}`} {
		server := statusServer(t, http.StatusOK, body)
		_, err := NewHTTPStatusFetcher(server.URL, time.Second).FetchStatus(context.Background())
		if !errors.Is(err, ErrMalformedStatus) {
			t.Fatalf("body %q: expected ErrMalformedStatus, got %v", body, err)
		}
	}
}

func TestHTTPStatusFetcherServerErrorIsRetryable(t *testing.T) {
	server := statusServer(t, http.StatusBadGateway, `upstream down`)

	_, err := NewHTTPStatusFetcher(server.URL, time.Second).FetchStatus(context.Background())
	if err == nil || errors.Is(err, ErrMalformedStatus) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestPollerWithHTTPFetcher(t *testing.T) {
	server := statusServer(t, http.StatusOK, `{"status":"confirmed"}`)
	redirected := make(chan struct{}, 1)

	p := New(NewHTTPStatusFetcher(server.URL, time.Second), fastConfig(), func() { redirected <- struct{}{} })
	p.Start(context.Background())
	if state := waitFor(t, p); state != StateConfirmed {
		t.Fatalf("expected confirmed, got %s", state)
	}
	select {
	case <-redirected:
	default:
		t.Fatal("expected redirect callback")
	}
}
