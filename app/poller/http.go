package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const maxStatusBodyBytes = 64 << 10

type statusResponse struct {
	Status *string `json:"status"`
}

// HTTPStatusFetcher reads {"status": "..."} from a public payment status URL.
type HTTPStatusFetcher struct {
	url    string
	client *http.Client
}

func NewHTTPStatusFetcher(statusURL string, timeout time.Duration) *HTTPStatusFetcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPStatusFetcher{
		url:    strings.TrimSpace(statusURL),
		client: &http.Client{Timeout: timeout},
	}
}

func (f *HTTPStatusFetcher) FetchStatus(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBodyBytes))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	var payload statusResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedStatus, err)
	}
	if payload.Status == nil || strings.TrimSpace(*payload.Status) == "" {
		return "", fmt.Errorf("%w: missing status field", ErrMalformedStatus)
	}

	return strings.TrimSpace(*payload.Status), nil
}
