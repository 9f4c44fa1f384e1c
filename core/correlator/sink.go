package correlator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"predictive-node/core/models"
)

// Sink receives every annotated result, typically a downstream collector
// or dashboard ingest endpoint.
type Sink interface {
	Deliver(ctx context.Context, result models.AnnotatedResult) error
}

// HTTPSink posts annotated results to a fixed URL as JSON.
type HTTPSink struct {
	url    string
	client *http.Client
}

// NewHTTPSink creates a sink targeting the given URL.
func NewHTTPSink(url string) *HTTPSink {
	return &HTTPSink{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSink) Deliver(ctx context.Context, result models.AnnotatedResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post result to sink: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sink rejected result: status %d", resp.StatusCode)
	}
	return nil
}
