// Package webhook delivers best-effort notifications to tenant-configured
// endpoints. Senders never return Go errors; every transport failure is
// folded into the Result so callers can record the outcome without their own
// control flow being disturbed.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Result is the outcome of one delivery attempt.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Sender posts a JSON payload to a URL.
type Sender interface {
	Send(ctx context.Context, url string, payload interface{}) Result
}

// HTTPSender delivers payloads over HTTP POST.
type HTTPSender struct {
	client *http.Client
	log    zerolog.Logger
}

func NewHTTPSender(timeout time.Duration, log zerolog.Logger) *HTTPSender {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSender{
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

func (s *HTTPSender) Send(ctx context.Context, url string, payload interface{}) Result {
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("marshal payload: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn().Err(err).Str("url", url).Msg("webhook delivery failed")
		return Result{Success: false, Error: err.Error()}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		msg := fmt.Sprintf("webhook endpoint returned %d", resp.StatusCode)
		s.log.Warn().Str("url", url).Int("status", resp.StatusCode).Msg("webhook delivery rejected")
		return Result{Success: false, Error: msg}
	}
	return Result{Success: true}
}
