package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tallyhq/tally/internal/usecase"
)

// WebhookSink implements usecase.AlertSink by POSTing discrepancies as
// JSON to an operator-configured endpoint.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a new WebhookSink.
func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type webhookPayload struct {
	AccountID  string    `json:"account_id"`
	Expected   string    `json:"expected"`
	Actual     string    `json:"actual"`
	Delta      string    `json:"delta"`
	DetectedAt time.Time `json:"detected_at"`
}

// Notify delivers the discrepancy to the webhook endpoint.
func (s *WebhookSink) Notify(ctx context.Context, d usecase.Discrepancy) error {
	body, err := json.Marshal(webhookPayload{
		AccountID:  d.AccountID,
		Expected:   d.Expected.String(),
		Actual:     d.Actual.String(),
		Delta:      d.Delta.String(),
		DetectedAt: d.DetectedAt,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}
