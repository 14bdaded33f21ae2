package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const CompletedMessage = "Image processing completed successfully."

type Payload struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	OutputCSV string `json:"output_csv,omitempty"`
	Message   string `json:"message"`
}

type WebhookNotifier struct {
	client *http.Client
	log    *zap.Logger
}

func NewWebhookNotifier(timeout time.Duration, log *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Notify POSTs payload as JSON to url once. Callers treat the returned error
// as informational only.
func (n *WebhookNotifier) Notify(ctx context.Context, url string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}

	n.log.Info("Webhook triggered",
		zap.String("request_id", payload.RequestID),
		zap.String("url", url),
		zap.Int("status_code", resp.StatusCode))
	return nil
}
