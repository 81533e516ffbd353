package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"servermon/internal/config"
	"servermon/internal/domain"
)

type webhookPayload struct {
	Endpoint            string             `json:"endpoint"`
	CheckType           string             `json:"check_type"`
	Event               string             `json:"event"`
	Status              domain.CheckStatus `json:"status"`
	PreviousStatus      domain.CheckStatus `json:"previous_status,omitempty"`
	ConsecutiveFailures int                `json:"consecutive_failures"`
	FailureCount        int                `json:"failure_count"`
	ResponseTime        float64            `json:"response_time,omitempty"`
	ErrorMessage        string             `json:"error_message,omitempty"`
	Details             map[string]any     `json:"details,omitempty"`
	Timestamp           time.Time          `json:"timestamp"`
}

// WebhookNotifier POSTs a JSON document to a configured URL.
type WebhookNotifier struct {
	settings *config.WebhookSettings
	client   *http.Client
}

func NewWebhook(settings *config.WebhookSettings, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{}
	}
	return &WebhookNotifier{settings: settings, client: client}
}

func (w *WebhookNotifier) Name() string { return "webhook" }

func (w *WebhookNotifier) Policy() config.NotificationPolicy { return w.settings.Policy }

func (w *WebhookNotifier) Send(ctx context.Context, c *Context) error {
	body, err := json.Marshal(webhookPayload{
		Endpoint:            c.Endpoint,
		CheckType:           c.CheckType,
		Event:               string(c.Event),
		Status:              c.Status,
		PreviousStatus:      c.PreviousStatus,
		ConsecutiveFailures: c.ConsecutiveFailures,
		FailureCount:        c.FailureCount,
		ResponseTime:        c.ResponseTime,
		ErrorMessage:        c.ErrorMessage,
		Details:             c.Details,
		Timestamp:           c.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	target := w.settings.Webhook
	reqCtx, cancel := context.WithTimeout(ctx, target.Timeout.Std())
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, target.Method, target.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
