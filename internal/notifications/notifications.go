package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Notifier delivers out-of-band alerts about sync outcomes.
type Notifier interface {
	SendAlert(ctx context.Context, domain string, severity string, message string) error
}

// LogNotifier writes alerts to the worker log only.
type LogNotifier struct {
	Log *zap.Logger
}

func (n *LogNotifier) SendAlert(_ context.Context, domain, severity, message string) error {
	n.Log.Warn("sync alert",
		zap.String("domain", domain),
		zap.String("severity", severity),
		zap.String("message", message),
	)
	return nil
}

// WebhookNotifier posts alerts as JSON to a configured webhook URL.
// The payload shape is Slack-compatible (text + attachments).
type WebhookNotifier struct {
	webhookURL string
	httpClient *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		webhookURL: url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookPayload struct {
	Text        string       `json:"text"`
	Attachments []attachment `json:"attachments,omitempty"`
}

type attachment struct {
	Color  string  `json:"color"`
	Fields []field `json:"fields"`
}

type field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func (n *WebhookNotifier) SendAlert(ctx context.Context, domain, severity, message string) error {
	color := "warning"
	if severity == "critical" {
		color = "danger"
	}

	payload := webhookPayload{
		Text: fmt.Sprintf("Muraqib Alert: Domain %s", domain),
		Attachments: []attachment{{
			Color: color,
			Fields: []field{
				{Title: "Severity", Value: severity, Short: true},
				{Title: "Message", Value: message, Short: false},
			},
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
