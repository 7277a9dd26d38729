package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// NotifyClient posts operational notifications to a chat webhook.
// Delivery is best effort: failures are logged and never propagated to
// the caller, so a down notification channel cannot break fulfillment.
type NotifyClient struct {
	webhookURL string
	httpClient *http.Client
}

// NewNotifyClient creates a notification client. An empty webhook URL
// disables delivery silently.
func NewNotifyClient(webhookURL string) *NotifyClient {
	return &NotifyClient{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify sends a titled message with optional key-value fields
func (c *NotifyClient) Notify(ctx context.Context, title, message string, fields map[string]string) {
	if c.webhookURL == "" {
		return
	}

	embedFields := make([]map[string]interface{}, 0, len(fields))
	for name, value := range fields {
		embedFields = append(embedFields, map[string]interface{}{
			"name":   name,
			"value":  value,
			"inline": true,
		})
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       title,
				"description": message,
				"fields":      embedFields,
				"timestamp":   time.Now().UTC().Format(time.RFC3339),
			},
		},
	}

	if err := c.post(ctx, payload); err != nil {
		log.Printf("[NotifyClient] Failed to deliver notification %q: %v", title, err)
	}
}

func (c *NotifyClient) post(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
