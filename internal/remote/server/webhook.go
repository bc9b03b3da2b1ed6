package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kilupskalvis/qcat/internal/models"
)

// Webhook event names.
const (
	EventCatalogCreated = "catalog.created"
	EventCatalogEdited  = "catalog.edited"
	EventCatalogDeleted = "catalog.deleted"
)

// WebhookEvent is the payload posted to webhook URLs.
type WebhookEvent struct {
	Event      string `json:"event"`
	CatalogID  string `json:"catalog_id"`
	PreviousID string `json:"previous_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Revision   int    `json:"revision,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// WebhookConfig holds the list of configured webhook URLs.
type WebhookConfig struct {
	URLs []string
}

// WebhookNotifier posts catalog events to configured URLs.
type WebhookNotifier struct {
	config  *WebhookConfig
	client  *http.Client
	logger  *slog.Logger
	backoff time.Duration
}

// NewWebhookNotifier creates a webhook notifier. Returns nil if no URLs are configured.
func NewWebhookNotifier(cfg *WebhookConfig, logger *slog.Logger) *WebhookNotifier {
	if cfg == nil || len(cfg.URLs) == 0 {
		return nil
	}
	return &WebhookNotifier{
		config:  cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
		backoff: time.Second,
	}
}

// NotifyCatalog sends event for catalog c without blocking the caller.
// previousID is the version c was derived from, if any.
func (wn *WebhookNotifier) NotifyCatalog(event string, c *models.Catalog, previousID string) {
	if wn == nil || c == nil {
		return
	}
	go wn.send(&WebhookEvent{
		Event:      event,
		CatalogID:  c.ID,
		PreviousID: previousID,
		Name:       c.Name,
		Revision:   c.Revision,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

// NotifyDeleted sends a delete event for catalogID without blocking the caller.
func (wn *WebhookNotifier) NotifyDeleted(catalogID string) {
	if wn == nil {
		return
	}
	go wn.send(&WebhookEvent{
		Event:     EventCatalogDeleted,
		CatalogID: catalogID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (wn *WebhookNotifier) send(event *WebhookEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		wn.logger.Error("webhook: marshal event", "error", err)
		return
	}

	for _, url := range wn.config.URLs {
		if err := wn.post(url, data); err != nil {
			wn.logger.Warn("webhook: delivery failed", "url", url, "event", event.Event, "error", err)
			continue
		}
		wn.logger.Debug("webhook: delivered", "url", url, "event", event.Event)
	}
}

// post delivers one payload, retrying network errors and 5xx twice.
func (wn *WebhookNotifier) post(url string, data []byte) error {
	const maxRetries = 2

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * wn.backoff)
		}

		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "qcat-server/1.0")

		resp, err := wn.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
		if resp.StatusCode < 500 {
			return lastErr
		}
	}
	return lastErr
}
