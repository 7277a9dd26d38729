package http

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kratos-host/provisioning-service/internal/client"
	"github.com/kratos-host/provisioning-service/internal/models"
	"github.com/kratos-host/provisioning-service/internal/service"
)

// WebhookHandler receives billing provider webhooks. The raw body is
// read before any parsing because the signature covers the exact bytes
// delivered.
type WebhookHandler struct {
	reconcile     *service.ReconcileService
	webhookSecret string
	tolerance     time.Duration
}

func NewWebhookHandler(reconcile *service.ReconcileService, webhookSecret string, tolerance time.Duration) *WebhookHandler {
	return &WebhookHandler{
		reconcile:     reconcile,
		webhookSecret: webhookSecret,
		tolerance:     tolerance,
	}
}

// HandleBillingWebhook verifies and processes one webhook delivery.
// Signature failures return 401 without touching any state; processing
// errors return 500 so the provider redelivers.
func (h *WebhookHandler) HandleBillingWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if err := client.VerifyWebhookSignature(payload, signature, h.webhookSecret, h.tolerance, time.Now()); err != nil {
		log.Printf("[WebhookHandler] Rejected webhook: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var event models.BillingEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event payload"})
		return
	}

	if err := h.reconcile.HandleBillingEvent(c.Request.Context(), &event); err != nil {
		log.Printf("[WebhookHandler] Event %s (%s) failed: %v", event.ID, event.Type, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event processing failed"})
		return
	}

	c.JSON(http.StatusOK, models.WebhookAck{
		Received:  true,
		Type:      event.Type,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
