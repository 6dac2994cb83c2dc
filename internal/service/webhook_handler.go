package service

import (
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/abreulima/finsync/internal/provider"
)

// WebhookHandler handles incoming provider webhook events
type WebhookHandler struct {
	sync          *SyncService
	webhookSecret string
}

// NewWebhookHandler creates a new provider webhook handler
func NewWebhookHandler(sync *SyncService, webhookSecret string) *WebhookHandler {
	return &WebhookHandler{sync: sync, webhookSecret: webhookSecret}
}

// HandleWebhook processes incoming provider webhook events. Once the
// signature checks out the delivery is acknowledged with 200 regardless of
// processing outcome; the provider retries on non-2xx and a retried
// delivery replays through the idempotent upsert path anyway.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	sigHeader := r.Header.Get("X-Webhook-Signature")
	if !provider.VerifySignature(body, sigHeader, h.webhookSecret) {
		log.Printf("[Webhook] signature verification failed")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	// A malformed body is a processing failure like any other: retrying the
	// same delivery can never make it parse, so it is logged and acknowledged.
	event, err := provider.ParseWebhookEvent(body)
	if err != nil {
		log.Printf("[Webhook] failed to parse payload: %v", err)
	} else if err := h.sync.ProcessEvent(r.Context(), event); err != nil {
		// Acknowledged anyway; the next delivery or manual sync catches up.
		log.Printf("[Webhook] processing %s for item %s failed: %v", event.Event, event.ItemID, err)
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"received": true}`)
}
