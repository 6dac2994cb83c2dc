// Package provider is the typed gateway to the Open-Finance aggregator. It
// carries no business state: it fetches provider resources, verifies webhook
// signatures and maps provider codes into domain enumerations.
package provider

import (
	"encoding/json"
	"fmt"
	"time"
)

// Item is the provider's view of one bank connection.
type Item struct {
	ID        string     `json:"id"`
	Status    string     `json:"status"`
	Error     *ItemError `json:"error,omitempty"`
	Connector Connector  `json:"connector"`
}

// ItemError carries the provider's error detail for a failed item.
type ItemError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Connector identifies the financial institution behind an item.
type Connector struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Account is the provider's view of one bank or card account.
type Account struct {
	ID           string  `json:"id"`
	ItemID       string  `json:"itemId"`
	Type         string  `json:"type"`
	Subtype      string  `json:"subtype"`
	Name         string  `json:"name"`
	Balance      float64 `json:"balance"`
	CurrencyCode string  `json:"currencyCode"`
}

// Transaction is the provider's view of one posting.
type Transaction struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"accountId"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
	Date        time.Time `json:"date"`
	Category    string    `json:"category"`
	Type        string    `json:"type"`   // CREDIT or DEBIT
	Status      string    `json:"status"` // POSTED or PENDING
}

// EventKind is the tagged variant of an inbound webhook event.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventItemCreated
	EventItemUpdated
	EventItemError
	EventItemDeleted
	EventItemWaitingUserInput
)

// WebhookEvent is one parsed webhook delivery. Event keeps the raw event
// string so unknown kinds can be logged verbatim.
type WebhookEvent struct {
	Kind   EventKind
	Event  string
	ItemID string
}

// ParseWebhookEvent decodes the provider's webhook body
// ({"event": ..., "data": {"itemId": ...}}) into a tagged event. Unknown
// event strings yield EventUnknown rather than an error: the processor
// acknowledges them without acting.
func ParseWebhookEvent(body []byte) (WebhookEvent, error) {
	var payload struct {
		Event string `json:"event"`
		Data  struct {
			ItemID string `json:"itemId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookEvent{}, fmt.Errorf("failed to parse webhook payload: %w", err)
	}

	ev := WebhookEvent{Event: payload.Event, ItemID: payload.Data.ItemID}
	switch payload.Event {
	case "item/created":
		ev.Kind = EventItemCreated
	case "item/updated":
		ev.Kind = EventItemUpdated
	case "item/error":
		ev.Kind = EventItemError
	case "item/deleted":
		ev.Kind = EventItemDeleted
	case "item/waiting_user_input":
		ev.Kind = EventItemWaitingUserInput
	default:
		ev.Kind = EventUnknown
	}
	return ev, nil
}
