// Package share delivers finished transformation results to guests over SMS
// or WhatsApp. Deliveries go through the durable outbox so a crashed worker
// never loses or duplicates a send.
package share

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/boothlabs/boothflow/internal/models"
	"github.com/boothlabs/boothflow/internal/store"
)

// Messenger sends a text message to a recipient.
type Messenger interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// MessagePayload is the outbox payload for one result delivery.
type MessagePayload struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// DefaultBodyTemplate is the delivery message. {{result_url}} is replaced
// with the finished result's URL.
const DefaultBodyTemplate = "Your photo is ready! {{result_url}}"

// Delivery enqueues result-link deliveries onto the outbox. It implements
// the transformation worker's ResultDeliverer.
type Delivery struct {
	outbox        store.OutboxRepo
	contactStepID string
	kind          string
	bodyTemplate  string
}

// NewDelivery creates a Delivery reading the recipient from the input
// collected by contactStepID. kind selects the channel (sms, whatsapp).
func NewDelivery(outbox store.OutboxRepo, contactStepID, kind string) *Delivery {
	return &Delivery{
		outbox:        outbox,
		contactStepID: contactStepID,
		kind:          kind,
		bodyTemplate:  DefaultBodyTemplate,
	}
}

// EnqueueResult queues the result link for delivery. A session without a
// collected contact is skipped silently; guests are not required to share
// one.
func (d *Delivery) EnqueueResult(ctx context.Context, session *models.EngineSession, resultURL string) error {
	input, ok := session.Data[d.contactStepID]
	if !ok {
		slog.Debug("Delivery skipped, no contact collected", "sessionID", session.ID, "contactStepID", d.contactStepID)
		return nil
	}
	to := strings.TrimSpace(input.DisplayString())
	if to == "" {
		slog.Debug("Delivery skipped, empty contact", "sessionID", session.ID)
		return nil
	}

	payload, err := json.Marshal(MessagePayload{
		To:   to,
		Body: strings.ReplaceAll(d.bodyTemplate, "{{result_url}}", resultURL),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal delivery payload: %w", err)
	}

	dedupeKey := "result:" + session.ID
	msgID, err := d.outbox.EnqueueOutboxMessage(session.ID, d.kind, string(payload), dedupeKey)
	if err != nil {
		return fmt.Errorf("failed to enqueue result delivery: %w", err)
	}
	slog.Debug("Result delivery enqueued", "sessionID", session.ID, "messageID", msgID, "kind", d.kind)
	return nil
}

// NewSendFunc builds the outbox send callback from the configured channel
// messengers, keyed by outbox message kind.
func NewSendFunc(messengers map[string]Messenger) store.OutboxSendFunc {
	return func(ctx context.Context, msg store.OutboxMessage) error {
		messenger, ok := messengers[msg.Kind]
		if !ok {
			return fmt.Errorf("no messenger configured for kind %q", msg.Kind)
		}
		var payload MessagePayload
		if err := json.Unmarshal([]byte(msg.PayloadJSON), &payload); err != nil {
			return fmt.Errorf("failed to unmarshal delivery payload: %w", err)
		}
		return messenger.SendMessage(ctx, payload.To, payload.Body)
	}
}
