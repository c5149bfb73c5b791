package domain

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidWebhook is returned by a PaymentGateway when a webhook payload
// fails signature verification or cannot be parsed.
var ErrInvalidWebhook = errors.New("invalid webhook payload")

// Plan is a purchasable sponsorship plan. A paid plan stays valid for
// Duration from the moment payment is confirmed.
type Plan struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	AmountMinor     int64         `json:"amountMinor"`
	Currency        string        `json:"currency"`
	Duration        time.Duration `json:"-"`
	ProviderPriceID string        `json:"-"`
}

// PlanCatalog is keyed by plan id.
type PlanCatalog map[string]Plan

const DefaultPlanID = "standard"

func (c PlanCatalog) Lookup(id string) (Plan, bool) {
	if id == "" {
		id = DefaultPlanID
	}
	p, ok := c[id]
	return p, ok
}

type CheckoutRequest struct {
	ApplicationID string
	AccountID     string
	CustomerEmail string
	Plan          Plan
}

type CheckoutSession struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// Payment event types the workflow reacts to.
const (
	EventCheckoutCompleted      = "checkout.session.completed"
	EventCheckoutAsyncSucceeded = "checkout.session.async_payment_succeeded"
)

// PaymentEvent is a verified provider notification reduced to what the
// workflow needs.
type PaymentEvent struct {
	ID            string
	Type          string
	SessionRef    string
	ApplicationID string
	PlanID        string
	PaymentStatus string
	CustomerEmail string
}

// ConfirmsPayment reports whether the event proves money was collected.
func (e PaymentEvent) ConfirmsPayment() bool {
	switch e.Type {
	case EventCheckoutCompleted, EventCheckoutAsyncSucceeded:
		return e.PaymentStatus == "paid"
	}
	return false
}

type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	ParseWebhook(payload []byte, signature string) (*PaymentEvent, error)
}

// WebhookEventStore remembers processed provider event ids so redeliveries
// can be acknowledged without reprocessing.
type WebhookEventStore interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Remember(ctx context.Context, eventID string) error
}

type PaymentUsecase interface {
	Plans() []Plan
	InitiateCheckout(ctx context.Context, id, accountID, email, planID string) (*CheckoutSession, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	ConfirmPayment(ctx context.Context, event PaymentEvent) (bool, error)
}
