package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"softhire-backend/internal/domain"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Metadata keys written on every checkout session.
const (
	MetadataApplicationID = "applicationId"
	MetadataAccountID     = "accountId"
	MetadataPlanID        = "planId"
)

var ErrNotConfigured = errors.New("payment provider is not configured")

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

type sessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeGateway creates hosted checkout sessions and verifies webhooks.
type StripeGateway struct {
	sessions      sessionCreator
	webhookSecret string
	successURL    string
	cancelURL     string
}

func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if cfg.SecretKey == "" || cfg.WebhookSecret == "" {
		return nil, ErrNotConfigured
	}
	sc := &client.API{}
	sc.Init(cfg.SecretKey, nil)
	return &StripeGateway{
		sessions:      sc.CheckoutSessions,
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
	}, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	if g.sessions == nil {
		return nil, ErrNotConfigured
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(withSessionPlaceholder(g.successURL)),
		CancelURL:         stripe.String(g.cancelURL),
		ClientReferenceID: stripe.String(req.ApplicationID),
		LineItems:         []*stripe.CheckoutSessionLineItemParams{lineItem(req.Plan)},
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	params.AddMetadata(MetadataApplicationID, req.ApplicationID)
	params.AddMetadata(MetadataAccountID, req.AccountID)
	params.AddMetadata(MetadataPlanID, req.Plan.ID)
	params.Context = ctx

	s, err := g.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &domain.CheckoutSession{SessionID: s.ID, URL: s.URL}, nil
}

func lineItem(plan domain.Plan) *stripe.CheckoutSessionLineItemParams {
	if plan.ProviderPriceID != "" {
		return &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(plan.ProviderPriceID),
			Quantity: stripe.Int64(1),
		}
	}
	return &stripe.CheckoutSessionLineItemParams{
		Quantity: stripe.Int64(1),
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(strings.ToLower(plan.Currency)),
			UnitAmount: stripe.Int64(plan.AmountMinor),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(plan.Name),
			},
		},
	}
}

// withSessionPlaceholder lets the frontend read the session id on return.
func withSessionPlaceholder(u string) string {
	if u == "" || strings.Contains(u, "{CHECKOUT_SESSION_ID}") {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "session_id={CHECKOUT_SESSION_ID}"
}

// ParseWebhook verifies the Stripe-Signature header and reduces checkout
// session events to a PaymentEvent. Other event types are returned with
// only ID and Type set.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*domain.PaymentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidWebhook, err)
	}

	out := &domain.PaymentEvent{ID: event.ID, Type: string(event.Type)}
	if !strings.HasPrefix(out.Type, "checkout.session.") || event.Data == nil {
		return out, nil
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return nil, fmt.Errorf("%w: decode checkout session: %v", domain.ErrInvalidWebhook, err)
	}
	out.SessionRef = s.ID
	out.PaymentStatus = string(s.PaymentStatus)
	out.CustomerEmail = s.CustomerEmail
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		out.CustomerEmail = s.CustomerDetails.Email
	}
	out.ApplicationID = s.Metadata[MetadataApplicationID]
	if out.ApplicationID == "" {
		out.ApplicationID = s.ClientReferenceID
	}
	out.PlanID = s.Metadata[MetadataPlanID]
	return out, nil
}

// Unconfigured stands in when no Stripe keys are set. Checkout fails with
// ErrNotConfigured and every webhook is rejected.
type Unconfigured struct{}

func (Unconfigured) CreateCheckoutSession(context.Context, domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) ParseWebhook([]byte, string) (*domain.PaymentEvent, error) {
	return nil, fmt.Errorf("%w: %v", domain.ErrInvalidWebhook, ErrNotConfigured)
}
