package usecase

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"softhire-backend/internal/domain"
	"softhire-backend/pkg/apperror"
	"softhire-backend/pkg/metrics"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type PaymentDeps struct {
	Repo     domain.SponsorshipRepository
	Users    domain.UserRepository
	Gateway  domain.PaymentGateway
	Events   domain.WebhookEventStore
	Notifier domain.Notifier
	Plans    domain.PlanCatalog
	// Timeout bounds every call to the payment provider.
	Timeout time.Duration
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	Now     func() time.Time
}

type paymentUsecase struct {
	repo      domain.SponsorshipRepository
	gateway   domain.PaymentGateway
	events    domain.WebhookEventStore
	notifier  domain.Notifier
	snapshots snapshotBuilder
	plans     domain.PlanCatalog
	timeout   time.Duration
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
}

func NewPaymentUsecase(deps PaymentDeps) domain.PaymentUsecase {
	if deps.Timeout <= 0 {
		deps.Timeout = 10 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &paymentUsecase{
		repo:      deps.Repo,
		gateway:   deps.Gateway,
		events:    deps.Events,
		notifier:  deps.Notifier,
		snapshots: snapshotBuilder{repo: deps.Repo, users: deps.Users},
		plans:     deps.Plans,
		timeout:   deps.Timeout,
		metrics:   deps.Metrics,
		log:       deps.Logger,
		now:       deps.Now,
	}
}

func (u *paymentUsecase) Plans() []domain.Plan {
	plans := make([]domain.Plan, 0, len(u.plans))
	for _, p := range u.plans {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].AmountMinor < plans[j].AmountMinor })
	return plans
}

// InitiateCheckout opens a provider checkout session for a submitted, unpaid
// application. The provider call happens outside the row lock; the session
// reference is stored afterwards only if the application is still unpaid.
func (u *paymentUsecase) InitiateCheckout(ctx context.Context, id, accountID, email, planID string) (session *domain.CheckoutSession, err error) {
	ctx, span := tracer.Start(ctx, "payment.InitiateCheckout", trace.WithAttributes(
		attribute.String("application.id", id),
		attribute.String("plan.id", planID),
	))
	defer func() {
		u.metrics.Checkout(outcome(err))
		endSpan(span, err)
	}()

	plan, ok := u.plans.Lookup(planID)
	if !ok {
		return nil, apperror.Validation("Unknown plan.")
	}

	app, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, toAppError(err)
	}
	if !app.OwnedBy(accountID) {
		return nil, errForbidden()
	}
	if !app.IsSubmitted {
		return nil, toAppError(domain.ErrNotSubmitted)
	}
	if app.IsPaid {
		return nil, toAppError(domain.ErrAlreadyPaid)
	}

	callCtx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()
	start := time.Now()
	session, err = u.gateway.CreateCheckoutSession(callCtx, domain.CheckoutRequest{
		ApplicationID: app.ID,
		AccountID:     accountID,
		CustomerEmail: email,
		Plan:          plan,
	})
	u.metrics.ObserveProviderCall("payment", "create_checkout_session", start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, apperror.Upstream("Payment provider timed out. Please try again.", err)
		}
		return nil, apperror.Upstream("Payment provider is unavailable. Please try again.", err)
	}

	txErr := u.repo.WithinApplication(ctx, id, func(ctx context.Context, tx domain.SponsorshipTx) error {
		if tx.Application().IsPaid {
			return domain.ErrAlreadyPaid
		}
		return tx.SetPaymentSession(ctx, plan.ID, session.SessionID, u.now().UTC())
	})
	if txErr != nil {
		return nil, toAppError(txErr)
	}

	u.log.Info("checkout session created",
		zap.String("application_id", id),
		zap.String("plan_id", plan.ID),
		zap.String("session_id", session.SessionID))
	return session, nil
}

// HandleWebhook verifies and processes a provider notification. It returns
// a BadRequest only when the payload cannot be trusted or parsed. Events for
// unknown or unsubmitted applications are acknowledged and logged; storage
// failures are returned so the provider redelivers.
func (u *paymentUsecase) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := u.gateway.ParseWebhook(payload, signature)
	if err != nil {
		u.metrics.WebhookEvent("unknown", "rejected")
		u.log.Warn("rejected payment webhook", zap.Error(err))
		return apperror.New(http.StatusBadRequest, "Invalid webhook signature or payload.", err)
	}

	log := u.log.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))
	if !event.ConfirmsPayment() {
		u.metrics.WebhookEvent(event.Type, "ignored")
		log.Debug("ignoring payment event")
		return nil
	}

	if u.events != nil && event.ID != "" {
		seen, err := u.events.Seen(ctx, event.ID)
		if err != nil {
			log.Warn("webhook dedupe lookup failed", zap.Error(err))
		} else if seen {
			u.metrics.WebhookEvent(event.Type, "duplicate")
			log.Info("payment event already processed")
			return nil
		}
	}

	if _, err := u.ConfirmPayment(ctx, *event); err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrNotSubmitted) {
			u.metrics.WebhookEvent(event.Type, "unmatched")
			log.Warn("payment event does not match a payable application",
				zap.String("application_id", event.ApplicationID),
				zap.String("session_ref", event.SessionRef),
				zap.Error(err))
			return nil
		}
		u.metrics.WebhookEvent(event.Type, "error")
		log.Error("failed to record payment", zap.Error(err))
		return apperror.Internal(err)
	}

	if u.events != nil && event.ID != "" {
		if err := u.events.Remember(ctx, event.ID); err != nil {
			log.Warn("failed to remember processed event", zap.Error(err))
		}
	}
	u.metrics.WebhookEvent(event.Type, "processed")
	return nil
}

// ConfirmPayment marks the application paid. It reports true only for the
// call that performed the transition; repeated confirmations are no-ops.
// Errors are returned unmapped so callers can tell missing applications from
// storage failures.
func (u *paymentUsecase) ConfirmPayment(ctx context.Context, event domain.PaymentEvent) (transitioned bool, err error) {
	ctx, span := tracer.Start(ctx, "payment.ConfirmPayment", trace.WithAttributes(
		attribute.String("application.id", event.ApplicationID),
		attribute.String("payment.session", event.SessionRef),
	))
	defer func() { endSpan(span, err) }()

	appID := event.ApplicationID
	if appID == "" {
		if event.SessionRef == "" {
			return false, domain.ErrNotFound
		}
		app, err := u.repo.GetByPaymentSession(ctx, event.SessionRef)
		if err != nil {
			return false, err
		}
		appID = app.ID
	}

	var paid *domain.SponsorshipApplication
	err = u.repo.WithinApplication(ctx, appID, func(ctx context.Context, tx domain.SponsorshipTx) error {
		app := tx.Application()
		if app.IsPaid {
			return nil
		}
		if !app.IsSubmitted {
			return domain.ErrNotSubmitted
		}

		plan := u.resolvePlan(event.PlanID, app.PlanSelected)
		now := u.now().UTC()
		if err := tx.MarkPaid(ctx, plan.ID, now, now.Add(plan.Duration)); err != nil {
			return err
		}
		paid = tx.Application().Clone()
		return nil
	})
	if err != nil {
		return false, err
	}
	if paid == nil {
		return false, nil
	}

	u.metrics.PaymentConfirmed()
	u.log.Info("sponsorship application paid",
		zap.String("application_id", paid.ID),
		zap.String("plan_id", paid.PlanSelected))
	dispatchNotification(ctx, u.notifier, u.snapshots, paid, event.CustomerEmail, notifyPayment, u.now().UTC(), u.log)
	return true, nil
}

// resolvePlan prefers the plan named in the event, then the plan recorded at
// checkout, then the default plan.
func (u *paymentUsecase) resolvePlan(ids ...string) domain.Plan {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if p, ok := u.plans.Lookup(id); ok {
			return p
		}
	}
	if p, ok := u.plans.Lookup(domain.DefaultPlanID); ok {
		return p
	}
	return domain.Plan{ID: domain.DefaultPlanID, Duration: 365 * 24 * time.Hour}
}
