package usecase_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"softhire-backend/internal/domain"
	"softhire-backend/internal/repository/memory"
	"softhire-backend/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testPlans = domain.PlanCatalog{
	"standard": {ID: "standard", Name: "Standard", AmountMinor: 49900, Currency: "gbp", Duration: 365 * 24 * time.Hour},
	"premium":  {ID: "premium", Name: "Premium", AmountMinor: 99900, Currency: "gbp", Duration: 365 * 24 * time.Hour},
}

type paymentFixture struct {
	*sponsorshipFixture
	payments domain.PaymentUsecase
	gateway  *MockGateway
}

func newPaymentFixture(t *testing.T, timeout time.Duration) *paymentFixture {
	t.Helper()
	sf := newSponsorshipFixture(t)
	gateway := new(MockGateway)
	payments := usecase.NewPaymentUsecase(usecase.PaymentDeps{
		Repo:     sf.repo,
		Users:    sf.users,
		Gateway:  gateway,
		Events:   memory.NewEventStore(time.Hour),
		Notifier: sf.notifier,
		Plans:    testPlans,
		Timeout:  timeout,
	})
	return &paymentFixture{sponsorshipFixture: sf, payments: payments, gateway: gateway}
}

// submitted returns the id of a submitted application owned by accountID.
func (f *paymentFixture) submitted(t *testing.T, accountID string) string {
	t.Helper()
	app := f.start(t, accountID)
	f.completeAll(t, accountID, app.ID)
	_, err := f.uc.Submit(userCtx(accountID, domain.RoleRecruiter), app.ID, accountID)
	require.NoError(t, err)
	return app.ID
}

func paidEvent(id, appID string) *domain.PaymentEvent {
	return &domain.PaymentEvent{
		ID:            id,
		Type:          domain.EventCheckoutCompleted,
		SessionRef:    "cs_test_1",
		ApplicationID: appID,
		PlanID:        "standard",
		PaymentStatus: "paid",
	}
}

func TestPlans_SortedByPrice(t *testing.T) {
	f := newPaymentFixture(t, time.Second)
	plans := f.payments.Plans()
	require.Len(t, plans, 2)
	assert.Equal(t, "standard", plans[0].ID)
	assert.Equal(t, "premium", plans[1].ID)
}

func TestInitiateCheckout_RequiresSubmission(t *testing.T) {
	f := newPaymentFixture(t, time.Second)
	app := f.start(t, "owner")

	_, err := f.payments.InitiateCheckout(userCtx("owner", domain.RoleRecruiter), app.ID, "owner", "owner@example.com", "")
	requireAppError(t, err, http.StatusConflict)
	f.gateway.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
}

func TestInitiateCheckout_Success(t *testing.T) {
	f := newPaymentFixture(t, time.Second)
	appID := f.submitted(t, "owner")

	f.gateway.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req domain.CheckoutRequest) bool {
		return req.ApplicationID == appID && req.Plan.ID == "premium" && req.CustomerEmail == "owner@example.com"
	})).Return(&domain.CheckoutSession{SessionID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil).Once()

	session, err := f.payments.InitiateCheckout(userCtx("owner", domain.RoleRecruiter), appID, "owner", "owner@example.com", "premium")
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.SessionID)

	stored, err := f.repo.GetByID(context.Background(), appID)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", stored.PaymentSessionRef)
	assert.Equal(t, "premium", stored.PlanSelected)
	assert.False(t, stored.IsPaid)
	f.gateway.AssertExpectations(t)
}

func TestInitiateCheckout_Rejections(t *testing.T) {
	f := newPaymentFixture(t, time.Second)
	appID := f.submitted(t, "owner")
	ctx := userCtx("owner", domain.RoleRecruiter)

	_, err := f.payments.InitiateCheckout(ctx, appID, "owner", "", "platinum")
	requireAppError(t, err, http.StatusBadRequest)

	_, err = f.payments.InitiateCheckout(ctx, appID, "intruder", "", "")
	requireAppError(t, err, http.StatusForbidden)

	_, err = f.payments.InitiateCheckout(ctx, "missing", "owner", "", "")
	requireAppError(t, err, http.StatusNotFound)
}

func TestInitiateCheckout_ProviderTimeout(t *testing.T) {
	f := newPaymentFixture(t, 20*time.Millisecond)
	appID := f.submitted(t, "owner")

	f.gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded).Once()

	_, err := f.payments.InitiateCheckout(userCtx("owner", domain.RoleRecruiter), appID, "owner", "", "")
	appErr := requireAppError(t, err, http.StatusServiceUnavailable)
	assert.True(t, appErr.Retryable)

	stored, err := f.repo.GetByID(context.Background(), appID)
	require.NoError(t, err)
	assert.Empty(t, stored.PaymentSessionRef)
	assert.False(t, stored.IsPaid)
}

func TestHandleWebhook_ConfirmsPaymentOnce(t *testing.T) {
	f := newPaymentFixture(t, time.Second)
	appID := f.submitted(t, "owner")

	f.gateway.On("ParseWebhook", []byte("payload-1"), "sig").Return(paidEvent("evt_1", appID), nil)
	f.gateway.On("ParseWebhook", []byte("payload-2"), "sig").Return(paidEvent("evt_2", appID), nil)

	before := time.Now().UTC()
	require.NoError(t, f.payments.HandleWebhook(context.Background(), []byte("payload-1"), "sig"))

	stored, err := f.repo.GetByID(context.Background(), appID)
	require.NoError(t, err)
	assert.True(t, stored.IsPaid)
	assert.Equal(t, domain.StatusPaid, stored.Status())
	assert.Equal(t, "standard", stored.PlanSelected)
	require.NotNil(t, stored.PlanPaidAt)
	require.NotNil(t, stored.PlanValidUntil)
	assert.WithinDuration(t, before.Add(365*24*time.Hour), *stored.PlanValidUntil, time.Minute)

	// Redelivery of the same event and a second event for the same session.
	require.NoError(t, f.payments.HandleWebhook(context.Background(), []byte("payload-1"), "sig"))
	require.NoError(t, f.payments.HandleWebhook(context.Background(), []byte("payload-2"), "sig"))

	_, payments := f.notifier.counts()
	assert.Equal(t, 1, payments)

	again, err := f.repo.GetByID(context.Background(), appID)
	require.NoError(t, err)
	assert.Equal(t, stored.PlanPaidAt, again.PlanPaidAt)
}

func TestHandleWebhook_ConcurrentDeliveriesHaveOneWinner(t *testing.T) {
	f := newPaymentFixture(t, time.Second)
	appID := f.submitted(t, "owner")

	// Distinct event ids so only the paid transition itself can deduplicate.
	const deliveries = 20
	for i := 0; i < deliveries; i++ {
		payload := []byte(fmt.Sprintf("payload-%d", i))
		f.gateway.On("ParseWebhook", payload, "sig").Return(paidEvent(fmt.Sprintf("evt_%d", i), appID), nil)
	}

	var wg sync.WaitGroup
	errs := make([]error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.payments.HandleWebhook(context.Background(), []byte(fmt.Sprintf("payload-%d", i)), "sig")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "delivery %d", i)
	}
	_, payments := f.notifier.counts()
	assert.Equal(t, 1, payments)

	stored, err := f.repo.GetByID(context.Background(), appID)
	require.NoError(t, err)
	assert.True(t, stored.IsPaid)
}

func TestConfirmPayment_ConcurrentCallsHaveOneWinner(t *testing.T) {
	f := newPaymentFixture(t, time.Second)
	appID := f.submitted(t, "owner")

	const callers = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := f.payments.ConfirmPayment(context.Background(), *paidEvent("evt_same", appID))
			assert.NoError(t, err)
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	_, payments := f.notifier.counts()
	assert.Equal(t, 1, payments)
}

func TestHandleWebhook_FallsBackToSessionRef(t *testing.T) {
	f := newPaymentFixture(t, time.Second)
	appID := f.submitted(t, "owner")

	f.gateway.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Return(&domain.CheckoutSession{SessionID: "cs_test_1", URL: "https://checkout.stripe.com/x"}, nil)
	_, err := f.payments.InitiateCheckout(userCtx("owner", domain.RoleRecruiter), appID, "owner", "", "")
	require.NoError(t, err)

	event := paidEvent("evt_1", "")
	f.gateway.On("ParseWebhook", mock.Anything, mock.Anything).Return(event, nil)

	require.NoError(t, f.payments.HandleWebhook(context.Background(), []byte("{}"), "sig"))

	stored, err := f.repo.GetByID(context.Background(), appID)
	require.NoError(t, err)
	assert.True(t, stored.IsPaid)
}

func TestHandleWebhook_AcknowledgesUnpayableEvents(t *testing.T) {
	f := newPaymentFixture(t, time.Second)
	draft := f.start(t, "owner")

	tests := []struct {
		name  string
		event *domain.PaymentEvent
	}{
		{"unknown application", paidEvent("evt_unknown", "missing")},
		{"draft application", paidEvent("evt_draft", draft.ID)},
		{"unpaid session", &domain.PaymentEvent{ID: "evt_unpaid", Type: domain.EventCheckoutCompleted, ApplicationID: draft.ID, PaymentStatus: "unpaid"}},
		{"unrelated event type", &domain.PaymentEvent{ID: "evt_other", Type: "customer.created"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := []byte(tt.name)
			f.gateway.On("ParseWebhook", payload, "sig").Return(tt.event, nil).Once()
			assert.NoError(t, f.payments.HandleWebhook(context.Background(), payload, "sig"))
		})
	}

	stored, err := f.repo.GetByID(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsPaid)
	_, payments := f.notifier.counts()
	assert.Zero(t, payments)
}

func TestHandleWebhook_InvalidSignature(t *testing.T) {
	f := newPaymentFixture(t, time.Second)
	f.gateway.On("ParseWebhook", mock.Anything, "bad").Return(nil, domain.ErrInvalidWebhook)

	err := f.payments.HandleWebhook(context.Background(), []byte("{}"), "bad")
	requireAppError(t, err, http.StatusBadRequest)
}

func TestInitiateCheckout_AfterPaymentConflicts(t *testing.T) {
	f := newPaymentFixture(t, time.Second)
	appID := f.submitted(t, "owner")

	transitioned, err := f.payments.ConfirmPayment(context.Background(), *paidEvent("evt_1", appID))
	require.NoError(t, err)
	assert.True(t, transitioned)

	transitioned, err = f.payments.ConfirmPayment(context.Background(), *paidEvent("evt_1", appID))
	require.NoError(t, err)
	assert.False(t, transitioned)

	_, err = f.payments.InitiateCheckout(userCtx("owner", domain.RoleRecruiter), appID, "owner", "", "")
	requireAppError(t, err, http.StatusConflict)
	f.gateway.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
}
