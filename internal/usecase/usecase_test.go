package usecase_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"softhire-backend/internal/domain"
	"softhire-backend/pkg/apperror"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock Repositories

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}
func (m *MockUserRepo) Update(ctx context.Context, user *domain.User) error {
	return m.Called(ctx, user).Error(0)
}
func (m *MockUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CheckoutSession), args.Error(1)
}

func (m *MockGateway) ParseWebhook(payload []byte, signature string) (*domain.PaymentEvent, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentEvent), args.Error(1)
}

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, key, contentType, ttl)
	return args.String(0), args.Error(1)
}

func (m *MockStorage) ObjectURL(key string) string {
	return "https://files.example.com/" + key
}

// recordingNotifier keeps every snapshot it receives.
type recordingNotifier struct {
	mu          sync.Mutex
	submissions []domain.ApplicationSnapshot
	payments    []domain.ApplicationSnapshot
	err         error
}

func (n *recordingNotifier) NotifySubmission(_ context.Context, s domain.ApplicationSnapshot) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.submissions = append(n.submissions, s)
	return n.err
}

func (n *recordingNotifier) NotifyPayment(_ context.Context, s domain.ApplicationSnapshot) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payments = append(n.payments, s)
	return n.err
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.submissions), len(n.payments)
}

func userCtx(id, role string) context.Context {
	ctx := context.WithValue(context.Background(), domain.KeyUserID, id)
	ctx = context.WithValue(ctx, domain.KeyUserEmail, id+"@example.com")
	return context.WithValue(ctx, domain.KeyUserRole, role)
}

func requireAppError(t *testing.T, err error, code int) *apperror.AppError {
	t.Helper()
	require.Error(t, err)
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr), "expected *apperror.AppError, got %T: %v", err, err)
	require.Equal(t, code, appErr.Code, appErr.Message)
	return appErr
}

// validSections holds a complete, valid payload for every section.
var validSections = map[domain.SectionKind]string{
	domain.SectionGettingStarted: `{
		"hasSponsorLicense": {"value": false},
		"hadSponsorLicenseBefore": {"value": false},
		"rejectedBefore": {"value": false},
		"isRecruitmentAgency": {"value": false}
	}`,
	domain.SectionAboutYourCompany: `{
		"companyName": "Acme Care Ltd",
		"registeredAddress": {"line1": "1 High Street", "city": "London", "postcode": "E1 6AN", "country": "United Kingdom"},
		"sameAsRegistered": true,
		"hasPayeReference": true,
		"payeReferences": ["123/AB456"],
		"hasOtherLocations": false
	}`,
	domain.SectionCompanyStructure: `{
		"structureType": "Private Limited Company",
		"operatesInCareSector": false,
		"tradedUnderOtherNames": false,
		"vatRegistered": false,
		"requiresGoverningBodyRegistration": false,
		"isFranchise": false
	}`,
	domain.SectionActivityAndNeeds: `{
		"employsMigrantWorkers": false,
		"hasIdentifiedCandidates": false,
		"reasonsForSponsorship": ["Skills shortage"],
		"hasHRPlatform": false
	}`,
	domain.SectionAuthorisingOfficer: `{
		"firstName": "Jane",
		"lastName": "Doe",
		"phoneNumber": "07700900123",
		"email": "jane@acme.co.uk",
		"dateOfBirth": "1985-04-12",
		"hasNationalInsuranceNumber": true,
		"nationalInsuranceNumber": "AB123456C",
		"nationality": "British",
		"isSettledWorker": true,
		"hasConvictions": false,
		"companyAddress": {"line1": "1 High Street", "city": "London", "postcode": "E1 6AN", "country": "United Kingdom"},
		"companyRole": "Director",
		"hasUpcomingHoliday": false
	}`,
	domain.SectionSystemAccess: `{"level1Access": false}`,
	domain.SectionSupportingDocuments: `{
		"auditedAnnualAccounts": {"url": "https://files.example.com/accounts.pdf"},
		"certificateOfIncorporation": {"url": "https://files.example.com/incorporation.pdf"},
		"businessBankStatement": {"url": "https://files.example.com/bank.pdf"},
		"employersLiabilityInsurance": {"url": "https://files.example.com/insurance.pdf"}
	}`,
	domain.SectionOrganizationSize: `{"turnoverBelow15M": true, "assetsBelow7_5M": true, "employeesBelow50": true}`,
	domain.SectionDeclarations:     `{"serviceType": "Skilled Worker", "canMeetSponsorDuties": "yes", "agreesToTerms": true}`,
}

func sectionJSON(kind domain.SectionKind) json.RawMessage {
	return json.RawMessage(validSections[kind])
}
