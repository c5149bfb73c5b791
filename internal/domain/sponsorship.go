package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadySubmitted = errors.New("application already submitted")
	ErrNotSubmitted     = errors.New("application not submitted")
	ErrAlreadyPaid      = errors.New("application already paid")
)

// SectionKind identifies one of the nine sections of a sponsorship application.
// The string value is the name reported to clients in missingSections.
type SectionKind string

const (
	SectionGettingStarted      SectionKind = "gettingStarted"
	SectionAboutYourCompany    SectionKind = "aboutYourCompany"
	SectionCompanyStructure    SectionKind = "companyStructure"
	SectionActivityAndNeeds    SectionKind = "activityAndNeeds"
	SectionAuthorisingOfficer  SectionKind = "authorisingOfficer"
	SectionSystemAccess        SectionKind = "systemAccess"
	SectionSupportingDocuments SectionKind = "supportingDocuments"
	SectionOrganizationSize    SectionKind = "organizationSize"
	SectionDeclarations        SectionKind = "declarations"
)

// SectionKinds lists every section in the order the applicant fills them in.
var SectionKinds = []SectionKind{
	SectionGettingStarted,
	SectionAboutYourCompany,
	SectionCompanyStructure,
	SectionActivityAndNeeds,
	SectionAuthorisingOfficer,
	SectionSystemAccess,
	SectionSupportingDocuments,
	SectionOrganizationSize,
	SectionDeclarations,
}

var sectionSlugs = map[SectionKind]string{
	SectionGettingStarted:      "getting-started",
	SectionAboutYourCompany:    "about-your-company",
	SectionCompanyStructure:    "company-structure",
	SectionActivityAndNeeds:    "activity-and-needs",
	SectionAuthorisingOfficer:  "authorising-officer",
	SectionSystemAccess:        "system-access",
	SectionSupportingDocuments: "supporting-documents",
	SectionOrganizationSize:    "organization-size",
	SectionDeclarations:        "declarations",
}

// Slug is the URL path segment for the section.
func (k SectionKind) Slug() string {
	return sectionSlugs[k]
}

func (k SectionKind) Valid() bool {
	_, ok := sectionSlugs[k]
	return ok
}

// ParseSectionKind accepts either the URL slug or the section name.
func ParseSectionKind(s string) (SectionKind, bool) {
	for kind, slug := range sectionSlugs {
		if s == slug || s == string(kind) {
			return kind, true
		}
	}
	return "", false
}

type ApplicationStatus string

const (
	StatusDraft     ApplicationStatus = "draft"
	StatusSubmitted ApplicationStatus = "submitted"
	StatusPaid      ApplicationStatus = "paid"
)

// SponsorshipApplication is the aggregate root. It owns references to the
// section documents but never their content.
type SponsorshipApplication struct {
	ID                string                 `json:"id"`
	AccountID         string                 `json:"accountId"`
	SectionRefs       map[SectionKind]string `json:"sectionRefs"`
	IsSubmitted       bool                   `json:"isSubmitted"`
	SubmittedAt       *time.Time             `json:"submittedAt,omitempty"`
	IsPaid            bool                   `json:"isPaid"`
	PlanSelected      string                 `json:"planSelected,omitempty"`
	PlanPaidAt        *time.Time             `json:"planPaidAt,omitempty"`
	PlanValidUntil    *time.Time             `json:"planValidUntil,omitempty"`
	PaymentSessionRef string                 `json:"-"`
	CreatedAt         time.Time              `json:"createdAt"`
	UpdatedAt         time.Time              `json:"updatedAt"`
}

func NewSponsorshipApplication(id, accountID string, now time.Time) *SponsorshipApplication {
	return &SponsorshipApplication{
		ID:          id,
		AccountID:   accountID,
		SectionRefs: make(map[SectionKind]string, len(SectionKinds)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (a *SponsorshipApplication) Status() ApplicationStatus {
	switch {
	case a.IsPaid:
		return StatusPaid
	case a.IsSubmitted:
		return StatusSubmitted
	default:
		return StatusDraft
	}
}

func (a *SponsorshipApplication) OwnedBy(accountID string) bool {
	return accountID != "" && a.AccountID == accountID
}

// MissingSections returns the kinds with no stored section, in fill order.
func (a *SponsorshipApplication) MissingSections() []SectionKind {
	missing := make([]SectionKind, 0, len(SectionKinds))
	for _, kind := range SectionKinds {
		if a.SectionRefs[kind] == "" {
			missing = append(missing, kind)
		}
	}
	return missing
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (a *SponsorshipApplication) Clone() *SponsorshipApplication {
	if a == nil {
		return nil
	}
	cp := *a
	cp.SectionRefs = make(map[SectionKind]string, len(a.SectionRefs))
	for k, v := range a.SectionRefs {
		cp.SectionRefs[k] = v
	}
	cp.SubmittedAt = cloneTime(a.SubmittedAt)
	cp.PlanPaidAt = cloneTime(a.PlanPaidAt)
	cp.PlanValidUntil = cloneTime(a.PlanValidUntil)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ApplicationDetail is the aggregate together with its decoded sections.
type ApplicationDetail struct {
	Application *SponsorshipApplication `json:"application"`
	Status      ApplicationStatus       `json:"status"`
	Sections    SectionSet              `json:"sections"`
	Missing     []SectionKind           `json:"missingSections"`
}

type ApplicationFilter struct {
	Status ApplicationStatus
	Limit  int
	Offset int
}

// SponsorshipTx is a unit of work scoped to one locked application.
// Mutations become visible only if the enclosing callback returns nil.
type SponsorshipTx interface {
	Application() *SponsorshipApplication
	SectionData(ctx context.Context, kind SectionKind) (json.RawMessage, error)
	SaveSection(ctx context.Context, kind SectionKind, data json.RawMessage, now time.Time) (string, error)
	MarkSubmitted(ctx context.Context, at time.Time) error
	SetPaymentSession(ctx context.Context, planID, sessionRef string, now time.Time) error
	MarkPaid(ctx context.Context, planID string, paidAt, validUntil time.Time) error
}

type SponsorshipRepository interface {
	// CreateForAccount inserts app unless the account already owns one, in
	// which case the existing application is returned with created=false.
	CreateForAccount(ctx context.Context, app *SponsorshipApplication) (existing *SponsorshipApplication, created bool, err error)
	GetByID(ctx context.Context, id string) (*SponsorshipApplication, error)
	GetByPaymentSession(ctx context.Context, sessionRef string) (*SponsorshipApplication, error)
	LoadSections(ctx context.Context, app *SponsorshipApplication) (map[SectionKind]json.RawMessage, error)
	List(ctx context.Context, filter ApplicationFilter) ([]SponsorshipApplication, error)
	// WithinApplication locks the application and runs fn inside one
	// transaction. Returns ErrNotFound if the application does not exist.
	WithinApplication(ctx context.Context, id string, fn func(ctx context.Context, tx SponsorshipTx) error) error
}

type SponsorshipUsecase interface {
	CreateApplication(ctx context.Context, accountID string) (*SponsorshipApplication, bool, error)
	GetApplication(ctx context.Context, id, accountID string) (*ApplicationDetail, error)
	GetSection(ctx context.Context, id, accountID string, kind SectionKind) (Section, error)
	UpdateSection(ctx context.Context, id, accountID string, kind SectionKind, patch json.RawMessage) (Section, error)
	Submit(ctx context.Context, id, accountID string) (*SponsorshipApplication, error)
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]SponsorshipApplication, error)
}
