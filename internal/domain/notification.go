package domain

import (
	"context"
	"time"
)

// ApplicationSnapshot is an immutable copy of an application taken after a
// state transition committed. Notifiers must not reach back into storage.
type ApplicationSnapshot struct {
	Application  SponsorshipApplication
	AccountEmail string
	AccountName  string
	Sections     SectionSet
	TakenAt      time.Time
}

// CompanyName returns the best available display name for the sponsor.
func (s ApplicationSnapshot) CompanyName() string {
	if s.Sections.AboutYourCompany != nil && s.Sections.AboutYourCompany.CompanyName != "" {
		return s.Sections.AboutYourCompany.CompanyName
	}
	return s.AccountName
}

type Notifier interface {
	NotifySubmission(ctx context.Context, snapshot ApplicationSnapshot) error
	NotifyPayment(ctx context.Context, snapshot ApplicationSnapshot) error
}
