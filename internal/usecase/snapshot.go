package usecase

import (
	"context"
	"fmt"
	"time"

	"softhire-backend/internal/domain"
)

// snapshotBuilder assembles notification snapshots after a transition has
// committed. Sections are frozen once an application is submitted, so
// reading them outside the transaction yields a consistent view.
type snapshotBuilder struct {
	repo  domain.SponsorshipRepository
	users domain.UserRepository
}

func (b snapshotBuilder) build(ctx context.Context, app *domain.SponsorshipApplication, fallbackEmail string, now time.Time) (domain.ApplicationSnapshot, error) {
	raw, err := b.repo.LoadSections(ctx, app)
	if err != nil {
		return domain.ApplicationSnapshot{}, fmt.Errorf("load sections: %w", err)
	}
	sections, err := domain.DecodeSectionSet(raw)
	if err != nil {
		return domain.ApplicationSnapshot{}, err
	}

	snap := domain.ApplicationSnapshot{
		Application:  *app.Clone(),
		AccountEmail: fallbackEmail,
		Sections:     sections,
		TakenAt:      now,
	}
	if b.users != nil {
		if user, err := b.users.GetByID(ctx, app.AccountID); err == nil && user != nil {
			snap.AccountEmail = user.Email
			snap.AccountName = user.FullName
		}
	}
	return snap, nil
}
