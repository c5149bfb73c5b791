// Package memory provides in-process repositories used for local runs
// without a database and as fakes in tests.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"softhire-backend/internal/domain"

	"github.com/google/uuid"
)

type storedSection struct {
	kind domain.SectionKind
	data json.RawMessage
}

type SponsorshipRepository struct {
	// txMu serialises WithinApplication callbacks. mu guards the maps.
	txMu     sync.Mutex
	mu       sync.RWMutex
	apps     map[string]*domain.SponsorshipApplication
	sections map[string]storedSection
}

func NewSponsorshipRepository() *SponsorshipRepository {
	return &SponsorshipRepository{
		apps:     make(map[string]*domain.SponsorshipApplication),
		sections: make(map[string]storedSection),
	}
}

var _ domain.SponsorshipRepository = (*SponsorshipRepository)(nil)

func (r *SponsorshipRepository) CreateForAccount(_ context.Context, app *domain.SponsorshipApplication) (*domain.SponsorshipApplication, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.apps {
		if existing.AccountID == app.AccountID {
			return existing.Clone(), false, nil
		}
	}
	r.apps[app.ID] = app.Clone()
	return app.Clone(), true, nil
}

func (r *SponsorshipRepository) GetByID(_ context.Context, id string) (*domain.SponsorshipApplication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	app, ok := r.apps[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return app.Clone(), nil
}

func (r *SponsorshipRepository) GetByPaymentSession(_ context.Context, sessionRef string) (*domain.SponsorshipApplication, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, app := range r.apps {
		if sessionRef != "" && app.PaymentSessionRef == sessionRef {
			return app.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *SponsorshipRepository) LoadSections(_ context.Context, app *domain.SponsorshipApplication) (map[domain.SectionKind]json.RawMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.SectionKind]json.RawMessage, len(app.SectionRefs))
	for _, ref := range app.SectionRefs {
		if s, ok := r.sections[ref]; ok {
			out[s.kind] = append(json.RawMessage(nil), s.data...)
		}
	}
	return out, nil
}

func (r *SponsorshipRepository) List(_ context.Context, filter domain.ApplicationFilter) ([]domain.SponsorshipApplication, error) {
	r.mu.RLock()
	matched := make([]domain.SponsorshipApplication, 0, len(r.apps))
	for _, app := range r.apps {
		if filter.Status == "" || app.Status() == filter.Status {
			matched = append(matched, *app.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if filter.Offset >= len(matched) {
		return []domain.SponsorshipApplication{}, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

// WithinApplication runs fn against a working copy and publishes it only
// when fn succeeds.
func (r *SponsorshipRepository) WithinApplication(ctx context.Context, id string, fn func(ctx context.Context, tx domain.SponsorshipTx) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.RLock()
	current, ok := r.apps[id]
	if !ok {
		r.mu.RUnlock()
		return domain.ErrNotFound
	}
	tx := &sponsorshipTx{repo: r, app: current.Clone(), staged: map[string]storedSection{}}
	r.mu.RUnlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for ref, s := range tx.staged {
		r.sections[ref] = s
	}
	r.apps[id] = tx.app.Clone()
	return nil
}

type sponsorshipTx struct {
	repo   *SponsorshipRepository
	app    *domain.SponsorshipApplication
	staged map[string]storedSection
}

func (t *sponsorshipTx) Application() *domain.SponsorshipApplication {
	return t.app
}

func (t *sponsorshipTx) SectionData(_ context.Context, kind domain.SectionKind) (json.RawMessage, error) {
	ref := t.app.SectionRefs[kind]
	if ref == "" {
		return nil, nil
	}
	if s, ok := t.staged[ref]; ok {
		return s.data, nil
	}
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	if s, ok := t.repo.sections[ref]; ok {
		return append(json.RawMessage(nil), s.data...), nil
	}
	return nil, nil
}

func (t *sponsorshipTx) SaveSection(_ context.Context, kind domain.SectionKind, data json.RawMessage, now time.Time) (string, error) {
	if t.app.IsSubmitted {
		return "", domain.ErrAlreadySubmitted
	}
	ref := t.app.SectionRefs[kind]
	if ref == "" {
		ref = uuid.NewString()
	}
	t.staged[ref] = storedSection{kind: kind, data: append(json.RawMessage(nil), data...)}
	t.app.SectionRefs[kind] = ref
	t.app.UpdatedAt = now
	return ref, nil
}

func (t *sponsorshipTx) MarkSubmitted(_ context.Context, at time.Time) error {
	if t.app.IsSubmitted {
		return domain.ErrAlreadySubmitted
	}
	t.app.IsSubmitted = true
	t.app.SubmittedAt = &at
	t.app.UpdatedAt = at
	return nil
}

func (t *sponsorshipTx) SetPaymentSession(_ context.Context, planID, sessionRef string, now time.Time) error {
	if !t.app.IsSubmitted {
		return domain.ErrNotSubmitted
	}
	if t.app.IsPaid {
		return domain.ErrAlreadyPaid
	}
	t.app.PlanSelected = planID
	t.app.PaymentSessionRef = sessionRef
	t.app.UpdatedAt = now
	return nil
}

func (t *sponsorshipTx) MarkPaid(_ context.Context, planID string, paidAt, validUntil time.Time) error {
	if !t.app.IsSubmitted {
		return domain.ErrNotSubmitted
	}
	if t.app.IsPaid {
		return domain.ErrAlreadyPaid
	}
	t.app.IsPaid = true
	t.app.PlanSelected = planID
	t.app.PlanPaidAt = &paidAt
	t.app.PlanValidUntil = &validUntil
	t.app.UpdatedAt = paidAt
	return nil
}
