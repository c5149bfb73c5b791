package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"softhire-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
)

// sectionColumns maps each section kind to its reference column on
// sponsorship_applications.
var sectionColumns = map[domain.SectionKind]string{
	domain.SectionGettingStarted:      "getting_started_id",
	domain.SectionAboutYourCompany:    "about_your_company_id",
	domain.SectionCompanyStructure:    "company_structure_id",
	domain.SectionActivityAndNeeds:    "activity_and_needs_id",
	domain.SectionAuthorisingOfficer:  "authorising_officer_id",
	domain.SectionSystemAccess:        "system_access_id",
	domain.SectionSupportingDocuments: "supporting_documents_id",
	domain.SectionOrganizationSize:    "organization_size_id",
	domain.SectionDeclarations:        "declarations_id",
}

var applicationColumns = buildApplicationColumns()

func buildApplicationColumns() string {
	cols := []string{"id", "account_id"}
	for _, kind := range domain.SectionKinds {
		cols = append(cols, sectionColumns[kind])
	}
	cols = append(cols,
		"is_submitted", "submitted_at", "is_paid", "plan_selected", "plan_paid_at",
		"plan_valid_until", "payment_session_ref", "created_at", "updated_at")
	return strings.Join(cols, ", ")
}

type sponsorshipRepo struct {
	db *pgxpool.Pool
}

// NewSponsorshipRepository stores applications in sponsorship_applications
// and section documents as JSONB rows in sponsorship_sections.
func NewSponsorshipRepository(db *pgxpool.Pool) domain.SponsorshipRepository {
	return &sponsorshipRepo{db: db}
}

func (r *sponsorshipRepo) CreateForAccount(ctx context.Context, app *domain.SponsorshipApplication) (*domain.SponsorshipApplication, bool, error) {
	query := `
		INSERT INTO sponsorship_applications (id, account_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (account_id) DO NOTHING
		RETURNING id`

	var id string
	err := r.db.QueryRow(ctx, query, app.ID, app.AccountID, app.CreatedAt, app.UpdatedAt).Scan(&id)
	if err == nil {
		return app.Clone(), true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	existing, err := scanApplication(r.db.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM sponsorship_applications WHERE account_id = $1`, app.AccountID))
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *sponsorshipRepo) GetByID(ctx context.Context, id string) (*domain.SponsorshipApplication, error) {
	return scanApplication(r.db.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM sponsorship_applications WHERE id = $1`, id))
}

func (r *sponsorshipRepo) GetByPaymentSession(ctx context.Context, sessionRef string) (*domain.SponsorshipApplication, error) {
	return scanApplication(r.db.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM sponsorship_applications WHERE payment_session_ref = $1`, sessionRef))
}

// LoadSections fetches every referenced section document in one query.
func (r *sponsorshipRepo) LoadSections(ctx context.Context, app *domain.SponsorshipApplication) (map[domain.SectionKind]json.RawMessage, error) {
	ids := make([]string, 0, len(app.SectionRefs))
	for _, ref := range app.SectionRefs {
		if ref != "" {
			ids = append(ids, ref)
		}
	}
	out := make(map[domain.SectionKind]json.RawMessage, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT kind, data FROM sponsorship_sections WHERE id = ANY($1::text[])`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var kind string
		var data []byte
		if err := rows.Scan(&kind, &data); err != nil {
			return nil, err
		}
		out[domain.SectionKind(kind)] = json.RawMessage(data)
	}
	return out, rows.Err()
}

func (r *sponsorshipRepo) List(ctx context.Context, filter domain.ApplicationFilter) ([]domain.SponsorshipApplication, error) {
	where := ""
	switch filter.Status {
	case domain.StatusDraft:
		where = "WHERE NOT is_submitted"
	case domain.StatusSubmitted:
		where = "WHERE is_submitted AND NOT is_paid"
	case domain.StatusPaid:
		where = "WHERE is_paid"
	}
	query := fmt.Sprintf(`SELECT %s FROM sponsorship_applications %s
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, applicationColumns, where)

	rows, err := r.db.Query(ctx, query, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	apps := []domain.SponsorshipApplication{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	return apps, rows.Err()
}

func (r *sponsorshipRepo) WithinApplication(ctx context.Context, id string, fn func(ctx context.Context, tx domain.SponsorshipTx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Row lock serialises every transition on this application.
	app, err := scanApplication(tx.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM sponsorship_applications WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return err
	}

	if err := fn(ctx, &sponsorshipTx{tx: tx, app: app}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type sponsorshipTx struct {
	tx  pgx.Tx
	app *domain.SponsorshipApplication
}

func (t *sponsorshipTx) Application() *domain.SponsorshipApplication {
	return t.app
}

func (t *sponsorshipTx) SectionData(ctx context.Context, kind domain.SectionKind) (json.RawMessage, error) {
	ref := t.app.SectionRefs[kind]
	if ref == "" {
		return nil, nil
	}
	var data []byte
	err := t.tx.QueryRow(ctx, `SELECT data FROM sponsorship_sections WHERE id = $1`, ref).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return json.RawMessage(data), nil
}

func (t *sponsorshipTx) SaveSection(ctx context.Context, kind domain.SectionKind, data json.RawMessage, now time.Time) (string, error) {
	column, ok := sectionColumns[kind]
	if !ok {
		return "", fmt.Errorf("unknown section kind %q", kind)
	}

	ref := t.app.SectionRefs[kind]
	if ref != "" {
		_, err := t.tx.Exec(ctx,
			`UPDATE sponsorship_sections SET data = $2::jsonb, updated_at = $3 WHERE id = $1`,
			ref, string(data), now)
		if err != nil {
			return "", err
		}
	} else {
		ref = uuid.NewString()
		_, err := t.tx.Exec(ctx,
			`INSERT INTO sponsorship_sections (id, kind, data, created_at, updated_at) VALUES ($1, $2, $3::jsonb, $4, $4)`,
			ref, string(kind), string(data), now)
		if err != nil {
			return "", err
		}
	}

	tag, err := t.tx.Exec(ctx,
		fmt.Sprintf(`UPDATE sponsorship_applications SET %s = $2, updated_at = $3 WHERE id = $1 AND NOT is_submitted`, column),
		t.app.ID, ref, now)
	if err != nil {
		return "", err
	}
	if tag.RowsAffected() == 0 {
		return "", domain.ErrAlreadySubmitted
	}

	t.app.SectionRefs[kind] = ref
	t.app.UpdatedAt = now
	return ref, nil
}

func (t *sponsorshipTx) MarkSubmitted(ctx context.Context, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE sponsorship_applications
		SET is_submitted = true, submitted_at = $2, updated_at = $2
		WHERE id = $1 AND NOT is_submitted`, t.app.ID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadySubmitted
	}
	t.app.IsSubmitted = true
	t.app.SubmittedAt = &at
	t.app.UpdatedAt = at
	return nil
}

func (t *sponsorshipTx) SetPaymentSession(ctx context.Context, planID, sessionRef string, now time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE sponsorship_applications
		SET plan_selected = $2, payment_session_ref = $3, updated_at = $4
		WHERE id = $1 AND is_submitted AND NOT is_paid`, t.app.ID, planID, sessionRef, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if !t.app.IsSubmitted {
			return domain.ErrNotSubmitted
		}
		return domain.ErrAlreadyPaid
	}
	t.app.PlanSelected = planID
	t.app.PaymentSessionRef = sessionRef
	t.app.UpdatedAt = now
	return nil
}

func (t *sponsorshipTx) MarkPaid(ctx context.Context, planID string, paidAt, validUntil time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE sponsorship_applications
		SET is_paid = true, plan_selected = $2, plan_paid_at = $3, plan_valid_until = $4, updated_at = $3
		WHERE id = $1 AND is_submitted AND NOT is_paid`, t.app.ID, planID, paidAt, validUntil)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if !t.app.IsSubmitted {
			return domain.ErrNotSubmitted
		}
		return domain.ErrAlreadyPaid
	}
	t.app.IsPaid = true
	t.app.PlanSelected = planID
	t.app.PlanPaidAt = &paidAt
	t.app.PlanValidUntil = &validUntil
	t.app.UpdatedAt = paidAt
	return nil
}

func scanApplication(row pgx.Row) (*domain.SponsorshipApplication, error) {
	var app domain.SponsorshipApplication
	var planSelected, sessionRef *string
	refs := make([]*string, len(domain.SectionKinds))

	dest := []any{&app.ID, &app.AccountID}
	for i := range refs {
		dest = append(dest, &refs[i])
	}
	dest = append(dest,
		&app.IsSubmitted, &app.SubmittedAt, &app.IsPaid, &planSelected, &app.PlanPaidAt,
		&app.PlanValidUntil, &sessionRef, &app.CreatedAt, &app.UpdatedAt)

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	app.SectionRefs = make(map[domain.SectionKind]string, len(domain.SectionKinds))
	for i, kind := range domain.SectionKinds {
		if refs[i] != nil && *refs[i] != "" {
			app.SectionRefs[kind] = *refs[i]
		}
	}
	if planSelected != nil {
		app.PlanSelected = *planSelected
	}
	if sessionRef != nil {
		app.PaymentSessionRef = *sessionRef
	}
	return &app, nil
}
