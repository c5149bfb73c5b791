package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"softhire-backend/internal/domain"
	"softhire-backend/pkg/apperror"
	"softhire-backend/pkg/metrics"
	"softhire-backend/pkg/validation"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type SponsorshipDeps struct {
	Repo      domain.SponsorshipRepository
	Users     domain.UserRepository
	Validator *SectionValidator
	Notifier  domain.Notifier
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Now       func() time.Time
}

type sponsorshipUsecase struct {
	repo      domain.SponsorshipRepository
	validator *SectionValidator
	notifier  domain.Notifier
	snapshots snapshotBuilder
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
}

func NewSponsorshipUsecase(deps SponsorshipDeps) domain.SponsorshipUsecase {
	if deps.Validator == nil {
		deps.Validator = NewSectionValidator(nil)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &sponsorshipUsecase{
		repo:      deps.Repo,
		validator: deps.Validator,
		notifier:  deps.Notifier,
		snapshots: snapshotBuilder{repo: deps.Repo, users: deps.Users},
		metrics:   deps.Metrics,
		log:       deps.Logger,
		now:       deps.Now,
	}
}

func (u *sponsorshipUsecase) CreateApplication(ctx context.Context, accountID string) (*domain.SponsorshipApplication, bool, error) {
	if accountID == "" {
		return nil, false, apperror.Unauthorized("User not authenticated")
	}
	role, _ := ctx.Value(domain.KeyUserRole).(string)
	if role != domain.RoleRecruiter && role != domain.RoleAdmin {
		return nil, false, apperror.Forbidden("Only recruiter accounts can start a sponsorship application.")
	}

	app := domain.NewSponsorshipApplication(uuid.NewString(), accountID, u.now().UTC())
	stored, created, err := u.repo.CreateForAccount(ctx, app)
	if err != nil {
		return nil, false, toAppError(err)
	}
	if created {
		u.log.Info("sponsorship application created",
			zap.String("application_id", stored.ID),
			zap.String("account_id", accountID))
	}
	return stored, created, nil
}

func (u *sponsorshipUsecase) GetApplication(ctx context.Context, id, accountID string) (*domain.ApplicationDetail, error) {
	app, err := u.readableApplication(ctx, id, accountID)
	if err != nil {
		return nil, err
	}

	raw, err := u.repo.LoadSections(ctx, app)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	sections, err := domain.DecodeSectionSet(raw)
	if err != nil {
		return nil, apperror.Internal(err)
	}

	return &domain.ApplicationDetail{
		Application: app,
		Status:      app.Status(),
		Sections:    sections,
		Missing:     app.MissingSections(),
	}, nil
}

func (u *sponsorshipUsecase) GetSection(ctx context.Context, id, accountID string, kind domain.SectionKind) (domain.Section, error) {
	if !kind.Valid() {
		return nil, apperror.NotFound("Unknown section.")
	}
	app, err := u.readableApplication(ctx, id, accountID)
	if err != nil {
		return nil, err
	}
	if app.SectionRefs[kind] == "" {
		return nil, apperror.NotFound("Section has not been completed yet.")
	}

	raw, err := u.repo.LoadSections(ctx, app)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	data, ok := raw[kind]
	if !ok {
		return nil, apperror.NotFound("Section has not been completed yet.")
	}
	section, err := domain.NewSection(kind)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if err := json.Unmarshal(data, section); err != nil {
		return nil, apperror.Internal(err)
	}
	return section, nil
}

// UpdateSection applies patch as a JSON merge patch over the stored section,
// validates the merged document and stores it together with the aggregate's
// reference in one transaction.
func (u *sponsorshipUsecase) UpdateSection(ctx context.Context, id, accountID string, kind domain.SectionKind, patch json.RawMessage) (result domain.Section, err error) {
	ctx, span := tracer.Start(ctx, "sponsorship.UpdateSection", trace.WithAttributes(
		attribute.String("application.id", id),
		attribute.String("section.kind", string(kind)),
	))
	defer func() {
		u.metrics.SectionUpdate(string(kind), outcome(err))
		endSpan(span, err)
	}()

	if !kind.Valid() {
		return nil, apperror.NotFound("Unknown section.")
	}
	if !isJSONObject(patch) {
		return nil, apperror.Validation("Section payload must be a JSON object.")
	}

	txErr := u.repo.WithinApplication(ctx, id, func(ctx context.Context, tx domain.SponsorshipTx) error {
		app := tx.Application()
		if !app.OwnedBy(accountID) {
			return errForbidden()
		}
		if app.IsSubmitted {
			return domain.ErrAlreadySubmitted
		}

		current, err := tx.SectionData(ctx, kind)
		if err != nil {
			return err
		}
		merged := []byte(patch)
		if len(current) > 0 {
			effective, err := clearSwitchedOff(kind, patch)
			if err != nil {
				return apperror.Validation("Section payload could not be decoded.")
			}
			merged, err = jsonpatch.MergePatch(current, effective)
			if err != nil {
				return apperror.Validation("Section payload could not be merged with the saved section.")
			}
		}

		section, err := domain.DecodeSection(kind, merged)
		if err != nil {
			return apperror.Validation(validation.DecodeMessage(err))
		}
		if err := u.validator.Validate(section); err != nil {
			return err
		}

		normalized, err := json.Marshal(section)
		if err != nil {
			return err
		}
		if _, err := tx.SaveSection(ctx, kind, normalized, u.now().UTC()); err != nil {
			return err
		}
		result = section
		return nil
	})
	if txErr != nil {
		return nil, toAppError(txErr)
	}
	return result, nil
}

func (u *sponsorshipUsecase) Submit(ctx context.Context, id, accountID string) (submitted *domain.SponsorshipApplication, err error) {
	ctx, span := tracer.Start(ctx, "sponsorship.Submit", trace.WithAttributes(
		attribute.String("application.id", id),
	))
	defer func() {
		u.metrics.Submission(outcome(err))
		endSpan(span, err)
	}()

	txErr := u.repo.WithinApplication(ctx, id, func(ctx context.Context, tx domain.SponsorshipTx) error {
		app := tx.Application()
		if !app.OwnedBy(accountID) {
			return errForbidden()
		}
		if app.IsSubmitted {
			return domain.ErrAlreadySubmitted
		}
		if missing := app.MissingSections(); len(missing) > 0 {
			return apperror.Validation("Please complete all sections before submission.").
				WithDetails(map[string]interface{}{"missingSections": missing})
		}
		if err := tx.MarkSubmitted(ctx, u.now().UTC()); err != nil {
			return err
		}
		submitted = tx.Application().Clone()
		return nil
	})
	if txErr != nil {
		return nil, toAppError(txErr)
	}

	u.log.Info("sponsorship application submitted", zap.String("application_id", id))
	u.notify(ctx, submitted, notifySubmission)
	return submitted, nil
}

func (u *sponsorshipUsecase) ListApplications(ctx context.Context, filter domain.ApplicationFilter) ([]domain.SponsorshipApplication, error) {
	role, _ := ctx.Value(domain.KeyUserRole).(string)
	if role != domain.RoleAdmin {
		return nil, apperror.Forbidden("Only admins can list applications")
	}
	switch filter.Status {
	case "", domain.StatusDraft, domain.StatusSubmitted, domain.StatusPaid:
	default:
		return nil, apperror.Validation("status must be one of: draft, submitted, paid.")
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	apps, err := u.repo.List(ctx, filter)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return apps, nil
}

// readableApplication loads an application the requester may read: owners,
// and admins for back office review.
func (u *sponsorshipUsecase) readableApplication(ctx context.Context, id, accountID string) (*domain.SponsorshipApplication, error) {
	app, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, toAppError(err)
	}
	if !app.OwnedBy(accountID) {
		role, _ := ctx.Value(domain.KeyUserRole).(string)
		if role != domain.RoleAdmin {
			return nil, errForbidden()
		}
	}
	return app, nil
}

type notificationKind string

const (
	notifySubmission notificationKind = "submission"
	notifyPayment    notificationKind = "payment"
)

// notify hands a snapshot to the notifier. Failures are logged and never
// reach the caller: the state transition has already committed.
func (u *sponsorshipUsecase) notify(ctx context.Context, app *domain.SponsorshipApplication, kind notificationKind) {
	email, _ := ctx.Value(domain.KeyUserEmail).(string)
	dispatchNotification(ctx, u.notifier, u.snapshots, app, email, kind, u.now().UTC(), u.log)
}

func dispatchNotification(ctx context.Context, notifier domain.Notifier, b snapshotBuilder, app *domain.SponsorshipApplication,
	fallbackEmail string, kind notificationKind, now time.Time, log *zap.Logger) {
	if notifier == nil {
		return
	}
	snap, err := b.build(ctx, app, fallbackEmail, now)
	if err != nil {
		log.Error("failed to build notification snapshot",
			zap.String("application_id", app.ID), zap.String("kind", string(kind)), zap.Error(err))
		return
	}

	switch kind {
	case notifySubmission:
		err = notifier.NotifySubmission(ctx, snap)
	case notifyPayment:
		err = notifier.NotifyPayment(ctx, snap)
	}
	if err != nil {
		log.Error("failed to dispatch notification",
			zap.String("application_id", app.ID), zap.String("kind", string(kind)), zap.Error(err))
	}
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
