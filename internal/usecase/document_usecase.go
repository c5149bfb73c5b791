package usecase

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"softhire-backend/internal/domain"
	"softhire-backend/pkg/apperror"
	"softhire-backend/pkg/validation"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// allowedUploadTypes maps accepted file extensions to their MIME types.
var allowedUploadTypes = map[string][]string{
	".pdf":  {"application/pdf"},
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
	".png":  {"image/png"},
	".doc":  {"application/msword"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
}

type documentUsecase struct {
	repo     domain.SponsorshipRepository
	storage  domain.ObjectStorage
	quota    domain.UploadQuota
	validate *validator.Validate
	ttl      time.Duration
	log      *zap.Logger
	now      func() time.Time
}

// NewDocumentUsecase builds the upload flow. A nil quota disables the
// per-account upload cap.
func NewDocumentUsecase(repo domain.SponsorshipRepository, storage domain.ObjectStorage, quota domain.UploadQuota, validate *validator.Validate, ttl time.Duration, log *zap.Logger) domain.DocumentUsecase {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	return &documentUsecase{repo: repo, storage: storage, quota: quota, validate: validate, ttl: ttl, log: log, now: time.Now}
}

// RequestUploadURL issues a presigned upload for one document slot. The
// returned FileRef is what the client later places in the section payload.
func (u *documentUsecase) RequestUploadURL(ctx context.Context, id, accountID string, req domain.UploadRequest) (*domain.UploadTicket, error) {
	if err := u.validate.Struct(req); err != nil {
		return nil, apperror.Validation(validation.FirstMessage(err))
	}
	if !domain.DocumentSlots[req.Slot] {
		return nil, apperror.Validation(fmt.Sprintf("Unknown document slot %q.", req.Slot))
	}

	ext := strings.ToLower(filepath.Ext(req.FileName))
	mimes, ok := allowedUploadTypes[ext]
	if !ok {
		return nil, apperror.Validation("File type not allowed. Accepted: pdf, jpg, jpeg, png, doc, docx.")
	}
	if !containsFold(mimes, req.ContentType) {
		return nil, apperror.Validation("Content type does not match the file extension.")
	}

	app, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, toAppError(err)
	}
	if !app.OwnedBy(accountID) {
		return nil, errForbidden()
	}
	if app.IsSubmitted {
		return nil, toAppError(domain.ErrAlreadySubmitted)
	}

	if u.quota != nil {
		allowed, retryAfter, err := u.quota.Allow(ctx, accountID)
		switch {
		case err != nil:
			// Fail open while the quota store is down.
			u.log.Warn("upload quota unavailable", zap.String("account_id", accountID), zap.Error(err))
		case !allowed:
			return nil, apperror.New(http.StatusTooManyRequests, "Upload limit reached. Please try again later.", nil).
				WithDetails(map[string]int{"retryAfterSeconds": int(retryAfter.Seconds())})
		}
	}

	key := fmt.Sprintf("sponsorship/%s/%s/%s%s", app.ID, req.Slot, uuid.NewString(), ext)
	uploadURL, err := u.storage.PresignUpload(ctx, key, req.ContentType, u.ttl)
	if err != nil {
		u.log.Error("failed to presign upload", zap.String("application_id", id), zap.Error(err))
		return nil, apperror.Upstream("Document storage is unavailable. Please try again.", err)
	}

	return &domain.UploadTicket{
		UploadURL: uploadURL,
		ObjectKey: key,
		File: domain.FileRef{
			Name: filepath.Base(req.FileName),
			URL:  u.storage.ObjectURL(key),
			Key:  key,
		},
		ExpiresAt: u.now().UTC().Add(u.ttl),
	}, nil
}

func containsFold(values []string, v string) bool {
	for _, candidate := range values {
		if strings.EqualFold(candidate, v) {
			return true
		}
	}
	return false
}
