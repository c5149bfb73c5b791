package domain

import (
	"context"
	"time"
)

// ObjectStorage issues short lived upload URLs for applicant documents.
type ObjectStorage interface {
	PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	ObjectURL(key string) string
}

// UploadQuota bounds how many uploads one account may start. Allow returns
// false and a retry delay once the account has used its quota.
type UploadQuota interface {
	Allow(ctx context.Context, accountID string) (bool, time.Duration, error)
}

type UploadRequest struct {
	Slot        string `json:"slot" validate:"required"`
	FileName    string `json:"fileName" validate:"required,max=255"`
	ContentType string `json:"contentType" validate:"required"`
}

type UploadTicket struct {
	UploadURL string    `json:"uploadUrl"`
	ObjectKey string    `json:"objectKey"`
	File      FileRef   `json:"file"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type DocumentUsecase interface {
	RequestUploadURL(ctx context.Context, id, accountID string, req UploadRequest) (*UploadTicket, error)
}
