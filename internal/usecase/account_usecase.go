package usecase

import (
	"context"
	"errors"
	"time"

	"softhire-backend/internal/domain"
	"softhire-backend/pkg/apperror"
)

type accountUsecase struct {
	userRepo      domain.UserRepository
	autoProvision bool
}

// NewAccountUsecase resolves bearer token subjects to local accounts. With
// autoProvision enabled an unknown subject is created as a recruiter.
func NewAccountUsecase(userRepo domain.UserRepository, autoProvision bool) domain.AccountUsecase {
	return &accountUsecase{userRepo: userRepo, autoProvision: autoProvision}
}

func (u *accountUsecase) ResolveAccount(ctx context.Context, identity domain.TokenIdentity) (*domain.User, error) {
	if identity.Subject == "" {
		return nil, apperror.Unauthorized("Invalid token subject")
	}

	user, err := u.userRepo.GetByID(ctx, identity.Subject)
	if err == nil && user != nil {
		return user, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, apperror.Internal(err)
	}
	if !u.autoProvision {
		return nil, apperror.Unauthorized("User not found")
	}

	now := time.Now().UTC()
	user = &domain.User{
		ID:        identity.Subject,
		Email:     identity.Email,
		FullName:  identity.FullName,
		Role:      domain.RoleRecruiter,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.userRepo.Create(ctx, user); err != nil {
		// Lost a race with a concurrent first request for the same subject.
		if existing, getErr := u.userRepo.GetByID(ctx, identity.Subject); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return user, nil
}

func (u *accountUsecase) GetCurrentUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := u.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperror.NotFound("User not found")
		}
		return nil, apperror.Internal(err)
	}
	return user, nil
}

func (u *accountUsecase) AssignRole(ctx context.Context, userID string, role string) error {
	// Only admins can assign roles
	ctxRole, ok := ctx.Value(domain.KeyUserRole).(string)
	if !ok || ctxRole != domain.RoleAdmin {
		return apperror.Forbidden("Only admins can assign roles")
	}
	if role != domain.RoleRecruiter && role != domain.RoleAdmin {
		return apperror.Validation("role must be one of: recruiter, admin.")
	}

	user, err := u.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apperror.NotFound("User not found")
		}
		return apperror.Internal(err)
	}

	user.Role = role
	user.UpdatedAt = time.Now().UTC()
	return u.userRepo.Update(ctx, user)
}
