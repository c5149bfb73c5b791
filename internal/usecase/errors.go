package usecase

import (
	"errors"

	"softhire-backend/internal/domain"
	"softhire-backend/pkg/apperror"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("softhire-backend/usecase")

// toAppError maps repository and state errors onto the API error taxonomy.
func toAppError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return apperror.NotFound("Application not found.")
	case errors.Is(err, domain.ErrAlreadySubmitted):
		return apperror.Conflict("Application has already been submitted.")
	case errors.Is(err, domain.ErrNotSubmitted):
		return apperror.Conflict("Application must be submitted before payment.")
	case errors.Is(err, domain.ErrAlreadyPaid):
		return apperror.Conflict("Application has already been paid.")
	}
	return apperror.Internal(err)
}

// outcome labels an error for metrics.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case 400:
			return "invalid"
		case 403:
			return "forbidden"
		case 404:
			return "not_found"
		case 409:
			return "conflict"
		case 503:
			return "upstream"
		}
	}
	return "error"
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func errForbidden() error {
	return apperror.Forbidden("You do not have access to this application.")
}
