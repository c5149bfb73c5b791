package middleware

import (
	"errors"
	"net/http"

	"softhire-backend/internal/delivery/http/response"
	"softhire-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func ErrorHandler(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Code < http.StatusInternalServerError {
			if appErr.Retryable {
				c.Header("Retry-After", "5")
			}
			response.Error(c, appErr.Code, appErr.Message, appErr.Details)
			return
		}
		if errors.As(err, &appErr) && appErr.Code != http.StatusInternalServerError {
			log.Warn("upstream failure",
				zap.String("path", c.FullPath()),
				zap.String("request_id", c.GetString("RequestID")),
				zap.Error(err))
			if appErr.Retryable {
				c.Header("Retry-After", "5")
			}
			response.Error(c, appErr.Code, appErr.Message, appErr.Details)
			return
		}

		// Never expose internal error details to clients.
		log.Error("internal server error",
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString("RequestID")),
			zap.Error(unwrapInternal(err)))
		response.Error(c, http.StatusInternalServerError, "An unexpected error occurred. Please try again later.", nil)
	}
}

func unwrapInternal(err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Err != nil {
		return appErr.Err
	}
	return err
}
