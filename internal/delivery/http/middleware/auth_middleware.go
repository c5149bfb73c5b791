package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"softhire-backend/internal/delivery/http/response"
	"softhire-backend/internal/domain"
	"softhire-backend/pkg/apperror"
	"softhire-backend/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type AuthConfig struct {
	// JWTSecret verifies HS256 tokens. Empty disables HS256.
	JWTSecret string
	// JWKS verifies RS256 tokens. Nil disables RS256.
	JWKS *auth.Provider
}

// AuthMiddleware verifies the bearer token, resolves the local account and
// stores the identity on both the gin context and the request context.
func AuthMiddleware(cfg AuthConfig, accountUC domain.AccountUsecase, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if authHeader == "" || tokenString == "" || tokenString == authHeader {
			response.Error(c, http.StatusUnauthorized, "Authorization bearer token required", nil)
			c.Abort()
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
				if cfg.JWTSecret == "" {
					return nil, fmt.Errorf("HS256 token received but JWT_SECRET is not configured")
				}
				return []byte(cfg.JWTSecret), nil
			}
			if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
				if !cfg.JWKS.Configured() {
					return nil, fmt.Errorf("RS256 token received but JWKS_URL is not configured")
				}
				return cfg.JWKS.KeyFunc(token)
			}
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		})
		if err != nil || !token.Valid {
			log.Debug("token validation failed", zap.Error(err))
			response.Error(c, http.StatusUnauthorized, "Invalid token", nil)
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			response.Error(c, http.StatusUnauthorized, "Invalid claims", nil)
			c.Abort()
			return
		}

		identity := identityFromClaims(claims)
		// The role comes from the local account, never from the token.
		user, err := accountUC.ResolveAccount(c.Request.Context(), identity)
		if err != nil {
			var appErr *apperror.AppError
			if errors.As(err, &appErr) && appErr.Code < http.StatusInternalServerError {
				response.Error(c, appErr.Code, appErr.Message, nil)
			} else {
				log.Error("failed to resolve account", zap.String("subject", identity.Subject), zap.Error(err))
				response.Error(c, http.StatusInternalServerError, "An unexpected error occurred. Please try again later.", nil)
			}
			c.Abort()
			return
		}

		email := user.Email
		if email == "" {
			email = identity.Email
		}
		role := user.Role
		if role == "" {
			role = domain.RoleRecruiter
		}

		c.Set(string(domain.KeyUserID), user.ID)
		c.Set(string(domain.KeyUserEmail), email)
		c.Set(string(domain.KeyUserName), user.FullName)
		c.Set(string(domain.KeyUserRole), role)

		ctx := context.WithValue(c.Request.Context(), domain.KeyUserID, user.ID)
		ctx = context.WithValue(ctx, domain.KeyUserEmail, email)
		ctx = context.WithValue(ctx, domain.KeyUserName, user.FullName)
		ctx = context.WithValue(ctx, domain.KeyUserRole, role)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireRole aborts with 403 unless the authenticated role is one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c *gin.Context) {
		if !allowed[c.GetString(string(domain.KeyUserRole))] {
			response.Error(c, http.StatusForbidden, "Insufficient permissions", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}

func identityFromClaims(claims jwt.MapClaims) domain.TokenIdentity {
	id := domain.TokenIdentity{}
	id.Subject, _ = claims["sub"].(string)
	if id.Subject == "" {
		id.Subject, _ = claims["id"].(string)
	}
	id.Email, _ = claims["email"].(string)
	id.FullName, _ = claims["name"].(string)
	if id.FullName == "" {
		if meta, ok := claims["user_metadata"].(map[string]interface{}); ok {
			id.FullName, _ = meta["full_name"].(string)
		}
	}
	id.Role, _ = claims["role"].(string)
	return id
}
