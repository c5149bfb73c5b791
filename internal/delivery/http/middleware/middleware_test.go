package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"softhire-backend/internal/delivery/http/middleware"
	"softhire-backend/internal/domain"
	"softhire-backend/pkg/apperror"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const secret = "middleware-test-secret"

type MockAccountUC struct {
	mock.Mock
}

func (m *MockAccountUC) ResolveAccount(ctx context.Context, identity domain.TokenIdentity) (*domain.User, error) {
	args := m.Called(ctx, identity)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockAccountUC) GetCurrentUser(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockAccountUC) AssignRole(ctx context.Context, userID string, role string) error {
	return m.Called(ctx, userID, role).Error(0)
}

func init() {
	gin.SetMode(gin.TestMode)
}

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

// echoRouter returns the identity the middleware stored on both contexts.
func echoRouter(accountUC domain.AccountUsecase) *gin.Engine {
	r := gin.New()
	r.Use(middleware.AuthMiddleware(middleware.AuthConfig{JWTSecret: secret}, accountUC, nil))
	r.GET("/me", func(c *gin.Context) {
		ctxRole, _ := c.Request.Context().Value(domain.KeyUserRole).(string)
		c.JSON(http.StatusOK, gin.H{
			"id":      c.GetString(string(domain.KeyUserID)),
			"role":    c.GetString(string(domain.KeyUserRole)),
			"ctxRole": ctxRole,
		})
	})
	admin := r.Group("/admin", middleware.RequireRole(domain.RoleAdmin))
	admin.GET("", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func get(r http.Handler, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_RoleComesFromAccount(t *testing.T) {
	accounts := new(MockAccountUC)
	accounts.On("ResolveAccount", mock.Anything, mock.MatchedBy(func(id domain.TokenIdentity) bool {
		return id.Subject == "user-1" && id.Email == "u1@acme.co.uk" && id.FullName == "Una One"
	})).Return(&domain.User{ID: "user-1", Email: "u1@acme.co.uk", Role: domain.RoleRecruiter}, nil)

	tok := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
		"sub":           "user-1",
		"email":         "u1@acme.co.uk",
		"role":          "admin",
		"user_metadata": map[string]interface{}{"full_name": "Una One"},
		"exp":           time.Now().Add(time.Hour).Unix(),
	})

	r := echoRouter(accounts)
	w := get(r, "/me", tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"user-1","role":"recruiter","ctxRole":"recruiter"}`, w.Body.String())

	w = get(r, "/admin", tok)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuthMiddleware_RejectsBadTokens(t *testing.T) {
	accounts := new(MockAccountUC)
	r := echoRouter(accounts)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "abc.def.ghi"},
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "u", "exp": time.Now().Add(time.Hour).Unix()})},
		{"expired", sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-time.Hour).Unix()})},
		{"none algorithm", sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"sub": "u"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(r, "/me", tt.token)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
	accounts.AssertNotCalled(t, "ResolveAccount", mock.Anything, mock.Anything)
}

func TestAuthMiddleware_UnknownAccount(t *testing.T) {
	accounts := new(MockAccountUC)
	accounts.On("ResolveAccount", mock.Anything, mock.Anything).Return(nil, apperror.Unauthorized("User not found"))

	tok := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "ghost", "exp": time.Now().Add(time.Hour).Unix()})
	w := get(echoRouter(accounts), "/me", tok)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "User not found")
}

func limitedRouter(rl *middleware.RateLimiter, limit int) *gin.Engine {
	r := gin.New()
	r.Use(rl.Middleware(middleware.IPRateLimitConfig(limit, time.Minute)))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimiter_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rl := middleware.NewRateLimiter(client, nil)
	t.Cleanup(rl.Stop)
	r := limitedRouter(rl, 2)

	assert.Equal(t, http.StatusOK, get(r, "/", "").Code)
	w := get(r, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = get(r, "/", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// The window lives in Redis and expires with the key.
	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, get(r, "/", "").Code)
}

func TestRateLimiter_RedisSubSecondWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	rl := middleware.NewRateLimiter(client, nil)
	t.Cleanup(rl.Stop)
	r := gin.New()
	r.Use(rl.Middleware(middleware.IPRateLimitConfig(1, 500*time.Millisecond)))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(r, "/", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/", "").Code)

	mr.FastForward(2 * time.Second)
	assert.Equal(t, http.StatusOK, get(r, "/", "").Code)
}

func TestRateLimiter_FallsBackToMemory(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	rl := middleware.NewRateLimiter(client, nil)
	t.Cleanup(rl.Stop)
	r := limitedRouter(rl, 1)

	assert.Equal(t, http.StatusOK, get(r, "/", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/", "").Code)
}

func TestRateLimiter_FailClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	rl := middleware.NewRateLimiter(client, nil)
	t.Cleanup(rl.Stop)

	cfg := middleware.AccountRateLimitConfig(10, time.Minute)
	cfg.FailClosed = true
	r := gin.New()
	r.Use(rl.Middleware(cfg))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRateLimiter_WithoutRedis(t *testing.T) {
	rl := middleware.NewRateLimiter(nil, nil)
	t.Cleanup(rl.Stop)
	r := limitedRouter(rl, 1)

	assert.Equal(t, http.StatusOK, get(r, "/", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/", "").Code)
}

func TestErrorHandler_RendersAppErrors(t *testing.T) {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.ErrorHandler(nil))
	r.GET("/conflict", func(c *gin.Context) { _ = c.Error(apperror.Conflict("Application has already been submitted.")) })
	r.GET("/upstream", func(c *gin.Context) {
		_ = c.Error(apperror.Upstream("Payment provider timed out. Please try again.", context.DeadlineExceeded))
	})
	r.GET("/boom", func(c *gin.Context) { _ = c.Error(assert.AnError) })

	w := get(r, "/conflict", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Application has already been submitted.")

	w = get(r, "/upstream", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))

	w = get(r, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}

func TestRequestID_PropagatesHeader(t *testing.T) {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.GET("/", func(c *gin.Context) {
		id, _ := c.Request.Context().Value(domain.KeyRequestID).(string)
		c.String(http.StatusOK, id)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Body.String())
	assert.Equal(t, "req-123", w.Header().Get(middleware.RequestIDHeader))
}
