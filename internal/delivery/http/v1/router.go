package v1

import (
	"net/http"
	"time"

	"softhire-backend/internal/delivery/http/middleware"
	"softhire-backend/internal/delivery/http/response"
	"softhire-backend/internal/domain"
	"softhire-backend/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

type RouterDeps struct {
	SponsorshipUC domain.SponsorshipUsecase
	PaymentUC     domain.PaymentUsecase
	DocumentUC    domain.DocumentUsecase
	AccountUC     domain.AccountUsecase
	Auth          middleware.AuthConfig
	RateLimiter   *middleware.RateLimiter // nil disables rate limiting
	RateLimit     RateLimitSettings
	// Gatherer backs /v1/metrics. Nil hides the endpoint.
	Gatherer       prometheus.Gatherer
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
	AllowedOrigins []string
	AllowLocalhost bool
}

type RateLimitSettings struct {
	Window          time.Duration
	GlobalThreshold int
	WriteThreshold  int
}

func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := gin.New()

	// Global Middlewares
	r.Use(middleware.CORSMiddleware(deps.AllowedOrigins, deps.AllowLocalhost)) // CORS must be first!
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(deps.Logger, deps.Metrics))
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(middleware.ErrorHandler(deps.Logger))
	if deps.RateLimiter != nil && deps.RateLimit.GlobalThreshold > 0 {
		r.Use(deps.RateLimiter.Middleware(middleware.IPRateLimitConfig(deps.RateLimit.GlobalThreshold, deps.RateLimit.Window)))
	}

	v1 := r.Group("/v1")

	// Health Check
	v1.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, "System operational", nil)
	})
	if deps.Gatherer != nil {
		v1.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	// Swagger
	v1.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Protected routes
	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware(deps.Auth, deps.AccountUC, deps.Logger))
	if deps.RateLimiter != nil && deps.RateLimit.WriteThreshold > 0 {
		protected.Use(writesOnly(deps.RateLimiter.Middleware(middleware.AccountRateLimitConfig(deps.RateLimit.WriteThreshold, deps.RateLimit.Window))))
	}

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireRole(domain.RoleAdmin))

	{
		NewAccountHandler(protected, admin, deps.AccountUC)
		NewSponsorshipHandler(protected, admin, deps.SponsorshipUC)
		NewPaymentHandler(v1, protected, deps.PaymentUC)
		NewDocumentHandler(protected, deps.DocumentUC)
	}

	return r
}

// writesOnly applies h to mutating requests and passes reads through.
func writesOnly(h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
		default:
			h(c)
		}
	}
}
