package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/payment-ledger/internal/config"
	"github.com/richardliu001/payment-ledger/internal/payment"
	"github.com/richardliu001/payment-ledger/internal/provider/cardintent"
	"github.com/richardliu001/payment-ledger/internal/service"
	"go.uber.org/zap"
)

// Deps are the services the handlers call.
type Deps struct {
	Payments *payment.Service
	Ledger   *service.LedgerService
	Webhooks *cardintent.WebhookHandler

	WebhookSecret    string
	WebhookTolerance time.Duration
}

func NewRouter(d Deps, cfg *config.Config, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(TenantMiddleware(cfg.Tenancy.DefaultTenant))
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	RegisterHandlers(r, d, cfg.Auth.JWTSecret, log)
	return r
}

func RegisterHandlers(r *gin.Engine, d Deps, jwtSecret string, log *zap.SugaredLogger) {
	v1 := r.Group("/v1")
	{
		v1.GET("/providers/:provider/ping", pingHandler(d))
		v1.POST("/providers/:provider/init", initHandler(d, log))
		v1.POST("/providers/:provider/charge", chargeHandler(d, log))
		v1.POST("/providers/:provider/sync", syncHandler(d, log))

		v1.GET("/orderables/:id/total-paid", totalPaidHandler(d))
		v1.GET("/orderables/:id/transactions", historyHandler(d))

		v1.POST("/webhooks/stripe-intent", stripeWebhookHandler(d, log))
	}

	cashier := v1.Group("/cashier", CashierAuthMiddleware(jwtSecret))
	{
		cashier.POST("/providers/:provider/init", cashierInitHandler(d, log))
		cashier.POST("/providers/:provider/charge", cashierChargeHandler(d, log))
		cashier.POST("/providers/:provider/refund", refundHandler(d, log))
	}
}
