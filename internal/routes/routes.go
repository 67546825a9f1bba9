package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/revaspay/storefront/internal/handlers"
	"github.com/revaspay/storefront/internal/middleware"
)

// AdminRoutes groups the handlers and middleware of the operator surface
type AdminRoutes struct {
	Rewards     *handlers.AdminRewardHandler
	Wallets     *handlers.AdminWalletHandler
	Tokens      middleware.TokenValidator
	RateLimiter *middleware.RateLimiter
}

// RegisterAdminRewardRoutes registers the distribution engine endpoints under /api/admin/rewards
func RegisterAdminRewardRoutes(router *gin.Engine, admin AdminRoutes) {
	group := router.Group("/api/admin/rewards")
	group.Use(middleware.AuthMiddleware(admin.Tokens), middleware.AdminMiddleware())
	{
		group.GET("/pending", admin.Rewards.GetPending)
		group.GET("/runs/:id", admin.Rewards.GetRun)
		group.GET("/schedule", admin.Rewards.GetSchedule)
		group.GET("/users/:user_id/wallet", admin.Wallets.GetUserWallet)
		group.GET("/users/:user_id/ledger", admin.Wallets.GetUserLedger)

		// Endpoints that move money or reconfigure the timer are rate limited
		limited := group.Group("")
		limited.Use(admin.RateLimiter.IPRateLimiterMiddleware())
		{
			limited.POST("/run", admin.Rewards.TriggerRun)
			limited.POST("/run/selected", admin.Rewards.TriggerSelectedRun)
			limited.PUT("/schedule", admin.Rewards.UpdateSchedule)
		}
	}
}

// RegisterOpsRoutes registers the health check and the prometheus scrape endpoint
func RegisterOpsRoutes(router *gin.Engine, db *gorm.DB) {
	router.GET("/health", func(c *gin.Context) {
		status := "ok"
		code := http.StatusOK

		sqlDB, err := db.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status": status,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
