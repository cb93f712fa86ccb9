package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.New()
	authed := AuthMiddleware(h.sessions, h.svc.Identity)

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.Register)
			auth.POST("/login", h.Login)
		}

		api.GET("/plans", h.Plans)

		user := api.Group("", authed)
		{
			user.POST("/auth/logout", h.Logout)

			user.GET("/account/me", h.Me)
			user.GET("/account/ledger", h.MyLedger)

			user.POST("/payment/create", h.CreatePayment)
			user.GET("/payment/list", h.ListMyPayments)

			user.POST("/generation/create", h.Generate)
			user.GET("/generation/list", h.ListGenerations)
			user.PUT("/generation/key", h.SetKey)
			user.DELETE("/generation/key", h.ClearKey)
		}

		admin := api.Group("/admin", authed, AdminMiddleware())
		{
			admin.GET("/payments", h.AdminListPayments)
			admin.POST("/payment/approve", h.AdminApprove)
			admin.GET("/accounts", h.AdminListAccounts)
			admin.POST("/account/credits", h.AdminAdjustCredits)
			admin.GET("/analytics", h.AdminAnalytics)
			admin.GET("/outbox/failed", h.AdminListFailedMessages)
			admin.POST("/outbox/requeue", h.AdminRequeueMessages)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
