package handler

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"imagepay/internal/infrastructure/cache"
	"imagepay/internal/model"
	"imagepay/internal/service"
	"imagepay/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	ctxKeyToken   = "session_token"
	ctxKeyAccount = "account"
)

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		if query != "" {
			path = path + "?" + query
		}
		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s",
			c.Writer.Status(),
			time.Since(start),
			c.ClientIP(),
			c.Request.Method,
			path,
		)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
					Code:    response.CodeServerError,
					Message: "服务器内部错误",
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// AuthMiddleware 校验 Authorization: Bearer <token>，并把当前账户放入上下文。
// 每次请求都重新读取账户，余额总是最新的
func AuthMiddleware(sessions cache.SessionStore, identity *service.IdentityService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		if token == "" {
			response.Unauthorized(c, "请先登录")
			return
		}

		ctx := c.Request.Context()
		accountID, err := sessions.Get(ctx, token)
		if err != nil {
			if !errors.Is(err, cache.ErrSessionNotFound) {
				log.Printf("[Auth] 读取会话失败: %v", err)
			}
			response.Unauthorized(c, "登录已过期，请重新登录")
			return
		}

		account, err := identity.GetAccount(ctx, accountID)
		if err != nil {
			response.Unauthorized(c, "账户不存在")
			return
		}

		c.Set(ctxKeyToken, token)
		c.Set(ctxKeyAccount, account)
		c.Next()
	}
}

// AdminMiddleware 必须在 AuthMiddleware 之后
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentAccount(c).IsAdmin() {
			response.Forbidden(c, service.ErrForbidden.Error())
			return
		}
		c.Next()
	}
}

func currentAccount(c *gin.Context) *model.Account {
	return c.MustGet(ctxKeyAccount).(*model.Account)
}
