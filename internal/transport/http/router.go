package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"helpdesk/backend/internal/config"
	"helpdesk/backend/internal/health"
	"helpdesk/backend/internal/middleware"
	"helpdesk/backend/internal/scheduler"
	"helpdesk/backend/internal/service"
	"helpdesk/backend/internal/storage"
	"helpdesk/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config              *config.Config
	AccountService      *service.AccountService
	ConversationService *service.ConversationService
	SpamService         *service.SpamService
	EmailService        *service.EmailService
	Scheduler           *scheduler.Scheduler
	WebSocketHub        *websocket.Hub
	BlobStore           storage.BlobStore
	HealthChecker       *health.HealthChecker
	MetricsRegistry     *prometheus.Registry
	Logger              *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoveryHandler(deps.Logger))
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(10 * 1024 * 1024))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// 允许所有来源时必须关掉凭证支持
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	accountHandler := NewAccountHandler(deps.AccountService)
	conversationHandler := NewConversationHandler(deps.ConversationService, deps.EmailService, deps.BlobStore)
	spamHandler := NewSpamHandler(deps.SpamService)

	// 健康检查与指标
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.HealthChecker.CheckHealth())
	})
	router.GET("/live", gin.WrapH(deps.HealthChecker.Handler()))
	router.GET("/ready", gin.WrapH(deps.HealthChecker.Handler()))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.MetricsRegistry, promhttp.HandlerOpts{})))

	// WebSocket 订阅
	router.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))

	v1 := router.Group("/v1")
	{
		// 手动触发一轮同步（与定时 tick 走同一条派发路径）
		v1.POST("/sync", func(c *gin.Context) {
			deps.Scheduler.Trigger()
			c.JSON(http.StatusAccepted, Response{Code: CodeSuccess, Msg: "同步已触发"})
		})

		accounts := v1.Group("/accounts")
		{
			accounts.GET("", accountHandler.List)
			accounts.POST("", accountHandler.Create)
			accounts.GET("/:id", accountHandler.Get)
			accounts.PUT("/:id", accountHandler.Update)
			accounts.POST("/:id/verify", accountHandler.Verify)
		}

		conversations := v1.Group("/conversations")
		{
			conversations.GET("", conversationHandler.List)
			conversations.GET("/:id", conversationHandler.Get)
			conversations.GET("/:id/messages", conversationHandler.Messages)
			conversations.PATCH("/:id/status", conversationHandler.SetStatus)
			conversations.POST("/:id/assign", conversationHandler.Assign)
			conversations.DELETE("/:id/assign", conversationHandler.Unassign)
			conversations.POST("/:id/reply", conversationHandler.Reply)
		}

		messages := v1.Group("/messages")
		{
			messages.POST("/:id/read", conversationHandler.MarkRead)
			messages.POST("/:id/unread", conversationHandler.MarkUnread)
		}

		v1.GET("/attachments/:id", conversationHandler.Attachment)

		spam := v1.Group("/spam")
		{
			spam.GET("", spamHandler.List)
			spam.POST("", spamHandler.Add)
			spam.DELETE("/:id", spamHandler.Delete)
		}
	}

	return router
}
