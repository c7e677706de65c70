package routers

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Gopher0727/GroupChat/internal/handlers"
	"github.com/Gopher0727/GroupChat/internal/metrics"
	"github.com/Gopher0727/GroupChat/internal/middlewares"
	"github.com/Gopher0727/GroupChat/internal/utils"
	logger "github.com/Gopher0727/GroupChat/middleware/log"
	"github.com/Gopher0727/GroupChat/pkg/ws"
	"github.com/Gopher0727/GroupChat/utils/ratelimit"
)

// Deps 路由依赖
type Deps struct {
	Auth     *handlers.AuthHandler
	Rooms    *handlers.RoomHandler
	Messages *handlers.MessageHandler
	Files    *handlers.FileHandler

	Hub      *ws.Hub
	Verifier middlewares.TokenVerifier
	Pool     *utils.WorkerPool

	Limiter     ratelimit.Limiter
	MessageRule ratelimit.Rule

	UploadDir string
	Log       *logger.Logger
}

// SetupRoutes 设置所有路由
func SetupRoutes(r *gin.Engine, d Deps) {
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", middlewares.TraceHeader}
	config.ExposeHeaders = []string{middlewares.TraceHeader}
	r.Use(cors.New(config))
	r.Use(middlewares.Trace(d.Log), metrics.GinMiddleware())

	// WebSocket 路由 (必须在 AsyncMiddleware 之前注册, 避免长连接占用 Worker)
	r.GET("/ws", func(c *gin.Context) {
		ws.ServeWs(d.Hub, d.Verifier, c)
	})

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": d.Hub.ConnectionCount(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if d.UploadDir != "" {
		r.Static("/uploads", d.UploadDir)
	}

	api := r.Group("/api/v1")
	// 将请求放入 Worker Pool 中排队执行
	api.Use(middlewares.AsyncMiddleware(d.Pool))

	RegisterAuthRoutes(api, d)
	RegisterRoomRoutes(api, d)
	RegisterMessageRoutes(api, d)
	api.POST("/files/upload", d.Files.Upload)
}

func RegisterAuthRoutes(api *gin.RouterGroup, d Deps) {
	auth := api.Group("/auth")
	{
		auth.POST("/signup", d.Auth.Signup)
		auth.POST("/login", d.Auth.Login)
		auth.GET("/users", d.Auth.ListUsers)
	}
	me := auth.Group("/me", middlewares.RequireAuth(d.Verifier))
	{
		me.GET("", d.Auth.Me)
		me.PATCH("", d.Auth.UpdateMe)
	}
}

func RegisterRoomRoutes(api *gin.RouterGroup, d Deps) {
	requireAuth := middlewares.RequireAuth(d.Verifier)

	rooms := api.Group("/chatrooms")
	{
		rooms.GET("/:id", d.Rooms.Get)

		rooms.POST("", requireAuth, d.Rooms.Create)
		rooms.GET("", requireAuth, d.Rooms.List)
		rooms.POST("/:id/join", requireAuth, d.Rooms.Join)
		rooms.POST("/:id/leave", requireAuth, d.Rooms.Leave)
		rooms.POST("/:id/kick", requireAuth, d.Rooms.Kick)
		rooms.DELETE("/:id", requireAuth, d.Rooms.Delete)
	}
}

func RegisterMessageRoutes(api *gin.RouterGroup, d Deps) {
	requireAuth := middlewares.RequireAuth(d.Verifier)

	messages := api.Group("/messages")
	{
		messages.GET("/chatroom/:chatroomId", d.Messages.List)

		messages.POST("", requireAuth, middlewares.RateLimit(d.Limiter, "message", d.MessageRule), d.Messages.Send)
		messages.POST("/:id/react", requireAuth, d.Messages.React)
		messages.POST("/:id/unsend", requireAuth, d.Messages.Unsend)
	}
}
