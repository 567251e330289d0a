package api

import (
	stdhttp "net/http"

	intconfig "transitpay/internal/config"
	"transitpay/internal/domain"
	h "transitpay/internal/http/handlers"
	"transitpay/internal/http/middleware"
	"transitpay/internal/realtime"
	"transitpay/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Deps struct {
	Payments  h.PaymentHandler
	Occupancy h.OccupancyHandler
	System    *h.SystemHandler
	Hub       *realtime.Hub
}

func NewRouter(env intconfig.Env, deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(), gin.Recovery(), middleware.CORS(env.CORSOrigins))

	if err := r.SetTrustedProxies(nil); err != nil {
		utils.LogError("", "http", "trusted_proxies", err)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(stdhttp.StatusNotFound, gin.H{
			"error":  "route not found",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})

	secret := []byte(env.JWTSecret)
	if len(secret) == 0 {
		zap.L().Warn("JWT_SECRET is empty; admin and websocket endpoints will reject every token")
	}

	api := r.Group("/api")
	{
		if deps.System != nil {
			deps.System.Engine = r
			api.GET("/health", deps.System.Health)
			api.GET("/db-check", deps.System.DBCheck)
			api.GET("/routes", deps.System.Routes)
		}

		// Payments
		payments := api.Group("/payments")
		payments.POST("/initiate", deps.Payments.Initiate)
		payments.POST("/callback", deps.Payments.Callback)
		payments.GET("/:id", deps.Payments.Status)
		payments.GET("/:id/ticket", deps.Payments.Ticket)

		// Occupancy
		api.GET("/routes/:id/occupancy", deps.Occupancy.Route)
		vehicles := api.Group("/vehicles")
		vehicles.GET("/:id/occupancy", deps.Occupancy.Vehicle)
		vehicles.POST("/:id/occupancy/reset",
			middleware.AuthRequired(secret),
			middleware.RequireRoles("admin"),
			deps.Occupancy.Reset,
		)
	}

	if deps.Hub != nil {
		r.GET("/ws/occupancy", realtime.ServeOccupancy(deps.Hub, func(token string) (domain.RequestContext, error) {
			return middleware.ParseToken(secret, token)
		}))
	}

	return r
}
