package routes

import (
	"time"

	"parley/handlers"
	"parley/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterNegotiationRoutes registers the operator endpoints.
func RegisterNegotiationRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	api := r.Group("/api/negotiations")
	{
		api.Use(middleware.OperatorAuthMiddleware(hb.OperatorSecret))
		api.POST("", hb.InitiateHandler)
		api.GET("", hb.SummaryHandler)
		api.GET("/:id", hb.GetHandler)
		api.POST("/:id/cancel", hb.CancelHandler)
	}
}

// RegisterInboundRoutes registers the reply webhook.
func RegisterInboundRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.POST("/api/inbound", middleware.OperatorAuthMiddleware(hb.OperatorSecret), hb.InboundHandler)
}

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.GET("/health", hb.HealthHandler)
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	RegisterNegotiationRoutes(r, hb)
	RegisterInboundRoutes(r, hb)
	RegisterHealthRoute(r, hb)
}
