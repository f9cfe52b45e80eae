package routes

import (
	"github.com/gin-gonic/gin"

	"farm_mapper/internal/controllers"
	"farm_mapper/internal/middleware"
)

func WebSocketRoutes(r *gin.Engine, d Deps) {
	ws := controllers.NewWebSocketController(d.Hub, d.AllowedOrigins)

	wsRoutes := r.Group("/ws")
	wsRoutes.Use(middleware.RequireAuth(d.JWTSecret))
	{
		wsRoutes.GET("/farms", ws.HandleFarmsWebSocket)
	}
}
