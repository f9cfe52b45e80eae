package routes

import (
	"github.com/gin-gonic/gin"

	"farm_mapper/internal/controllers"
)

func FarmRoutes(r *gin.Engine, d Deps) {
	fc := controllers.NewFarmController(d.Store, d.Sessions)

	farms := r.Group("/farms")
	farms.Use(protected(d)...)
	{
		farms.GET("", fc.ListFarms)
		farms.POST("", fc.CreateFarm)
		farms.GET("/plan", fc.GetPlan)
		farms.GET("/export", fc.ExportFarms)
		farms.GET("/:id", fc.GetFarm)
		farms.PUT("/:id", fc.UpdateFarm)
		farms.DELETE("/:id", fc.DeleteFarm)
	}
}
