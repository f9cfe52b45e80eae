package routes

import (
	"github.com/gin-gonic/gin"

	"farm_mapper/internal/controllers"
)

func MappingRoutes(r *gin.Engine, d Deps) {
	mc := controllers.NewMappingController(d.Sessions)

	session := r.Group("/mapping/session")
	session.Use(protected(d)...)
	{
		session.POST("", mc.OpenSession)
		session.GET("", mc.GetSession)
		session.DELETE("", mc.CloseSession)

		session.POST("/draw", mc.StartDrawing)
		session.POST("/vertices", mc.AddVertex)
		session.POST("/rectangle", mc.DrawRectangle)
		session.POST("/finish", mc.Finish)
		session.POST("/cancel", mc.Cancel)

		session.PUT("/vertices/:index", mc.MoveVertex)
		session.POST("/vertices/:index", mc.InsertVertex)
		session.DELETE("/vertices/:index", mc.DeleteVertex)

		session.POST("/edit/:id", mc.EditFarm)
		session.PUT("/selection", mc.Select)
		session.PUT("/form", mc.SetForm)
		session.POST("/save", mc.Save)
	}
}
