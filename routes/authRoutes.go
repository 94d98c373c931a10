package routes

import (
	"civicportal/controllers"

	"github.com/gin-gonic/gin"
)

// AuthRoutes sets up registration, login and the current-user endpoint
func AuthRoutes(api *gin.RouterGroup, ac *controllers.AuthController, auth gin.HandlerFunc) {
	group := api.Group("/auth")
	{
		group.POST("/register", ac.Register)
		group.POST("/login", ac.Login)
		group.GET("/me", auth, ac.GetMe)
	}
}
