package routes

import (
	"civicportal/controllers"
	"civicportal/middlewares"

	"github.com/gin-gonic/gin"
)

// UserRoutes sets up the admin-only account management routes
func UserRoutes(api *gin.RouterGroup, uc *controllers.UserController, auth gin.HandlerFunc) {
	users := api.Group("/users", auth, middlewares.RequireAdmin())
	{
		users.GET("", uc.ListUsers)
		users.PATCH("/:id/role", uc.UpdateUserRole)
	}
}
