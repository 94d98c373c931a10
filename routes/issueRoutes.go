package routes

import (
	"civicportal/controllers"
	"civicportal/middlewares"

	"github.com/gin-gonic/gin"
)

// IssueRoutes sets up the issue routes
func IssueRoutes(api *gin.RouterGroup, ic *controllers.IssueController, auth, limiter gin.HandlerFunc) {
	api.GET("/categories", ic.GetCategories)

	issue := api.Group("/issues", auth)
	{
		issue.POST("", limiter, ic.CreateIssue)
		issue.GET("", ic.GetAllIssues)
		issue.GET("/my-issues", ic.GetMyIssues)
		issue.GET("/:id", ic.GetIssue)
		issue.PATCH("/:id/status", middlewares.RequireAdmin(), ic.UpdateIssueStatus)
		issue.DELETE("/:id", ic.DeleteIssue)
	}
}
