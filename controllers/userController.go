package controllers

import (
	"net/http"

	"civicportal/middlewares"
	"civicportal/response"
	"civicportal/services"

	"github.com/gin-gonic/gin"
)

// UserController exposes account administration to admins.
type UserController struct {
	users *services.UserService
}

func NewUserController(users *services.UserService) *UserController {
	return &UserController{users: users}
}

func (uc *UserController) ListUsers(c *gin.Context) {
	actor, _ := middlewares.CurrentUser(c)
	users, err := uc.users.ListUsers(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (uc *UserController) UpdateUserRole(c *gin.Context) {
	var input struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, bindingError(err))
		return
	}

	actor, _ := middlewares.CurrentUser(c)
	user, err := uc.users.SetRole(c.Request.Context(), actor, c.Param("id"), input.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User role updated", "user": user})
}
