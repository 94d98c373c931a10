package controllers

import (
	"errors"
	"net/http"

	"civicportal/middlewares"
	"civicportal/models"
	"civicportal/response"
	"civicportal/services"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	users *services.UserService
}

func NewAuthController(users *services.UserService) *AuthController {
	return &AuthController{users: users}
}

// Register handles user registration
func (ac *AuthController) Register(c *gin.Context) {
	var input struct {
		Name     string `json:"name" binding:"required,max=50"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, bindingError(err))
		return
	}

	user, err := ac.users.Register(c.Request.Context(), services.RegisterInput{
		Name:     input.Name,
		Email:    input.Email,
		Password: input.Password,
	})
	if errors.Is(err, models.ErrConflict) {
		response.ErrorWithMessage(c, err, "User with this email already exists")
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully", "user": user})
}

// Login handles user login
func (ac *AuthController) Login(c *gin.Context) {
	var input struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, bindingError(err))
		return
	}

	token, user, err := ac.users.Login(c.Request.Context(), input.Email, input.Password)
	if errors.Is(err, models.ErrUnauthorized) {
		response.ErrorWithMessage(c, err, "Invalid credentials")
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func (ac *AuthController) GetMe(c *gin.Context) {
	actor, _ := middlewares.CurrentUser(c)
	user, err := ac.users.Me(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
