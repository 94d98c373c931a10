package routes

import (
	"log/slog"
	"net/http"
	"time"

	"civicportal/controllers"
	"civicportal/middlewares"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Logger         *slog.Logger
	Tokens         middlewares.TokenParser
	Users          middlewares.UserFinder
	IssueLimiter   middlewares.Limiter
	Auth           *controllers.AuthController
	Issues         *controllers.IssueController
	Accounts       *controllers.UserController
	AllowedOrigins []string
	UploadDir      string
	UploadURL      string
}

// NewRouter builds the gin engine with every route group registered.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.RequestID(), middlewares.RequestLogger(d.Logger), middlewares.Recovery(d.Logger))
	r.Use(cors.New(corsConfig(d.AllowedOrigins)))

	r.Static(d.UploadURL, d.UploadDir)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	auth := middlewares.AuthMiddleware(d.Tokens, d.Users)
	api := r.Group("/api")
	AuthRoutes(api, d.Auth, auth)
	IssueRoutes(api, d.Issues, auth, middlewares.IssueRateLimiter(d.IssueLimiter))
	UserRoutes(api, d.Accounts, auth)
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middlewares.RequestIDHeader},
		ExposeHeaders: []string{middlewares.RequestIDHeader, "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
