// Package router contains routing and server setup for the HTTP delivery.
package router

import (
	"leapcode/internal/delivery/http/middleware"
	"leapcode/internal/delivery/http/router/handler"
	"leapcode/internal/infra/metrics"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

type RouterParams struct {
	fx.In

	AuthHandler    *handler.AuthHandler
	AuthMiddleware *middleware.AuthMiddleware
	Gatherer       prometheus.Gatherer
}

// router holds all the handlers that need to be registered.
type router struct {
	authHandler    *handler.AuthHandler
	authMiddleware *middleware.AuthMiddleware
	gatherer       prometheus.Gatherer
}

// NewRouter is the constructor for the Router.
// Fx will inject the required handlers here.
func NewRouter(params RouterParams) *router {
	return &router{
		authHandler:    params.AuthHandler,
		authMiddleware: params.AuthMiddleware,
		gatherer:       params.Gatherer,
	}
}

// RegisterRoutes sets up all the API routes for the application.
func (r *router) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler(r.gatherer)))

	authGroup := e.Group("/api/v1/auth")
	{
		authGroup.POST("/login", r.authHandler.Login)
		authGroup.POST("/token", r.authHandler.Token)
		authGroup.POST("/signup", r.authHandler.Signup)
		authGroup.POST("/refresh", r.authHandler.Refresh)
		authGroup.GET("/google/auth", r.authHandler.GoogleAuth)
		authGroup.GET("/google/callback", r.authHandler.GoogleCallback)
		authGroup.GET("/me", r.authHandler.Me, r.authMiddleware.Authenticate)
	}
}
