package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/heriberto777/core-app-sub000/internal/api/handlers"
	"github.com/heriberto777/core-app-sub000/internal/metrics"
)

// Router creates and configures the Echo router
type Router struct {
	echo    *echo.Echo
	handler *handlers.TaskHandler
}

// NewRouter creates a new Echo router with all routes
func NewRouter(handler *handlers.TaskHandler) *Router {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	r := &Router{echo: e, handler: handler}
	r.registerRoutes()
	return r
}

// registerRoutes configures all API routes
func (r *Router) registerRoutes() {
	h := r.handler

	r.echo.GET("/api/tasks", h.ListTasks)
	r.echo.PUT("/api/tasks", h.UpsertTask)
	r.echo.GET("/api/tasks/:id", h.GetTask)
	r.echo.POST("/api/tasks/:id/run", h.RunTask)
	r.echo.POST("/api/tasks/:id/cancel", h.CancelTask)
	r.echo.GET("/api/tasks/:id/executions", h.ListExecutions)
	r.echo.GET("/api/tasks/:id/progress", h.StreamProgress)

	r.echo.GET("/api/servers/:server/diagnose", h.Diagnose)
	r.echo.GET("/api/health", h.Health)
	r.echo.POST("/api/health/reset", h.ResetHealth)
	r.echo.GET("/api/retry-queue", h.RetryQueueStatus)

	r.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// Echo exposes the underlying echo instance for serving and shutdown.
func (r *Router) Echo() *echo.Echo {
	return r.echo
}
