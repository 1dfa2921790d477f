// Package httpapi assembles the execution HTTP boundary: the echo router,
// auth and logging middleware, and the POST /execute/{workflowId} route,
// grounded on the teacher's cmd/orchestrator/routes package (Register*
// functions taking an *echo.Echo plus its collaborators) and
// common/server/server.go (graceful-shutdown-ready http.Handler).
package httpapi

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"sim.studio/executor/internal/engine/orchestrator"
	"sim.studio/executor/internal/httpapi/handlers"
	httpmw "sim.studio/executor/internal/httpapi/middleware"
	"sim.studio/executor/internal/ratelimit"
)

// Deps bundles the collaborators the execution routes need, mirroring the
// teacher's *container.Container injected into its route registration
// functions.
type Deps struct {
	Engine   *orchestrator.Engine
	Store    handlers.Store
	Limiter  *ratelimit.Limiter
	Plans    handlers.PlanResolver
	Sessions httpmw.SessionVerifier
	APIKeys  httpmw.APIKeyVerifier
}

// New builds the echo instance serving the execution boundary. Returned as
// an *echo.Echo (satisfying http.Handler) so it drops straight into
// internal/server.New's graceful-shutdown wrapper.
func New(deps Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.Logger())

	exec := handlers.NewExecuteHandler(deps.Engine, deps.Store, deps.Limiter, deps.Plans)

	group := e.Group("/api/v1")
	group.Use(httpmw.RequireAuth(deps.Sessions, deps.APIKeys))
	group.POST("/execute/:workflowId", exec.Execute)

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "healthy"})
	})

	return e
}
