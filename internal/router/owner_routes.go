package router // router defines how HTTP routes are registered for the API

import (
	"github.com/iliyamo/parking-space-reservation/internal/handler"    // owner handlers
	"github.com/iliyamo/parking-space-reservation/internal/middleware" // JWT + role middlewares
	"github.com/labstack/echo/v4"
)

// RegisterOwner registers OWNER-scoped endpoints under /v1/owner.
// All routes require a valid JWT and OWNER role.  Ownership of the
// individual space is checked by the service layer.
func RegisterOwner(e *echo.Echo, s *handler.SpaceHandler, r *handler.ReservationHandler, jwtSecret string) {
	// Attach middlewares at group construction time for clarity.
	g := e.Group(
		"/v1/owner",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("OWNER"),
	)

	// ---- Spaces ----
	g.POST("/spaces", s.Create)
	g.GET("/spaces", s.ListMine)
	g.PUT("/spaces/:id", s.Update)
	g.PUT("/spaces/:id/inventory", s.UpdateInventory)
	g.PATCH("/spaces/:id/active", s.SetActive)
	g.DELETE("/spaces/:id", s.Delete)
	g.POST("/spaces/:id/images", s.UploadImage)

	// ---- Reservations ----
	g.GET("/spaces/:id/reservations", r.ListForSpace)
	g.POST("/passes/verify", r.VerifyPass)
}
