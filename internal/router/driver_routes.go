package router

import (
	"github.com/iliyamo/parking-space-reservation/internal/handler"
	"github.com/iliyamo/parking-space-reservation/internal/middleware"
	"github.com/labstack/echo/v4"
)

// RegisterDriver registers the booking endpoints.  Owners park too, so both
// roles are accepted; the service layer only lets a caller touch their own
// reservations.
func RegisterDriver(e *echo.Echo, r *handler.ReservationHandler, rv *handler.ReviewHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("DRIVER", "OWNER"),
	)
	g.POST("/spaces/:id/reservations", r.Create)
	g.PUT("/spaces/:id/reviews", rv.Upsert)

	g.GET("/reservations", r.ListMine)
	g.GET("/reservations/:id", r.Get)
	g.POST("/reservations/:id/cancel", r.Cancel)
	g.DELETE("/reservations/:id", r.Delete)
	g.GET("/reservations/:id/qr", r.QR)
	g.GET("/reservations/:id/receipt", r.Receipt)
}
