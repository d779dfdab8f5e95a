package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/parking-space-reservation/internal/handler"    // handlers implementing each endpoint
	"github.com/iliyamo/parking-space-reservation/internal/middleware" // JWT authentication and role enforcement
)

// RegisterRoutes registers routes that do not belong to any API group: the
// health check and the payment webhook, which Stripe signs instead of
// sending a bearer token.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, p *handler.PaymentHandler) {
	e.GET("/healthz", handler.Health(db))
	if p != nil {
		e.POST("/v1/payments/webhook", p.Webhook)
	}
}

// RegisterAuth registers all authentication‑related routes and applies the
// necessary middleware.  Unauthenticated operations live under /v1/auth,
// while protected endpoints live under /v1.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// rotates the refresh token
	g.POST("/refresh", a.Refresh)
	// new access token only
	g.POST("/refresh-access", a.RefreshAccess)
	// accepts either a refresh_token body or a bearer token, so no JWT middleware
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me, middleware.RequireRole("OWNER", "DRIVER"))
}

// RegisterPublic registers the browse endpoints.  A bearer token is optional
// here: when present, owners can see their own inactive spaces.  The cache
// middleware skips authenticated requests.
func RegisterPublic(e *echo.Echo, s *handler.SpaceHandler, r *handler.ReviewHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.OptionalJWT(jwtSecret))
	g.GET("/spaces", s.Search, cache)
	g.GET("/spaces/:id", s.Get, cache)
	g.GET("/spaces/:id/reviews", r.List, cache)
}
