package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http" // HTTP status codes for responses
    "strings"  // string utilities for prefix checking and trimming

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/iliyamo/parking-space-reservation/internal/utils"
)

// Context keys set by JWTAuth.  Handlers read them through Identity.
const (
    CtxUserID = "user_id"
    CtxEmail  = "email"
    CtxRole   = "role"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token and
// injects the token's subject, email and role claims into the request
// context.  The provided secret must match the one used when issuing tokens.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            // A valid header starts with "Bearer " followed by the JWT.
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token", "code": "unauthenticated"})
            }
            claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token", "code": "unauthenticated"})
            }
            setClaims(c, claims)
            return next(c)
        }
    }
}

// OptionalJWT is like JWTAuth but lets anonymous requests through.  A
// present but invalid token is still rejected.
func OptionalJWT(secret string) echo.MiddlewareFunc {
    strict := JWTAuth(secret)
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        checked := strict(next)
        return func(c echo.Context) error {
            if c.Request().Header.Get("Authorization") == "" {
                return next(c)
            }
            return checked(c)
        }
    }
}

func setClaims(c echo.Context, cl utils.AccessClaims) {
    c.Set(CtxUserID, cl.UserID)
    c.Set(CtxEmail, cl.Email)
    c.Set(CtxRole, cl.Role)
}
