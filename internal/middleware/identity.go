package middleware

// identity.go turns the claims stored by JWTAuth into a model.Identity for
// handlers and into a string key for the rate limiter.

import (
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/parking-space-reservation/internal/model"
)

// Identity returns the authenticated caller, or the zero Identity for an
// anonymous request.
func Identity(c echo.Context) model.Identity {
    id, _ := c.Get(CtxUserID).(uint64)
    if id == 0 {
        return model.Identity{}
    }
    email, _ := c.Get(CtxEmail).(string)
    role, _ := c.Get(CtxRole).(string)
    return model.Identity{UserID: id, Email: email, Role: role}
}

// userID returns the caller's id as a string, or "guest".
func userID(c echo.Context) string {
    if id, ok := c.Get(CtxUserID).(uint64); ok && id != 0 {
        return strconv.FormatUint(id, 10)
    }
    return "guest"
}
