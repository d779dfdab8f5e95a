package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/parking-space-reservation/internal/middleware"
    "github.com/iliyamo/parking-space-reservation/internal/model"
    "github.com/iliyamo/parking-space-reservation/internal/service"
)

// ReviewHandler serves space reviews.
type ReviewHandler struct {
    Reviews *service.ReviewService
    Log     *zap.Logger
}

func NewReviewHandler(reviews *service.ReviewService, log *zap.Logger) *ReviewHandler {
    if log == nil {
        log = zap.NewNop()
    }
    return &ReviewHandler{Reviews: reviews, Log: log}
}

// Upsert handles PUT /v1/spaces/:id/reviews.
func (h *ReviewHandler) Upsert(c echo.Context) error {
    var req struct {
        Rating  int    `json:"rating"`
        Comment string `json:"comment"`
    }
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    rv, err := h.Reviews.Upsert(c.Request().Context(), middleware.Identity(c), c.Param("id"), req.Rating, req.Comment)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, rv)
}

// List handles GET /v1/spaces/:id/reviews?page=&page_size=.
func (h *ReviewHandler) List(c echo.Context) error {
    page, ok := queryInt(c, "page")
    if !ok {
        return badRequest(c, "page must be a non-negative integer")
    }
    size, ok := queryInt(c, "page_size")
    if !ok {
        return badRequest(c, "page_size must be a non-negative integer")
    }
    list, err := h.Reviews.List(c.Request().Context(), c.Param("id"), int(page), int(size))
    if err != nil {
        return writeError(c, h.Log, err)
    }
    if list == nil {
        list = []model.Review{}
    }
    return c.JSON(http.StatusOK, list)
}
