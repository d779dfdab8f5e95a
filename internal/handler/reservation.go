package handler

import (
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/parking-space-reservation/internal/middleware"
    "github.com/iliyamo/parking-space-reservation/internal/model"
    "github.com/iliyamo/parking-space-reservation/internal/receipt"
    "github.com/iliyamo/parking-space-reservation/internal/repository"
    "github.com/iliyamo/parking-space-reservation/internal/service"
)

// ReservationHandler exposes the reservation lifecycle to drivers and the
// per-space reservation list to owners.  JWT authentication runs before
// every method.
type ReservationHandler struct {
    Reservations *service.ReservationService
    Passes       *receipt.Signer
    Log          *zap.Logger
}

func NewReservationHandler(res *service.ReservationService, passes *receipt.Signer, log *zap.Logger) *ReservationHandler {
    if res == nil || passes == nil {
        panic("nil dependency passed to NewReservationHandler")
    }
    if log == nil {
        log = zap.NewNop()
    }
    return &ReservationHandler{Reservations: res, Passes: passes, Log: log}
}

type createReservationReq struct {
    ArrivalAt     time.Time `json:"arrival_at"`
    DurationHours int       `json:"duration_hours"`
    PaymentMethod string    `json:"payment_method"` // cash | prepaid
    VehicleType   string    `json:"vehicle_type"`
    PlateNumber   string    `json:"plate_number"`
    ContactPhone  string    `json:"contact_phone"`
    Instructions  string    `json:"instructions"`
}

// Create handles POST /v1/spaces/:id/reservations.  A prepaid booking
// comes back pending together with the client secret of its payment.
func (h *ReservationHandler) Create(c echo.Context) error {
    var req createReservationReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    out, err := h.Reservations.Create(c.Request().Context(), middleware.Identity(c), service.CreateReservationInput{
        SpaceID:       c.Param("id"),
        ArrivalAt:     req.ArrivalAt,
        DurationHours: req.DurationHours,
        PaymentMethod: model.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
        VehicleType:   strings.TrimSpace(req.VehicleType),
        PlateNumber:   strings.TrimSpace(req.PlateNumber),
        ContactPhone:  strings.TrimSpace(req.ContactPhone),
        Instructions:  strings.TrimSpace(req.Instructions),
    })
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, out)
}

// ListMine handles GET /v1/reservations.
func (h *ReservationHandler) ListMine(c echo.Context) error {
    list, err := h.Reservations.ListMine(c.Request().Context(), middleware.Identity(c))
    if err != nil {
        return writeError(c, h.Log, err)
    }
    if list == nil {
        list = []model.Reservation{}
    }
    return c.JSON(http.StatusOK, list)
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
    r, err := h.Reservations.Get(c.Request().Context(), middleware.Identity(c), c.Param("id"))
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, r)
}

// Cancel handles POST /v1/reservations/:id/cancel.
func (h *ReservationHandler) Cancel(c echo.Context) error {
    r, err := h.Reservations.Cancel(c.Request().Context(), middleware.Identity(c), c.Param("id"))
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, r)
}

// Delete handles DELETE /v1/reservations/:id.  Only cancelled reservations
// can be removed.
func (h *ReservationHandler) Delete(c echo.Context) error {
    if err := h.Reservations.Delete(c.Request().Context(), middleware.Identity(c), c.Param("id")); err != nil {
        return writeError(c, h.Log, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// passable loads a reservation the caller may see and refuses passes for
// bookings that no longer hold a unit.
func (h *ReservationHandler) passable(c echo.Context) (*model.Reservation, error) {
    r, err := h.Reservations.Get(c.Request().Context(), middleware.Identity(c), c.Param("id"))
    if err != nil {
        return nil, err
    }
    if r.Status == model.StatusCancelled {
        return nil, repository.ErrInvalidTransition
    }
    return r, nil
}

// QR handles GET /v1/reservations/:id/qr and returns a PNG pass.
func (h *ReservationHandler) QR(c echo.Context) error {
    r, err := h.passable(c)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    png, err := h.Passes.QR(r, 256)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return c.Blob(http.StatusOK, "image/png", png)
}

// Receipt handles GET /v1/reservations/:id/receipt and returns a PDF.
func (h *ReservationHandler) Receipt(c echo.Context) error {
    r, err := h.passable(c)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    space, err := h.Reservations.Space(c.Request().Context(), r.SpaceID)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    doc, err := h.Passes.PDF(r, space)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    c.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="reservation-`+r.ID+`.pdf"`)
    return c.Blob(http.StatusOK, "application/pdf", doc)
}

// ListForSpace handles GET /v1/owner/spaces/:id/reservations.
func (h *ReservationHandler) ListForSpace(c echo.Context) error {
    list, err := h.Reservations.ListForSpace(c.Request().Context(), middleware.Identity(c), c.Param("id"))
    if err != nil {
        return writeError(c, h.Log, err)
    }
    if list == nil {
        list = []model.Reservation{}
    }
    return c.JSON(http.StatusOK, list)
}

// VerifyPass handles POST /v1/owner/passes/verify.  The owner scans a
// driver's QR code at the gate and gets the reservation back when the pass
// is genuine and belongs to one of their spaces.
func (h *ReservationHandler) VerifyPass(c echo.Context) error {
    var req struct {
        Pass string `json:"pass"`
    }
    if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Pass) == "" {
        return badRequest(c, "pass is required")
    }
    id, err := h.Passes.Verify(strings.TrimSpace(req.Pass))
    if err != nil {
        return writeError(c, h.Log, err)
    }
    r, err := h.Reservations.Get(c.Request().Context(), middleware.Identity(c), id)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"valid": r.HoldsCapacity(), "reservation": r})
}
