package handler

import (
    "net/http"
    "strconv"
    "strings"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/parking-space-reservation/internal/middleware"
    "github.com/iliyamo/parking-space-reservation/internal/model"
    "github.com/iliyamo/parking-space-reservation/internal/repository"
    "github.com/iliyamo/parking-space-reservation/internal/service"
    "github.com/iliyamo/parking-space-reservation/internal/storage"
)

// maxUploadBytes caps a single image upload.
const maxUploadBytes = 8 << 20

// SpaceHandler serves the public listing API and the owner management API
// for parking spaces.
type SpaceHandler struct {
    Spaces *service.SpaceService
    Images *storage.ImageStore // nil disables uploads
    Log    *zap.Logger
}

func NewSpaceHandler(spaces *service.SpaceService, images *storage.ImageStore, log *zap.Logger) *SpaceHandler {
    if spaces == nil {
        panic("nil service passed to NewSpaceHandler")
    }
    if log == nil {
        log = zap.NewNop()
    }
    return &SpaceHandler{Spaces: spaces, Images: images, Log: log}
}

type spaceReq struct {
    Name              string         `json:"name"`
    Address           string         `json:"address"`
    City              string         `json:"city"`
    PricePerHourCents int64          `json:"price_per_hour_cents"`
    Amenities         []string       `json:"amenities"`
    AdditionalCharges string         `json:"additional_charges"`
    AcceptsCash       bool           `json:"accepts_cash"`
    Capacity          int            `json:"capacity"`
    VehicleTypes      []string       `json:"vehicle_types"`
    VehicleCounts     map[string]int `json:"vehicle_counts"`
}

func (r spaceReq) input() service.SpaceInput {
    return service.SpaceInput{
        Name:              r.Name,
        Address:           r.Address,
        City:              r.City,
        PricePerHourCents: r.PricePerHourCents,
        Amenities:         r.Amenities,
        AdditionalCharges: r.AdditionalCharges,
        AcceptsCash:       r.AcceptsCash,
    }
}

type inventoryReq struct {
    Capacity      int            `json:"capacity"`
    VehicleTypes  []string       `json:"vehicle_types"`
    VehicleCounts map[string]int `json:"vehicle_counts"`
}

func (r inventoryReq) update() model.InventoryUpdate {
    return model.InventoryUpdate{Capacity: r.Capacity, VehicleTypes: r.VehicleTypes, VehicleCounts: r.VehicleCounts}
}

type searchResp struct {
    Items    []service.SpaceView `json:"items"`
    Total    int                 `json:"total"`
    Page     int                 `json:"page"`
    PageSize int                 `json:"page_size"`
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(c echo.Context, name string) (int64, bool) {
    raw := strings.TrimSpace(c.QueryParam(name))
    if raw == "" {
        return 0, true
    }
    n, err := strconv.ParseInt(raw, 10, 64)
    if err != nil || n < 0 {
        return 0, false
    }
    return n, true
}

// Search handles GET /v1/spaces.  Only active spaces are listed.
func (h *SpaceHandler) Search(c echo.Context) error {
    q := model.SpaceQuery{
        Location:    strings.TrimSpace(c.QueryParam("location")),
        VehicleType: strings.TrimSpace(c.QueryParam("vehicle_type")),
    }
    price, ok := queryInt(c, "max_price_cents")
    if !ok {
        return badRequest(c, "max_price_cents must be a non-negative integer")
    }
    page, ok := queryInt(c, "page")
    if !ok {
        return badRequest(c, "page must be a non-negative integer")
    }
    size, ok := queryInt(c, "page_size")
    if !ok {
        return badRequest(c, "page_size must be a non-negative integer")
    }
    q.MaxPriceCents, q.Page, q.PageSize = price, int(page), int(size)

    items, total, err := h.Spaces.Search(c.Request().Context(), q)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    if items == nil {
        items = []service.SpaceView{}
    }
    p, n := repository.NormalizePage(q.Page, q.PageSize)
    return c.JSON(http.StatusOK, searchResp{Items: items, Total: total, Page: p, PageSize: n})
}

// Get handles GET /v1/spaces/:id.  An owner may see their own inactive
// space; everyone else gets 404 for it.
func (h *SpaceHandler) Get(c echo.Context) error {
    v, err := h.Spaces.Get(c.Request().Context(), middleware.Identity(c).UserID, c.Param("id"))
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, v)
}

// Create handles POST /v1/owner/spaces.
func (h *SpaceHandler) Create(c echo.Context) error {
    var req spaceReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    inv := model.InventoryUpdate{Capacity: req.Capacity, VehicleTypes: req.VehicleTypes, VehicleCounts: req.VehicleCounts}
    v, err := h.Spaces.Create(c.Request().Context(), middleware.Identity(c), req.input(), inv)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, v)
}

// ListMine handles GET /v1/owner/spaces.
func (h *SpaceHandler) ListMine(c echo.Context) error {
    list, err := h.Spaces.ListMine(c.Request().Context(), middleware.Identity(c))
    if err != nil {
        return writeError(c, h.Log, err)
    }
    if list == nil {
        list = []service.SpaceView{}
    }
    return c.JSON(http.StatusOK, list)
}

// Update handles PUT /v1/owner/spaces/:id.  Inventory is changed through
// UpdateInventory so that recomputation happens in one place.
func (h *SpaceHandler) Update(c echo.Context) error {
    var req spaceReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    v, err := h.Spaces.Update(c.Request().Context(), middleware.Identity(c), c.Param("id"), req.input())
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, v)
}

// UpdateInventory handles PUT /v1/owner/spaces/:id/inventory.
func (h *SpaceHandler) UpdateInventory(c echo.Context) error {
    var req inventoryReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    v, err := h.Spaces.UpdateInventory(c.Request().Context(), middleware.Identity(c), c.Param("id"), req.update())
    if err != nil {
        return writeError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, v)
}

// SetActive handles PATCH /v1/owner/spaces/:id/active with {"is_active": bool}.
func (h *SpaceHandler) SetActive(c echo.Context) error {
    var req struct {
        IsActive *bool `json:"is_active"`
    }
    if err := c.Bind(&req); err != nil || req.IsActive == nil {
        return badRequest(c, "is_active is required")
    }
    if err := h.Spaces.SetActive(c.Request().Context(), middleware.Identity(c), c.Param("id"), *req.IsActive); err != nil {
        return writeError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"id": c.Param("id"), "is_active": *req.IsActive})
}

// Delete handles DELETE /v1/owner/spaces/:id.  Spaces with pending or
// confirmed reservations are refused with 409 and the active count.
func (h *SpaceHandler) Delete(c echo.Context) error {
    if err := h.Spaces.Delete(c.Request().Context(), middleware.Identity(c), c.Param("id")); err != nil {
        return writeError(c, h.Log, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// UploadImage handles POST /v1/owner/spaces/:id/images (multipart field "image").
func (h *SpaceHandler) UploadImage(c echo.Context) error {
    if h.Images == nil {
        return fail(c, http.StatusNotImplemented, "uploads_disabled", "image uploads are not configured")
    }
    who := middleware.Identity(c)
    spaceID := c.Param("id")
    // ownership first so strangers cannot fill the media dir
    v, err := h.Spaces.Get(c.Request().Context(), who.UserID, spaceID)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    if v.OwnerID != who.UserID {
        return writeError(c, h.Log, repository.ErrForbidden)
    }

    fh, err := c.FormFile("image")
    if err != nil {
        return badRequest(c, "multipart field image is required")
    }
    if fh.Size > maxUploadBytes {
        return fail(c, http.StatusRequestEntityTooLarge, "too_large", "image exceeds 8MB")
    }
    f, err := fh.Open()
    if err != nil {
        return badRequest(c, "cannot read upload")
    }
    defer f.Close()

    url, err := h.Images.SaveSpaceImage(spaceID, f)
    if err != nil {
        return writeError(c, h.Log, err)
    }
    if err := h.Spaces.AddImage(c.Request().Context(), who, spaceID, url); err != nil {
        return writeError(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{"url": url})
}
