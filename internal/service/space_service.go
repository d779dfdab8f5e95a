package service

import (
    "context"
    "errors"
    "strings"
    "time"

    "github.com/google/uuid"
    "go.uber.org/zap"

    "github.com/iliyamo/parking-space-reservation/internal/availability"
    "github.com/iliyamo/parking-space-reservation/internal/inventory"
    "github.com/iliyamo/parking-space-reservation/internal/model"
    "github.com/iliyamo/parking-space-reservation/internal/repository"
)

// SpaceDeps wires a SpaceService.  Reviews and Cache are optional.
type SpaceDeps struct {
    Spaces  SpaceStore
    Reviews ReviewStore
    Cache   CacheInvalidator
    Logger  *zap.Logger
    Timeout time.Duration
}

// SpaceService lets owners manage their listings and drivers browse them.
type SpaceService struct {
    spaces  SpaceStore
    reviews ReviewStore
    cache   CacheInvalidator
    log     *zap.Logger
    timeout time.Duration
}

// NewSpaceService panics when the space store is missing.
func NewSpaceService(d SpaceDeps) *SpaceService {
    if d.Spaces == nil {
        panic("nil store passed to NewSpaceService")
    }
    if d.Logger == nil {
        d.Logger = zap.NewNop()
    }
    if d.Timeout <= 0 {
        d.Timeout = DefaultTimeout
    }
    return &SpaceService{spaces: d.Spaces, reviews: d.Reviews, cache: d.Cache, log: d.Logger, timeout: d.Timeout}
}

// SpaceView is a space with its availability projection and rating.
type SpaceView struct {
    model.ParkingSpace
    Availability availability.SpaceAvailability `json:"availability"`
    Rating       *model.RatingSummary           `json:"rating,omitempty"`
}

func viewOf(sp *model.ParkingSpace) SpaceView {
    return SpaceView{ParkingSpace: *sp, Availability: availability.Project(sp)}
}

// SpaceInput carries the owner-editable descriptive fields.
type SpaceInput struct {
    Name              string
    Address           string
    City              string
    PricePerHourCents int64
    Amenities         []string
    AdditionalCharges string
    AcceptsCash       bool
}

func (in *SpaceInput) validate() error {
    in.Name = strings.TrimSpace(in.Name)
    in.Address = strings.TrimSpace(in.Address)
    in.City = strings.TrimSpace(in.City)
    in.AdditionalCharges = strings.TrimSpace(in.AdditionalCharges)
    in.Amenities = dedupe(in.Amenities)
    switch {
    case in.Name == "":
        return invalid("name", "is required")
    case len(in.Name) > 200:
        return invalid("name", "must be at most 200 characters")
    case in.Address == "" && in.City == "":
        return invalid("address", "address or city is required")
    case in.PricePerHourCents <= 0:
        return invalid("price_per_hour_cents", "must be positive")
    case len(in.AdditionalCharges) > 255:
        return invalid("additional_charges", "must be at most 255 characters")
    }
    return nil
}

func dedupe(in []string) []string {
    seen := make(map[string]bool, len(in))
    out := make([]string, 0, len(in))
    for _, s := range in {
        s = strings.TrimSpace(s)
        if s == "" || seen[s] {
            continue
        }
        seen[s] = true
        out = append(out, s)
    }
    return out
}

// validateInventory turns inventory rule failures into field errors so
// nothing is written for an impossible edit.
func validateInventory(upd *model.InventoryUpdate) error {
    upd.VehicleTypes = dedupe(upd.VehicleTypes)
    if upd.VehicleCounts == nil {
        upd.VehicleCounts = map[string]int{}
    }
    err := inventory.ValidateVehicleCounts(upd.Capacity, upd.VehicleTypes, upd.VehicleCounts)
    switch {
    case err == nil:
        return nil
    case errors.Is(err, inventory.ErrInvalidCapacity):
        return &ValidationError{Field: "capacity", Message: "must be a positive integer", Err: err}
    default:
        return &ValidationError{Field: "vehicle_counts", Message: err.Error(), Err: err}
    }
}

func requireOwnerRole(who model.Identity) error {
    if err := requireIdentity(who); err != nil {
        return err
    }
    if !who.IsOwner() {
        return repository.ErrForbidden
    }
    return nil
}

// Create lists a new space owned by the caller.  The counter starts at
// full capacity.
func (s *SpaceService) Create(ctx context.Context, who model.Identity, in SpaceInput, inv model.InventoryUpdate) (*SpaceView, error) {
    if err := requireOwnerRole(who); err != nil {
        return nil, err
    }
    if err := in.validate(); err != nil {
        return nil, err
    }
    if err := validateInventory(&inv); err != nil {
        return nil, err
    }
    sp := &model.ParkingSpace{
        ID:                uuid.NewString(),
        OwnerID:           who.UserID,
        Name:              in.Name,
        Address:           in.Address,
        City:              in.City,
        PricePerHourCents: in.PricePerHourCents,
        Capacity:          inv.Capacity,
        AvailableSpaces:   inv.Capacity,
        VehicleTypes:      inv.VehicleTypes,
        VehicleCounts:     inv.VehicleCounts,
        Amenities:         in.Amenities,
        AdditionalCharges: in.AdditionalCharges,
        AcceptsCash:       in.AcceptsCash,
        IsActive:          true,
        Images:            []string{},
    }
    cctx, cancel := context.WithTimeout(ctx, s.timeout)
    defer cancel()
    if err := s.spaces.Create(cctx, sp); err != nil {
        return nil, err
    }
    s.invalidate(ctx)
    v := viewOf(sp)
    return &v, nil
}

// Update rewrites the descriptive fields of an owned space.
func (s *SpaceService) Update(ctx context.Context, who model.Identity, spaceID string, in SpaceInput) (*SpaceView, error) {
    if err := requireOwnerRole(who); err != nil {
        return nil, err
    }
    if err := in.validate(); err != nil {
        return nil, err
    }
    sp, err := s.owned(ctx, who, spaceID)
    if err != nil {
        return nil, err
    }
    sp.Name, sp.Address, sp.City = in.Name, in.Address, in.City
    sp.PricePerHourCents = in.PricePerHourCents
    sp.Amenities = in.Amenities
    sp.AdditionalCharges = in.AdditionalCharges
    sp.AcceptsCash = in.AcceptsCash
    cctx, cancel := context.WithTimeout(ctx, s.timeout)
    defer cancel()
    if err := s.spaces.UpdateDetails(cctx, sp); err != nil {
        return nil, err
    }
    s.invalidate(ctx)
    v := viewOf(sp)
    return &v, nil
}

// UpdateInventory changes capacity and vehicle sub-capacities.  The edit is
// validated before any write; the store recomputes the counter from the
// outstanding reservations.
func (s *SpaceService) UpdateInventory(ctx context.Context, who model.Identity, spaceID string, upd model.InventoryUpdate) (*SpaceView, error) {
    if err := requireOwnerRole(who); err != nil {
        return nil, err
    }
    if err := validateInventory(&upd); err != nil {
        return nil, err
    }
    if _, err := s.owned(ctx, who, spaceID); err != nil {
        return nil, err
    }
    cctx, cancel := context.WithTimeout(ctx, s.timeout)
    defer cancel()
    sp, err := s.spaces.UpdateInventory(cctx, spaceID, who.UserID, upd)
    if err != nil {
        if errors.Is(err, repository.ErrCapacityBelowOutstanding) {
            return nil, &ValidationError{Field: "capacity", Message: "is below the number of active reservations", Err: err}
        }
        return nil, err
    }
    s.invalidate(ctx)
    v := viewOf(sp)
    return &v, nil
}

// SetActive hides or re-lists a space.  Existing reservations are kept.
func (s *SpaceService) SetActive(ctx context.Context, who model.Identity, spaceID string, active bool) error {
    if err := requireOwnerRole(who); err != nil {
        return err
    }
    if _, err := s.owned(ctx, who, spaceID); err != nil {
        return err
    }
    cctx, cancel := context.WithTimeout(ctx, s.timeout)
    defer cancel()
    if err := s.spaces.SetActive(cctx, spaceID, who.UserID, active); err != nil {
        return err
    }
    s.invalidate(ctx)
    return nil
}

// Delete hard-deletes an owned space.  It fails with
// *repository.ActiveReservationsError while reservations are outstanding.
func (s *SpaceService) Delete(ctx context.Context, who model.Identity, spaceID string) error {
    if err := requireOwnerRole(who); err != nil {
        return err
    }
    if _, err := s.owned(ctx, who, spaceID); err != nil {
        return err
    }
    cctx, cancel := context.WithTimeout(ctx, s.timeout)
    defer cancel()
    if err := s.spaces.Delete(cctx, spaceID, who.UserID); err != nil {
        return err
    }
    s.invalidate(ctx)
    return nil
}

// AddImage attaches an uploaded photo URL to an owned space.
func (s *SpaceService) AddImage(ctx context.Context, who model.Identity, spaceID, url string) error {
    if err := requireOwnerRole(who); err != nil {
        return err
    }
    if _, err := s.owned(ctx, who, spaceID); err != nil {
        return err
    }
    cctx, cancel := context.WithTimeout(ctx, s.timeout)
    defer cancel()
    if err := s.spaces.AddImage(cctx, spaceID, who.UserID, url); err != nil {
        return err
    }
    s.invalidate(ctx)
    return nil
}

// Get returns the public view of a space, including its rating.  Inactive
// spaces are only visible to their owner.
func (s *SpaceService) Get(ctx context.Context, viewer uint64, spaceID string) (*SpaceView, error) {
    sp, err := s.get(ctx, spaceID)
    if err != nil {
        return nil, err
    }
    if !sp.IsActive && sp.OwnerID != viewer {
        return nil, repository.ErrNotFound
    }
    v := viewOf(sp)
    if s.reviews != nil {
        cctx, cancel := context.WithTimeout(ctx, s.timeout)
        sum, err := s.reviews.Summary(cctx, spaceID)
        cancel()
        if err != nil {
            s.log.Warn("rating summary", zap.String("space_id", spaceID), zap.Error(err))
        } else {
            v.Rating = &sum
        }
    }
    return &v, nil
}

// Search lists active spaces for drivers.
func (s *SpaceService) Search(ctx context.Context, q model.SpaceQuery) ([]SpaceView, int, error) {
    cctx, cancel := context.WithTimeout(ctx, s.timeout)
    defer cancel()
    list, total, err := s.spaces.Search(cctx, q)
    if err != nil {
        return nil, 0, err
    }
    return views(list), total, nil
}

// ListMine lists every space of the calling owner.
func (s *SpaceService) ListMine(ctx context.Context, who model.Identity) ([]SpaceView, error) {
    if err := requireOwnerRole(who); err != nil {
        return nil, err
    }
    cctx, cancel := context.WithTimeout(ctx, s.timeout)
    defer cancel()
    list, err := s.spaces.ListByOwner(cctx, who.UserID)
    if err != nil {
        return nil, err
    }
    return views(list), nil
}

func views(list []model.ParkingSpace) []SpaceView {
    out := make([]SpaceView, 0, len(list))
    for i := range list {
        out = append(out, viewOf(&list[i]))
    }
    return out
}

func (s *SpaceService) get(ctx context.Context, id string) (*model.ParkingSpace, error) {
    cctx, cancel := context.WithTimeout(ctx, s.timeout)
    defer cancel()
    return s.spaces.GetByID(cctx, id)
}

func (s *SpaceService) owned(ctx context.Context, who model.Identity, id string) (*model.ParkingSpace, error) {
    sp, err := s.get(ctx, id)
    if err != nil {
        return nil, err
    }
    if sp.OwnerID != who.UserID {
        return nil, repository.ErrForbidden
    }
    return sp, nil
}

func (s *SpaceService) invalidate(ctx context.Context) {
    if s.cache == nil {
        return
    }
    if err := s.cache.Invalidate(ctx); err != nil {
        s.log.Warn("invalidate listing cache", zap.Error(err))
    }
}
