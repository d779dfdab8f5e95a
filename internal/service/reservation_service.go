// Package service implements the reservation lifecycle and space
// management on top of the store contracts in ports.go.  Every store call
// runs under its own deadline so no request can hang on the database.
package service

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/google/uuid"
    "go.uber.org/zap"

    "github.com/iliyamo/parking-space-reservation/internal/availability"
    "github.com/iliyamo/parking-space-reservation/internal/inventory"
    "github.com/iliyamo/parking-space-reservation/internal/model"
    "github.com/iliyamo/parking-space-reservation/internal/queue"
    "github.com/iliyamo/parking-space-reservation/internal/repository"
)

// DefaultTimeout bounds a single store call when none is configured.
const DefaultTimeout = 5 * time.Second

const sweepBatch = 200

var (
    pendingOnly   = []model.ReservationStatus{model.StatusPending}
    confirmedOnly = []model.ReservationStatus{model.StatusConfirmed}
)

// ReservationDeps wires a ReservationService.  Payments, Events and Cache
// are optional.
type ReservationDeps struct {
    Spaces       SpaceStore
    Reservations ReservationStore
    Payments     PaymentGateway
    Events       EventPublisher
    Cache        CacheInvalidator
    Logger       *zap.Logger
    Timeout      time.Duration
}

// ReservationService creates, cancels and removes reservations while keeping
// the space availability counter consistent.
type ReservationService struct {
    spaces       SpaceStore
    reservations ReservationStore
    payments     PaymentGateway
    events       EventPublisher
    cache        CacheInvalidator
    log          *zap.Logger
    timeout      time.Duration
    now          func() time.Time
}

// NewReservationService panics when a store is missing.
func NewReservationService(d ReservationDeps) *ReservationService {
    if d.Spaces == nil || d.Reservations == nil {
        panic("nil store passed to NewReservationService")
    }
    if d.Logger == nil {
        d.Logger = zap.NewNop()
    }
    if d.Timeout <= 0 {
        d.Timeout = DefaultTimeout
    }
    return &ReservationService{
        spaces:       d.Spaces,
        reservations: d.Reservations,
        payments:     d.Payments,
        events:       d.Events,
        cache:        d.Cache,
        log:          d.Logger,
        timeout:      d.Timeout,
        now:          func() time.Time { return time.Now().UTC() },
    }
}

// CreateReservationInput is the driver's booking form.
type CreateReservationInput struct {
    SpaceID       string
    ArrivalAt     time.Time
    DurationHours int
    PaymentMethod model.PaymentMethod
    VehicleType   string
    PlateNumber   string
    ContactPhone  string
    Instructions  string
}

// CreateResult is returned by Create.  ClientSecret is set for prepaid
// reservations and is handed to the payment form.
type CreateResult struct {
    Reservation  *model.Reservation `json:"reservation"`
    ClientSecret string             `json:"client_secret,omitempty"`
}

func durationAllowed(h int) bool {
    for _, d := range model.AllowedDurations {
        if d == h {
            return true
        }
    }
    return false
}

func (in *CreateReservationInput) validate(now time.Time) error {
    in.SpaceID = strings.TrimSpace(in.SpaceID)
    in.VehicleType = strings.TrimSpace(in.VehicleType)
    in.PlateNumber = strings.ToUpper(strings.TrimSpace(in.PlateNumber))
    in.ContactPhone = strings.TrimSpace(in.ContactPhone)
    in.Instructions = strings.TrimSpace(in.Instructions)
    switch {
    case in.SpaceID == "":
        return invalid("space_id", "is required")
    case in.ArrivalAt.IsZero():
        return invalid("arrival_at", "is required")
    case in.ArrivalAt.Before(now.Add(-15 * time.Minute)):
        return invalid("arrival_at", "must not be in the past")
    case !durationAllowed(in.DurationHours):
        return invalid("duration_hours", fmt.Sprintf("must be one of %v", model.AllowedDurations))
    case in.PaymentMethod != model.PaymentCash && in.PaymentMethod != model.PaymentPrepaid:
        return invalid("payment_method", "must be cash or prepaid")
    case in.VehicleType == "":
        return invalid("vehicle_type", "is required")
    case in.ContactPhone == "":
        return invalid("contact_phone", "is required")
    case len(in.PlateNumber) > 32:
        return invalid("plate_number", "is too long")
    case len(in.Instructions) > 500:
        return invalid("instructions", "must be at most 500 characters")
    }
    return nil
}

func requireIdentity(id model.Identity) error {
    if id.UserID == 0 {
        return ErrUnauthenticated
    }
    return nil
}

// Create books one unit of a space.  Cash bookings are confirmed at once;
// prepaid bookings stay pending until the payment outcome arrives.
func (s *ReservationService) Create(ctx context.Context, who model.Identity, in CreateReservationInput) (*CreateResult, error) {
    if err := requireIdentity(who); err != nil {
        return nil, err
    }
    now := s.now()
    if err := in.validate(now); err != nil {
        return nil, err
    }

    space, err := s.getSpace(ctx, in.SpaceID)
    if err != nil {
        return nil, err
    }
    if !space.IsActive {
        return nil, repository.ErrSpaceInactive
    }
    if !space.AcceptsVehicle(in.VehicleType) {
        return nil, invalid("vehicle_type", "is not accepted at this space")
    }
    switch in.PaymentMethod {
    case model.PaymentCash:
        if !space.AcceptsCash {
            return nil, invalid("payment_method", "this space does not accept cash on arrival")
        }
    case model.PaymentPrepaid:
        if s.payments == nil {
            return nil, invalid("payment_method", "prepaid payments are not available")
        }
    }
    if space.AvailableSpaces <= 0 {
        return nil, repository.ErrNoCapacity
    }

    status := model.StatusConfirmed
    if in.PaymentMethod == model.PaymentPrepaid {
        status = model.StatusPending
    }
    res := &model.Reservation{
        ID:               uuid.NewString(),
        SpaceID:          space.ID,
        UserID:           who.UserID,
        UserEmail:        who.Email,
        ArrivalAt:        in.ArrivalAt.UTC().Truncate(time.Second),
        DurationHours:    in.DurationHours,
        TotalAmountCents: availability.TotalAmount(in.DurationHours, space.PricePerHourCents, availability.ParseFlatCharge(space.AdditionalCharges)),
        PaymentMethod:    in.PaymentMethod,
        VehicleType:      in.VehicleType,
        PlateNumber:      in.PlateNumber,
        ContactPhone:     in.ContactPhone,
        Instructions:     in.Instructions,
        Status:           status,
    }

    cctx, cancel := context.WithTimeout(ctx, s.timeout)
    err = s.reservations.Create(cctx, res)
    cancel()
    if err != nil {
        return nil, s.storeErr("create reservation", err, zap.String("space_id", space.ID))
    }
    s.afterChange(ctx, queue.EventCreated, res, space)

    out := &CreateResult{Reservation: res}
    if in.PaymentMethod != model.PaymentPrepaid {
        return out, nil
    }

    handle, err := s.payments.CreateIntent(ctx, res, space)
    if err != nil {
        s.log.Warn("payment intent failed, releasing reservation",
            zap.String("reservation_id", res.ID), zap.Error(err))
        if _, rerr := s.transition(ctx, model.Transition{
            ReservationID: res.ID, From: pendingOnly, To: model.StatusCancelled, At: s.now(), Release: true,
        }, queue.EventCancelled); rerr != nil {
            // the stale-pending sweep releases it later
            s.log.Error("release after payment failure", zap.String("reservation_id", res.ID), zap.Error(rerr))
        }
        return nil, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
    }
    cctx, cancel = context.WithTimeout(ctx, s.timeout)
    if err := s.reservations.SetPaymentRef(cctx, res.ID, handle.Reference); err != nil {
        s.log.Warn("store payment reference", zap.String("reservation_id", res.ID), zap.Error(err))
    } else {
        ref := handle.Reference
        res.PaymentRef = &ref
    }
    cancel()
    out.ClientSecret = handle.ClientSecret
    return out, nil
}

// Cancel releases the reservation's unit.  Only the driver who made it may
// cancel, and only while it is pending or confirmed.
func (s *ReservationService) Cancel(ctx context.Context, who model.Identity, reservationID string) (*model.Reservation, error) {
    if err := requireIdentity(who); err != nil {
        return nil, err
    }
    var (
        cur *model.Reservation
        res *model.Reservation
        err error
    )
    // pinned to the status read; a confirmation landing in between shows up
    // on the second pass
    for attempt := 0; attempt < 2; attempt++ {
        cur, err = s.getOwned(ctx, who, reservationID)
        if err != nil {
            return nil, err
        }
        if !cur.HoldsCapacity() {
            return nil, repository.ErrInvalidTransition
        }
        res, err = s.transition(ctx, model.Transition{
            ReservationID: reservationID, ActorID: who.UserID, From: []model.ReservationStatus{cur.Status},
            To: model.StatusCancelled, At: s.now(), Release: true,
        }, queue.EventCancelled)
        if !errors.Is(err, repository.ErrInvalidTransition) {
            break
        }
    }
    if err != nil {
        return nil, err
    }
    if cur.Status == model.StatusConfirmed && cur.PaymentMethod == model.PaymentPrepaid && cur.PaymentRef != nil && s.payments != nil {
        if err := s.payments.Refund(ctx, *cur.PaymentRef); err != nil {
            s.log.Error("refund after cancel failed",
                zap.String("reservation_id", res.ID), zap.String("payment_ref", *cur.PaymentRef), zap.Error(err))
            return res, fmt.Errorf("%w: reservation %s was cancelled but the refund failed", ErrContactSupport, res.ID)
        }
    }
    return res, nil
}

// Delete removes a cancelled reservation from the driver's history.
func (s *ReservationService) Delete(ctx context.Context, who model.Identity, reservationID string) error {
    if err := requireIdentity(who); err != nil {
        return err
    }
    cur, err := s.getOwned(ctx, who, reservationID)
    if err != nil {
        return err
    }
    if cur.Status != model.StatusCancelled {
        return repository.ErrInvalidTransition
    }
    cctx, cancel := context.WithTimeout(ctx, s.timeout)
    defer cancel()
    if err := s.reservations.Delete(cctx, reservationID, who.UserID); err != nil {
        return s.storeErr("delete reservation", err, zap.String("reservation_id", reservationID))
    }
    return nil
}

// Get returns a reservation to the driver who made it or to the owner of
// the space it belongs to.
func (s *ReservationService) Get(ctx context.Context, who model.Identity, reservationID string) (*model.Reservation, error) {
    if err := requireIdentity(who); err != nil {
        return nil, err
    }
    res, err := s.getReservation(ctx, reservationID)
    if err != nil {
        return nil, err
    }
    if res.UserID == who.UserID {
        return res, nil
    }
    space, err := s.getSpace(ctx, res.SpaceID)
    if err != nil {
        return nil, err
    }
    if space.OwnerID != who.UserID {
        return nil, repository.ErrForbidden
    }
    return res, nil
}

// ListMine returns the caller's reservations, newest first.
func (s *ReservationService) ListMine(ctx context.Context, who model.Identity) ([]model.Reservation, error) {
    if err := requireIdentity(who); err != nil {
        return nil, err
    }
    cctx, cancel := context.WithTimeout(ctx, s.timeout)
    defer cancel()
    out, err := s.reservations.ListByUser(cctx, who.UserID)
    if err != nil {
        return nil, s.storeErr("list reservations", err)
    }
    return out, nil
}

// ListForSpace returns every reservation of a space to its owner.
func (s *ReservationService) ListForSpace(ctx context.Context, who model.Identity, spaceID string) ([]model.Reservation, error) {
    if err := requireIdentity(who); err != nil {
        return nil, err
    }
    space, err := s.getSpace(ctx, spaceID)
    if err != nil {
        return nil, err
    }
    if space.OwnerID != who.UserID {
        return nil, repository.ErrForbidden
    }
    cctx, cancel := context.WithTimeout(ctx, s.timeout)
    defer cancel()
    out, err := s.reservations.ListBySpace(cctx, spaceID)
    if err != nil {
        return nil, s.storeErr("list space reservations", err)
    }
    return out, nil
}

// Space returns the space a reservation belongs to.  Receipts use it.
func (s *ReservationService) Space(ctx context.Context, spaceID string) (*model.ParkingSpace, error) {
    return s.getSpace(ctx, spaceID)
}

// ConfirmPayment moves a pending prepaid reservation to confirmed after the
// processor reported success.  Repeated notifications are accepted.  Any
// failure to record the confirmation is reported as ErrContactSupport since
// the money has already been taken.
func (s *ReservationService) ConfirmPayment(ctx context.Context, reservationID, reference string) (*model.Reservation, error) {
    ref := reference
    res, err := s.transition(ctx, model.Transition{
        ReservationID: reservationID, From: pendingOnly, To: model.StatusConfirmed, At: s.now(), PaymentRef: &ref,
    }, queue.EventConfirmed)
    if err == nil {
        return res, nil
    }
    if errors.Is(err, repository.ErrInvalidTransition) {
        cur, gerr := s.getReservation(ctx, reservationID)
        if gerr == nil && cur.Status == model.StatusConfirmed {
            return cur, nil
        }
        if gerr == nil && cur.Status == model.StatusCancelled && s.payments != nil {
            // paid after the booking was released; give the money back
            if rerr := s.payments.Refund(ctx, reference); rerr == nil {
                return cur, repository.ErrInvalidTransition
            }
        }
    }
    s.log.Error("payment captured but confirmation failed",
        zap.String("reservation_id", reservationID), zap.String("payment_ref", reference), zap.Error(err))
    return nil, fmt.Errorf("%w: payment %s for reservation %s", ErrContactSupport, reference, reservationID)
}

// FailPayment cancels a pending prepaid reservation and releases its unit.
// A reservation that is already cancelled is left as is.
func (s *ReservationService) FailPayment(ctx context.Context, reservationID string) (*model.Reservation, error) {
    res, err := s.transition(ctx, model.Transition{
        ReservationID: reservationID, From: pendingOnly, To: model.StatusCancelled, At: s.now(), Release: true,
    }, queue.EventCancelled)
    if errors.Is(err, repository.ErrInvalidTransition) {
        cur, gerr := s.getReservation(ctx, reservationID)
        if gerr == nil && cur.Status == model.StatusCancelled {
            return cur, nil
        }
    }
    return res, err
}

// CompleteElapsed marks confirmed reservations whose window has ended as
// completed and returns how many were changed.
func (s *ReservationService) CompleteElapsed(ctx context.Context, at time.Time) (int, error) {
    return s.sweep(ctx, func(cctx context.Context) ([]model.Reservation, error) {
        return s.reservations.ListElapsed(cctx, at, sweepBatch)
    }, confirmedOnly, model.StatusCompleted, queue.EventCompleted)
}

// ExpireStalePending cancels prepaid reservations that never received a
// payment outcome before the cutoff.
func (s *ReservationService) ExpireStalePending(ctx context.Context, before time.Time) (int, error) {
    return s.sweep(ctx, func(cctx context.Context) ([]model.Reservation, error) {
        return s.reservations.ListStalePending(cctx, before, sweepBatch)
    }, pendingOnly, model.StatusCancelled, queue.EventCancelled)
}

func (s *ReservationService) sweep(ctx context.Context, list func(context.Context) ([]model.Reservation, error),
    from []model.ReservationStatus, to model.ReservationStatus, event string) (int, error) {
    cctx, cancel := context.WithTimeout(ctx, s.timeout)
    due, err := list(cctx)
    cancel()
    if err != nil {
        return 0, s.storeErr("list due reservations", err)
    }
    n := 0
    for _, r := range due {
        _, err := s.transition(ctx, model.Transition{
            ReservationID: r.ID, From: from, To: to, At: s.now(), Release: true,
        }, event)
        switch {
        case err == nil:
            n++
        case errors.Is(err, repository.ErrInvalidTransition), errors.Is(err, repository.ErrNotFound):
            // changed by someone else since it was listed
        default:
            return n, err
        }
    }
    return n, nil
}

// transition runs t against the store and emits event on success.
func (s *ReservationService) transition(ctx context.Context, t model.Transition, event string) (*model.Reservation, error) {
    cctx, cancel := context.WithTimeout(ctx, s.timeout)
    res, err := s.reservations.Transition(cctx, t)
    cancel()
    if err != nil {
        return nil, s.storeErr("transition reservation", err,
            zap.String("reservation_id", t.ReservationID), zap.String("to", string(t.To)))
    }
    s.afterChange(ctx, event, res, nil)
    return res, nil
}

func (s *ReservationService) getReservation(ctx context.Context, id string) (*model.Reservation, error) {
    cctx, cancel := context.WithTimeout(ctx, s.timeout)
    defer cancel()
    res, err := s.reservations.GetByID(cctx, id)
    if err != nil {
        return nil, s.storeErr("get reservation", err, zap.String("reservation_id", id))
    }
    return res, nil
}

func (s *ReservationService) getOwned(ctx context.Context, who model.Identity, id string) (*model.Reservation, error) {
    res, err := s.getReservation(ctx, id)
    if err != nil {
        return nil, err
    }
    if res.UserID != who.UserID {
        return nil, repository.ErrForbidden
    }
    return res, nil
}

func (s *ReservationService) getSpace(ctx context.Context, id string) (*model.ParkingSpace, error) {
    cctx, cancel := context.WithTimeout(ctx, s.timeout)
    defer cancel()
    sp, err := s.spaces.GetByID(cctx, id)
    if err != nil {
        return nil, s.storeErr("get space", err, zap.String("space_id", id))
    }
    return sp, nil
}

// afterChange invalidates cached listings and publishes the event.  Both
// are best effort.
func (s *ReservationService) afterChange(ctx context.Context, event string, res *model.Reservation, space *model.ParkingSpace) {
    if s.cache != nil {
        if err := s.cache.Invalidate(ctx); err != nil {
            s.log.Warn("invalidate listing cache", zap.Error(err))
        }
    }
    if s.events == nil {
        return
    }
    if space == nil {
        if sp, err := s.getSpace(ctx, res.SpaceID); err == nil {
            space = sp
        }
    }
    ev := queue.ReservationEvent{
        Type:             event,
        ReservationID:    res.ID,
        SpaceID:          res.SpaceID,
        UserID:           res.UserID,
        UserEmail:        res.UserEmail,
        ContactPhone:     res.ContactPhone,
        ArrivalAt:        res.ArrivalAt.Format(time.RFC3339),
        DurationHours:    res.DurationHours,
        TotalAmountCents: res.TotalAmountCents,
        PaymentMethod:    string(res.PaymentMethod),
        Status:           string(res.Status),
        OccurredAt:       s.now().Format(time.RFC3339),
    }
    if space != nil {
        ev.SpaceName, ev.SpaceAddress = space.Name, space.Address
    }
    pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := s.events.Publish(pctx, ev); err != nil {
        s.log.Warn("publish reservation event", zap.String("type", event), zap.String("reservation_id", res.ID), zap.Error(err))
    }
}

// storeErr logs invariant violations loudly and passes everything through.
func (s *ReservationService) storeErr(op string, err error, fields ...zap.Field) error {
    if errors.Is(err, inventory.ErrInvariantViolation) {
        s.log.Error("inventory invariant violated", append(fields, zap.String("op", op), zap.Error(err))...)
    }
    return err
}
