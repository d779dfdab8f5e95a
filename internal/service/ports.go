package service

import (
    "context"
    "time"

    "github.com/iliyamo/parking-space-reservation/internal/model"
    "github.com/iliyamo/parking-space-reservation/internal/payment"
    "github.com/iliyamo/parking-space-reservation/internal/queue"
)

// SpaceStore is implemented by repository.SpaceRepo and memory.SpaceStore.
type SpaceStore interface {
    Create(ctx context.Context, s *model.ParkingSpace) error
    GetByID(ctx context.Context, id string) (*model.ParkingSpace, error)
    Search(ctx context.Context, q model.SpaceQuery) ([]model.ParkingSpace, int, error)
    ListByOwner(ctx context.Context, ownerID uint64) ([]model.ParkingSpace, error)
    UpdateDetails(ctx context.Context, s *model.ParkingSpace) error
    UpdateInventory(ctx context.Context, id string, ownerID uint64, upd model.InventoryUpdate) (*model.ParkingSpace, error)
    SetActive(ctx context.Context, id string, ownerID uint64, active bool) error
    Delete(ctx context.Context, id string, ownerID uint64) error
    AddImage(ctx context.Context, id string, ownerID uint64, url string) error
}

// ReservationStore is implemented by repository.ReservationRepo and
// memory.ReservationStore.  Create and Transition must change the space
// counter atomically with the reservation row.
type ReservationStore interface {
    Create(ctx context.Context, r *model.Reservation) error
    GetByID(ctx context.Context, id string) (*model.Reservation, error)
    ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error)
    ListBySpace(ctx context.Context, spaceID string) ([]model.Reservation, error)
    ListElapsed(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error)
    ListStalePending(ctx context.Context, before time.Time, limit int) ([]model.Reservation, error)
    Transition(ctx context.Context, t model.Transition) (*model.Reservation, error)
    Delete(ctx context.Context, id string, actorID uint64) error
    SetPaymentRef(ctx context.Context, id, ref string) error
}

// ReviewStore is implemented by repository.ReviewRepo and memory.ReviewStore.
type ReviewStore interface {
    Upsert(ctx context.Context, rv *model.Review) error
    ListBySpace(ctx context.Context, spaceID string, limit, offset int) ([]model.Review, error)
    Summary(ctx context.Context, spaceID string) (model.RatingSummary, error)
}

// PaymentGateway starts and refunds prepaid payments.
type PaymentGateway interface {
    CreateIntent(ctx context.Context, r *model.Reservation, s *model.ParkingSpace) (payment.Handle, error)
    Refund(ctx context.Context, reference string) error
}

// EventPublisher delivers reservation lifecycle events.
type EventPublisher interface {
    Publish(ctx context.Context, ev queue.ReservationEvent) error
}

// CacheInvalidator drops cached public listings after a counter change.
type CacheInvalidator interface {
    Invalidate(ctx context.Context) error
}
