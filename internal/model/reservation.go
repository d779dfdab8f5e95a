package model

import "time"

// ReservationStatus enumerates reservations.status.
type ReservationStatus string

const (
    StatusPending   ReservationStatus = "pending"
    StatusConfirmed ReservationStatus = "confirmed"
    StatusCancelled ReservationStatus = "cancelled"
    StatusCompleted ReservationStatus = "completed"
)

// PaymentMethod enumerates reservations.payment_method.
type PaymentMethod string

const (
    PaymentCash    PaymentMethod = "cash"
    PaymentPrepaid PaymentMethod = "prepaid"
)

// AllowedDurations lists the booking lengths in hours a driver may choose.
var AllowedDurations = []int{1, 2, 3, 4, 5, 6, 8, 12, 24}

// Reservation records a driver's claim on one unit of a parking space.
// A reservation consumes a unit while pending or confirmed and releases it
// when cancelled or completed.
//
// Fields:
//  ID               – opaque identifier (UUID string).
//  SpaceID          – reserved parking space.
//  UserID           – driver who made the reservation.
//  UserEmail        – driver's email at booking time, used for receipts.
//  ArrivalAt        – estimated arrival (UTC).
//  DurationHours    – one of AllowedDurations.
//  TotalAmountCents – duration × hourly price + flat charge.
//  PaymentMethod    – cash or prepaid.
//  VehicleType      – vehicle category, matches one of the space's types.
//  PlateNumber      – optional licence plate.
//  ContactPhone     – phone used for SMS notifications.
//  Instructions     – optional free-text note for the owner.
//  Status           – pending, confirmed, cancelled or completed.
//  PaymentRef       – payment processor reference for prepaid bookings.
//  CancelledAt      – set when the reservation is cancelled.
//  CreatedAt        – creation timestamp.
//  UpdatedAt        – last update timestamp.
type Reservation struct {
    ID               string            `json:"id"`                 // reservations.id
    SpaceID          string            `json:"space_id"`           // reservations.space_id
    UserID           uint64            `json:"user_id"`            // reservations.user_id
    UserEmail        string            `json:"user_email"`         // reservations.user_email
    ArrivalAt        time.Time         `json:"arrival_at"`         // reservations.arrival_at
    DurationHours    int               `json:"duration_hours"`     // reservations.duration_hours
    TotalAmountCents int64             `json:"total_amount_cents"` // reservations.total_amount_cents
    PaymentMethod    PaymentMethod     `json:"payment_method"`     // reservations.payment_method
    VehicleType      string            `json:"vehicle_type"`       // reservations.vehicle_type
    PlateNumber      string            `json:"plate_number,omitempty"` // reservations.plate_number
    ContactPhone     string            `json:"contact_phone"`      // reservations.contact_phone
    Instructions     string            `json:"instructions,omitempty"` // reservations.instructions
    Status           ReservationStatus `json:"status"`             // reservations.status
    PaymentRef       *string           `json:"payment_ref,omitempty"` // reservations.payment_ref (nullable)
    CancelledAt      *time.Time        `json:"cancelled_at,omitempty"` // reservations.cancelled_at (nullable)
    CreatedAt        time.Time         `json:"created_at"`         // reservations.created_at
    UpdatedAt        time.Time         `json:"updated_at"`         // reservations.updated_at
}

// HoldsCapacity reports whether the reservation currently consumes a unit.
func (r *Reservation) HoldsCapacity() bool {
    return r.Status == StatusPending || r.Status == StatusConfirmed
}

// EndsAt is the end of the booked window.
func (r *Reservation) EndsAt() time.Time {
    return r.ArrivalAt.Add(time.Duration(r.DurationHours) * time.Hour)
}

// Transition describes a status change executed atomically by a store.
// From lists the statuses the reservation must currently be in.  ActorID,
// when non-zero, must match the reservation's user.  Release returns the
// consumed unit to the space counter.
type Transition struct {
    ReservationID string
    ActorID       uint64
    From          []ReservationStatus
    To            ReservationStatus
    At            time.Time
    Release       bool
    PaymentRef    *string
}

// Allows reports whether status is one of t.From.
func (t Transition) Allows(status ReservationStatus) bool {
    for _, s := range t.From {
        if s == status {
            return true
        }
    }
    return false
}
