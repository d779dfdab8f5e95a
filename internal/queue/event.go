// Package queue defines message payloads exchanged over the message broker
// and the background consumer that processes them.
package queue

// ReservationQueue is the durable queue carrying reservation lifecycle events.
const ReservationQueue = "reservation.events"

// Event types published on ReservationQueue.
const (
    EventCreated   = "reservation.created"
    EventConfirmed = "reservation.confirmed"
    EventCancelled = "reservation.cancelled"
    EventCompleted = "reservation.completed"
)

// ReservationEvent is published whenever a reservation changes status.  It
// contains enough information for downstream consumers to log and notify
// the driver without querying the primary database.
type ReservationEvent struct {
    Type             string `json:"type"`
    ReservationID    string `json:"reservation_id"`
    SpaceID          string `json:"space_id"`
    SpaceName        string `json:"space_name"`
    SpaceAddress     string `json:"space_address"`
    UserID           uint64 `json:"user_id"`
    UserEmail        string `json:"user_email"`
    ContactPhone     string `json:"contact_phone"`
    ArrivalAt        string `json:"arrival_at"`
    DurationHours    int    `json:"duration_hours"`
    TotalAmountCents int64  `json:"total_amount_cents"`
    PaymentMethod    string `json:"payment_method"`
    Status           string `json:"status"`
    OccurredAt       string `json:"occurred_at"`
}
