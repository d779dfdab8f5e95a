// Package payment wraps the Stripe API for prepaid reservations.  A
// PaymentIntent is created per reservation with the reservation id in its
// metadata; Stripe later reports the outcome through the webhook handled in
// the handler package.
package payment

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "strings"

    "github.com/stripe/stripe-go/v82"
    "github.com/stripe/stripe-go/v82/paymentintent"
    "github.com/stripe/stripe-go/v82/refund"
    "github.com/stripe/stripe-go/v82/webhook"

    "github.com/iliyamo/parking-space-reservation/internal/model"
)

// MetadataReservationID is the PaymentIntent metadata key carrying the
// reservation id.
const MetadataReservationID = "reservation_id"

// Handle is what the driver's client needs to complete a payment.
type Handle struct {
    Reference    string // PaymentIntent id
    ClientSecret string
}

// Outcome is a verified webhook notification.
type Outcome struct {
    ReservationID string
    Reference     string
    Succeeded     bool
}

// ErrIgnoredEvent is returned by ParseWebhook for event types that carry no
// reservation outcome.
var ErrIgnoredEvent = errors.New("ignored payment event")

// StripeGateway creates and refunds PaymentIntents.
type StripeGateway struct {
    currency      string
    webhookSecret string
}

// NewStripeGateway configures the global Stripe key and returns a gateway.
func NewStripeGateway(secretKey, webhookSecret, currency string) *StripeGateway {
    stripe.Key = secretKey
    if currency == "" {
        currency = "usd"
    }
    return &StripeGateway{currency: strings.ToLower(currency), webhookSecret: webhookSecret}
}

// CreateIntent opens a PaymentIntent for the reservation total.
func (g *StripeGateway) CreateIntent(ctx context.Context, res *model.Reservation, space *model.ParkingSpace) (Handle, error) {
    params := &stripe.PaymentIntentParams{
        Amount:      stripe.Int64(res.TotalAmountCents),
        Currency:    stripe.String(g.currency),
        Description: stripe.String(fmt.Sprintf("%s, %d h", space.Name, res.DurationHours)),
        AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
            Enabled: stripe.Bool(true),
        },
    }
    if res.UserEmail != "" {
        params.ReceiptEmail = stripe.String(res.UserEmail)
    }
    params.Context = ctx
    params.AddMetadata(MetadataReservationID, res.ID)
    params.AddMetadata("space_id", res.SpaceID)
    params.SetIdempotencyKey("reservation-" + res.ID)

    pi, err := paymentintent.New(params)
    if err != nil {
        return Handle{}, fmt.Errorf("stripe payment intent: %w", err)
    }
    return Handle{Reference: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// Refund returns the full amount of a PaymentIntent.
func (g *StripeGateway) Refund(ctx context.Context, reference string) error {
    params := &stripe.RefundParams{PaymentIntent: stripe.String(reference)}
    params.Context = ctx
    params.SetIdempotencyKey("refund-" + reference)
    if _, err := refund.New(params); err != nil {
        return fmt.Errorf("stripe refund: %w", err)
    }
    return nil
}

// ParseWebhook verifies the Stripe signature and extracts the reservation
// outcome from payment_intent events.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (Outcome, error) {
    event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
        webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
    if err != nil {
        return Outcome{}, fmt.Errorf("verify webhook: %w", err)
    }
    return outcomeFromEvent(event)
}

func outcomeFromEvent(event stripe.Event) (Outcome, error) {
    var succeeded bool
    switch event.Type {
    case "payment_intent.succeeded":
        succeeded = true
    case "payment_intent.payment_failed", "payment_intent.canceled":
        succeeded = false
    default:
        return Outcome{}, ErrIgnoredEvent
    }
    if event.Data == nil {
        return Outcome{}, errors.New("webhook event without data")
    }
    var pi stripe.PaymentIntent
    if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
        return Outcome{}, fmt.Errorf("decode payment intent: %w", err)
    }
    id := pi.Metadata[MetadataReservationID]
    if id == "" {
        return Outcome{}, ErrIgnoredEvent
    }
    return Outcome{ReservationID: id, Reference: pi.ID, Succeeded: succeeded}, nil
}
