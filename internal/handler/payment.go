package handler

import (
    "errors"
    "io"
    "net/http"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/parking-space-reservation/internal/payment"
    "github.com/iliyamo/parking-space-reservation/internal/repository"
    "github.com/iliyamo/parking-space-reservation/internal/service"
)

// maxWebhookBytes matches the limit Stripe recommends for event payloads.
const maxWebhookBytes = 65536

// WebhookParser verifies and decodes a processor notification.
type WebhookParser interface {
    ParseWebhook(payload []byte, signature string) (payment.Outcome, error)
}

// PaymentHandler receives payment outcomes from the processor.
type PaymentHandler struct {
    Parser       WebhookParser
    Reservations *service.ReservationService
    Log          *zap.Logger
}

func NewPaymentHandler(parser WebhookParser, res *service.ReservationService, log *zap.Logger) *PaymentHandler {
    if log == nil {
        log = zap.NewNop()
    }
    return &PaymentHandler{Parser: parser, Reservations: res, Log: log}
}

// Webhook handles POST /v1/payments/webhook.  Stripe retries on any non-2xx
// answer, so only bad signatures and retryable failures are reported as
// errors; everything already settled is acknowledged.
func (h *PaymentHandler) Webhook(c echo.Context) error {
    payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBytes))
    if err != nil {
        return badRequest(c, "cannot read body")
    }
    out, err := h.Parser.ParseWebhook(payload, c.Request().Header.Get("Stripe-Signature"))
    if errors.Is(err, payment.ErrIgnoredEvent) {
        return c.NoContent(http.StatusOK)
    }
    if err != nil {
        h.Log.Warn("rejected payment webhook", zap.Error(err))
        return badRequest(c, "invalid webhook")
    }

    ctx := c.Request().Context()
    if out.Succeeded {
        _, err = h.Reservations.ConfirmPayment(ctx, out.ReservationID, out.Reference)
    } else {
        _, err = h.Reservations.FailPayment(ctx, out.ReservationID)
    }
    switch {
    case err == nil:
        return c.NoContent(http.StatusOK)
    case errors.Is(err, repository.ErrInvalidTransition), errors.Is(err, repository.ErrNotFound):
        // settled elsewhere (late payment refunded, unknown intent)
        h.Log.Info("payment webhook had no effect",
            zap.String("reservation_id", out.ReservationID), zap.Bool("succeeded", out.Succeeded), zap.Error(err))
        return c.NoContent(http.StatusOK)
    }
    return writeError(c, h.Log, err)
}
