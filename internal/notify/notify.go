// Package notify tells drivers about their reservations by email (SendGrid)
// and SMS (Twilio).  Channels without credentials are skipped.
package notify

import (
    "context"
    "fmt"
    "html"
    "strings"
    "time"

    "github.com/sendgrid/sendgrid-go"
    "github.com/sendgrid/sendgrid-go/helpers/mail"
    "github.com/twilio/twilio-go"
    openapi "github.com/twilio/twilio-go/rest/api/v2010"
    "go.uber.org/zap"

    "github.com/iliyamo/parking-space-reservation/internal/model"
    "github.com/iliyamo/parking-space-reservation/internal/queue"
)

// Mailer sends a single email.
type Mailer interface {
    Send(ctx context.Context, to, subject, text, html string) error
}

// Texter sends a single SMS.
type Texter interface {
    Send(ctx context.Context, to, body string) error
}

// SendGridMailer delivers email through the SendGrid v3 API.
type SendGridMailer struct {
    client *sendgrid.Client
    from   *mail.Email
}

// NewSendGridMailer returns nil when apiKey or fromEmail is empty.
func NewSendGridMailer(apiKey, fromEmail, fromName string) *SendGridMailer {
    if apiKey == "" || fromEmail == "" {
        return nil
    }
    if fromName == "" {
        fromName = "ParkSpot"
    }
    return &SendGridMailer{client: sendgrid.NewSendClient(apiKey), from: mail.NewEmail(fromName, fromEmail)}
}

func (m *SendGridMailer) Send(ctx context.Context, to, subject, text, html string) error {
    msg := mail.NewSingleEmail(m.from, subject, mail.NewEmail("", to), text, html)
    resp, err := m.client.SendWithContext(ctx, msg)
    if err != nil {
        return fmt.Errorf("sendgrid: %w", err)
    }
    if resp.StatusCode < 200 || resp.StatusCode >= 300 {
        return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
    }
    return nil
}

// TwilioTexter delivers SMS through the Twilio REST API.
type TwilioTexter struct {
    client *twilio.RestClient
    from   string
}

// NewTwilioTexter returns nil when any credential is empty.
func NewTwilioTexter(accountSID, authToken, from string) *TwilioTexter {
    if accountSID == "" || authToken == "" || from == "" {
        return nil
    }
    client := twilio.NewRestClientWithParams(twilio.ClientParams{
        Username:   accountSID,
        Password:   authToken,
        AccountSid: accountSID,
    })
    return &TwilioTexter{client: client, from: from}
}

func (t *TwilioTexter) Send(_ context.Context, to, body string) error {
    if !strings.HasPrefix(to, "+") {
        return fmt.Errorf("twilio: %q is not in E.164 format", to)
    }
    params := &openapi.CreateMessageParams{}
    params.SetTo(to)
    params.SetFrom(t.from)
    params.SetBody(body)
    if _, err := t.client.Api.CreateMessage(params); err != nil {
        return fmt.Errorf("twilio: %w", err)
    }
    return nil
}

// Dispatcher turns reservation events into messages.  It implements
// queue.Notifier.
type Dispatcher struct {
    mail Mailer
    sms  Texter
    log  *zap.Logger
}

// NewDispatcher accepts nil channels.  Pass the concrete constructors'
// results through Channels to keep typed nils out of the interfaces.
func NewDispatcher(m Mailer, t Texter, logger *zap.Logger) *Dispatcher {
    if logger == nil {
        logger = zap.NewNop()
    }
    return &Dispatcher{mail: m, sms: t, log: logger}
}

// Channels converts possibly nil concrete senders into interface values.
func Channels(m *SendGridMailer, t *TwilioTexter) (Mailer, Texter) {
    var (
        mi Mailer
        ti Texter
    )
    if m != nil {
        mi = m
    }
    if t != nil {
        ti = t
    }
    return mi, ti
}

// Notify sends the messages for ev.  The first delivery error is returned
// after every channel has been tried.
func (d *Dispatcher) Notify(ctx context.Context, ev queue.ReservationEvent) error {
    msg, ok := compose(ev)
    if !ok {
        return nil
    }
    var first error
    if d.mail != nil && ev.UserEmail != "" {
        if err := d.mail.Send(ctx, ev.UserEmail, msg.subject, msg.text, msg.html); err != nil {
            d.log.Warn("reservation email failed", zap.String("reservation_id", ev.ReservationID), zap.Error(err))
            first = err
        }
    }
    if d.sms != nil && ev.ContactPhone != "" && msg.sms != "" {
        if err := d.sms.Send(ctx, ev.ContactPhone, msg.sms); err != nil {
            d.log.Warn("reservation sms failed", zap.String("reservation_id", ev.ReservationID), zap.Error(err))
            if first == nil {
                first = err
            }
        }
    }
    return first
}

type message struct {
    subject, text, html, sms string
}

func compose(ev queue.ReservationEvent) (message, bool) {
    where := ev.SpaceName
    if ev.SpaceAddress != "" {
        where = fmt.Sprintf("%s, %s", ev.SpaceName, ev.SpaceAddress)
    }
    arrival := ev.ArrivalAt
    if t, err := time.Parse(time.RFC3339, ev.ArrivalAt); err == nil {
        arrival = t.Format("Mon 2 Jan 2006 15:04 MST")
    }
    amount := fmt.Sprintf("%d.%02d", ev.TotalAmountCents/100, ev.TotalAmountCents%100)

    var m message
    switch ev.Type {
    case queue.EventCreated:
        if ev.Status != string(model.StatusConfirmed) {
            // prepaid bookings are announced once the payment lands
            return m, false
        }
        fallthrough
    case queue.EventConfirmed:
        m.subject = "Your parking reservation is confirmed"
        m.text = fmt.Sprintf("Reservation %s at %s is confirmed for %s, %d hour(s). Total: %s (%s).",
            ev.ReservationID, where, arrival, ev.DurationHours, amount, ev.PaymentMethod)
        m.sms = fmt.Sprintf("Parking confirmed: %s, %s, %dh. Ref %s", where, arrival, ev.DurationHours, shortRef(ev.ReservationID))
    case queue.EventCancelled:
        m.subject = "Your parking reservation was cancelled"
        m.text = fmt.Sprintf("Reservation %s at %s for %s has been cancelled.", ev.ReservationID, where, arrival)
        m.sms = fmt.Sprintf("Parking cancelled: %s, %s. Ref %s", where, arrival, shortRef(ev.ReservationID))
    default:
        return m, false
    }
    m.html = "<p>" + html.EscapeString(m.text) + "</p>"
    return m, true
}

func shortRef(id string) string {
    if len(id) > 8 {
        return id[:8]
    }
    return id
}
