// Package receipt renders the QR pass and PDF receipt a driver shows at the
// gate.
package receipt

import (
    "bytes"
    "crypto/hmac"
    "crypto/sha256"
    "encoding/base64"
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/phpdave11/gofpdf"
    "github.com/skip2/go-qrcode"

    "github.com/iliyamo/parking-space-reservation/internal/model"
)

// ErrBadPass is returned by Verify for a forged or malformed payload.
var ErrBadPass = errors.New("invalid parking pass")

// Signer signs and verifies pass payloads with an HMAC key.
type Signer struct {
    key []byte
}

// NewSigner panics on an empty key.
func NewSigner(key string) *Signer {
    if key == "" {
        panic("receipt: empty signing key")
    }
    return &Signer{key: []byte(key)}
}

// Payload returns "reservationID|spaceID|arrivalUnix|signature".
func (s *Signer) Payload(r *model.Reservation) string {
    data := fmt.Sprintf("%s|%s|%d", r.ID, r.SpaceID, r.ArrivalAt.Unix())
    return data + "|" + s.sign(data)
}

// Verify checks a scanned payload and returns the reservation id it names.
func (s *Signer) Verify(payload string) (string, error) {
    i := strings.LastIndexByte(payload, '|')
    if i < 0 {
        return "", ErrBadPass
    }
    data, sig := payload[:i], payload[i+1:]
    if !hmac.Equal([]byte(sig), []byte(s.sign(data))) {
        return "", ErrBadPass
    }
    parts := strings.Split(data, "|")
    if len(parts) != 3 || parts[0] == "" {
        return "", ErrBadPass
    }
    return parts[0], nil
}

func (s *Signer) sign(data string) string {
    h := hmac.New(sha256.New, s.key)
    h.Write([]byte(data))
    return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// QR encodes the signed pass of r as a PNG of the given edge length.
func (s *Signer) QR(r *model.Reservation, size int) ([]byte, error) {
    if size <= 0 {
        size = 256
    }
    return qrcode.Encode(s.Payload(r), qrcode.Medium, size)
}

// PDF renders an A4 receipt with the reservation details and its pass.
func (s *Signer) PDF(r *model.Reservation, space *model.ParkingSpace) ([]byte, error) {
    qr, err := s.QR(r, 256)
    if err != nil {
        return nil, fmt.Errorf("qr: %w", err)
    }

    pdf := gofpdf.New("P", "mm", "A4", "")
    pdf.SetTitle("Parking reservation "+r.ID, true)
    pdf.AddPage()
    tr := pdf.UnicodeTranslatorFromDescriptor("")

    pdf.SetFont("Arial", "B", 18)
    pdf.Cell(0, 10, "Parking Reservation")
    pdf.Ln(14)

    pdf.SetFont("Arial", "", 12)
    rows := [][2]string{
        {"Reservation", r.ID},
        {"Status", string(r.Status)},
        {"Space", space.Name},
        {"Address", strings.Trim(space.Address+", "+space.City, ", ")},
        {"Arrival", r.ArrivalAt.UTC().Format("Mon 2 Jan 2006 15:04 MST")},
        {"Until", r.EndsAt().UTC().Format("Mon 2 Jan 2006 15:04 MST")},
        {"Duration", fmt.Sprintf("%d hour(s)", r.DurationHours)},
        {"Vehicle", strings.TrimSpace(r.VehicleType + " " + r.PlateNumber)},
        {"Payment", string(r.PaymentMethod)},
        {"Total", fmt.Sprintf("%d.%02d", r.TotalAmountCents/100, r.TotalAmountCents%100)},
    }
    if space.AdditionalCharges != "" {
        rows = append(rows, [2]string{"Charges", space.AdditionalCharges})
    }
    for _, row := range rows {
        pdf.SetFont("Arial", "B", 11)
        pdf.Cell(35, 8, row[0])
        pdf.SetFont("Arial", "", 11)
        pdf.Cell(0, 8, tr(row[1]))
        pdf.Ln(8)
    }

    opts := gofpdf.ImageOptions{ImageType: "PNG"}
    pdf.RegisterImageOptionsReader("pass", opts, bytes.NewReader(qr))
    pdf.ImageOptions("pass", 145, 30, 50, 50, false, opts, 0, "")

    pdf.Ln(6)
    pdf.SetFont("Arial", "I", 9)
    pdf.Cell(0, 6, "Issued "+time.Now().UTC().Format(time.RFC1123))

    var buf bytes.Buffer
    if err := pdf.Output(&buf); err != nil {
        return nil, err
    }
    return buf.Bytes(), nil
}
