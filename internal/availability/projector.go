// Package availability derives display-ready availability figures from a
// parking space snapshot.  Everything here is pure; handlers call it after
// reading a space so listing cards, detail pages and owner views agree.
package availability

import (
    "math"
    "regexp"
    "strconv"

    "github.com/iliyamo/parking-space-reservation/internal/model"
)

// Status is the coarse availability label shown on listings.
type Status string

const (
    Full      Status = "Full"
    Limited   Status = "Limited"
    Available Status = "Available"
)

// TypeCount is one row of the per-vehicle-type breakdown.
type TypeCount struct {
    VehicleType string `json:"vehicle_type"`
    Count       int    `json:"count"`
}

// SpaceAvailability bundles the projections for one space.
type SpaceAvailability struct {
    Status          Status      `json:"status"`
    Available       int         `json:"available"`
    Capacity        int         `json:"capacity"`
    Breakdown       []TypeCount `json:"breakdown"`
    FlatChargeCents int64       `json:"flat_charge_cents"`
}

// StatusOf maps a counter to its label.  Limited covers 0 < available ≤ 30%
// of capacity, boundary included; integer math keeps 3/10 exactly Limited.
func StatusOf(available, capacity int) Status {
    if available <= 0 {
        return Full
    }
    if available*10 <= capacity*3 {
        return Limited
    }
    return Available
}

// Breakdown lists counts in the order of types.  Types missing from counts
// project as 0.
func Breakdown(types []string, counts map[string]int) []TypeCount {
    out := make([]TypeCount, 0, len(types))
    for _, t := range types {
        out = append(out, TypeCount{VehicleType: t, Count: counts[t]})
    }
    return out
}

var firstNumber = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ParseFlatCharge extracts the first number in a free-text charge
// description and returns it in cents.  "Rs 20 overnight" yields 2000;
// text without digits yields 0.
func ParseFlatCharge(text string) int64 {
    tok := firstNumber.FindString(text)
    if tok == "" {
        return 0
    }
    f, err := strconv.ParseFloat(tok, 64)
    if err != nil || math.IsInf(f, 0) {
        return 0
    }
    return int64(math.Round(f * 100))
}

// TotalAmount is hours × hourly price plus the flat charge, all in cents.
func TotalAmount(hours int, pricePerHourCents, flatChargeCents int64) int64 {
    return int64(hours)*pricePerHourCents + flatChargeCents
}

// Project computes every availability projection for s.
func Project(s *model.ParkingSpace) SpaceAvailability {
    return SpaceAvailability{
        Status:          StatusOf(s.AvailableSpaces, s.Capacity),
        Available:       s.AvailableSpaces,
        Capacity:        s.Capacity,
        Breakdown:       Breakdown(s.VehicleTypes, s.VehicleCounts),
        FlatChargeCents: ParseFlatCharge(s.AdditionalCharges),
    }
}
