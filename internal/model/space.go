package model

import "time"

// ParkingSpace represents a listed parking location as stored in the
// `parking_spaces` table.  VehicleTypes, VehicleCounts, Amenities and Images
// are persisted as JSON columns.
//
// Fields:
//  ID                – opaque identifier (UUID string).
//  OwnerID           – user who listed the space.
//  Name              – display name.
//  Address, City     – free-text location strings.
//  PricePerHourCents – hourly price in cents.
//  Capacity          – total number of units; always positive.
//  AvailableSpaces   – live counter, 0 ≤ AvailableSpaces ≤ Capacity.
//  VehicleTypes      – ordered vehicle categories accepted by the space.
//  VehicleCounts     – optional sub-capacity per vehicle type.
//  Amenities         – amenity labels (covered, cctv, ev charging ...).
//  AdditionalCharges – free text such as "Rs 20 overnight fee".
//  AcceptsCash       – whether cash on arrival is allowed.
//  IsActive          – soft-delete flag; inactive spaces cannot be booked.
//  Images            – public URLs of uploaded photos.
//  CreatedAt         – creation timestamp.
//  UpdatedAt         – last update timestamp.
type ParkingSpace struct {
    ID                string         `json:"id"`                 // parking_spaces.id
    OwnerID           uint64         `json:"owner_id"`           // parking_spaces.owner_id
    Name              string         `json:"name"`               // parking_spaces.name
    Address           string         `json:"address"`            // parking_spaces.address
    City              string         `json:"city"`               // parking_spaces.city
    PricePerHourCents int64          `json:"price_per_hour_cents"` // parking_spaces.price_per_hour_cents
    Capacity          int            `json:"capacity"`           // parking_spaces.capacity
    AvailableSpaces   int            `json:"available_spaces"`   // parking_spaces.available_spaces
    VehicleTypes      []string       `json:"vehicle_types"`      // parking_spaces.vehicle_types (JSON)
    VehicleCounts     map[string]int `json:"vehicle_counts"`     // parking_spaces.vehicle_counts (JSON)
    Amenities         []string       `json:"amenities"`          // parking_spaces.amenities (JSON)
    AdditionalCharges string         `json:"additional_charges"` // parking_spaces.additional_charges
    AcceptsCash       bool           `json:"accepts_cash"`       // parking_spaces.accepts_cash
    IsActive          bool           `json:"is_active"`          // parking_spaces.is_active
    Images            []string       `json:"images"`             // parking_spaces.images (JSON)
    CreatedAt         time.Time      `json:"created_at"`         // parking_spaces.created_at
    UpdatedAt         time.Time      `json:"updated_at"`         // parking_spaces.updated_at
}

// AcceptsVehicle reports whether vehicleType may book this space.  A space
// without declared vehicle types accepts anything.
func (s *ParkingSpace) AcceptsVehicle(vehicleType string) bool {
    if len(s.VehicleTypes) == 0 {
        return true
    }
    for _, t := range s.VehicleTypes {
        if t == vehicleType {
            return true
        }
    }
    return false
}

// InventoryUpdate carries an owner's capacity edit.
type InventoryUpdate struct {
    Capacity      int
    VehicleTypes  []string
    VehicleCounts map[string]int
}

// SpaceQuery filters the public space search.  Zero values disable a filter.
type SpaceQuery struct {
    Location      string // matched against name, address and city
    MaxPriceCents int64
    VehicleType   string
    Page          int
    PageSize      int
}
