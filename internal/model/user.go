package model

import "time"

// Role names stored in users.role and in the JWT "role" claim.
const (
    RoleOwner  = "OWNER"
    RoleDriver = "DRIVER"
)

// User represents an application user record as stored in the
// `users` table.  Handlers never serialise it directly; the password hash
// stays inside the repository and auth layers.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  Role         – OWNER or DRIVER.
//  IsActive     – whether the account is active.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
    ID           uint64    // users.id
    Email        string    // users.email
    PasswordHash string    // users.password_hash
    Role         string    // users.role
    IsActive     bool      // users.is_active
    CreatedAt    time.Time // users.created_at
    UpdatedAt    time.Time // users.updated_at
}

// Identity is the authenticated caller as resolved from the access token.
// It is passed explicitly into every mutating service call.
type Identity struct {
    UserID uint64
    Email  string
    Role   string
}

// IsOwner reports whether the caller holds the OWNER role.
func (i Identity) IsOwner() bool { return i.Role == RoleOwner }

// Review is one driver's rating of a space.  There is at most one review
// per (user, space) pair; writing again replaces it.
type Review struct {
    ID        uint64    `json:"id"`         // reviews.id
    SpaceID   string    `json:"space_id"`   // reviews.space_id
    UserID    uint64    `json:"user_id"`    // reviews.user_id
    Rating    int       `json:"rating"`     // reviews.rating (1-5)
    Comment   string    `json:"comment"`    // reviews.comment
    CreatedAt time.Time `json:"created_at"` // reviews.created_at
    UpdatedAt time.Time `json:"updated_at"` // reviews.updated_at
}

// RatingSummary aggregates the reviews of a space.
type RatingSummary struct {
    Average float64 `json:"average"`
    Count   int     `json:"count"`
}
