package repository

import (
    "context"
    "database/sql"
    "encoding/json"
    "strings"
    "time"

    "github.com/iliyamo/parking-space-reservation/internal/model"
)

// SpaceRepo persists parking spaces.  The available_spaces column is only
// ever changed through conditional UPDATE statements (see
// ReservationRepo.Create and ReservationRepo.Transition) or through
// UpdateInventory, which recomputes it from the outstanding reservations
// while holding the row lock.
type SpaceRepo struct {
    db *sql.DB
}

// NewSpaceRepo returns a new SpaceRepo bound to db.
func NewSpaceRepo(db *sql.DB) *SpaceRepo { return &SpaceRepo{db: db} }

// DB exposes the underlying handle so callers can begin transactions.
func (r *SpaceRepo) DB() *sql.DB { return r.db }

const spaceColumns = `id, owner_id, name, address, city, price_per_hour_cents, capacity, available_spaces, vehicle_types, vehicle_counts, amenities, additional_charges, accepts_cash, is_active, images, created_at, updated_at`

const countActiveSQL = `SELECT COUNT(*) FROM reservations WHERE space_id = ? AND status IN ('pending','confirmed')`

type rowScanner interface {
    Scan(dest ...any) error
}

func scanSpace(row rowScanner) (*model.ParkingSpace, error) {
    var s model.ParkingSpace
    var types, counts, amenities, imgs []byte
    err := row.Scan(&s.ID, &s.OwnerID, &s.Name, &s.Address, &s.City, &s.PricePerHourCents,
        &s.Capacity, &s.AvailableSpaces, &types, &counts, &amenities, &s.AdditionalCharges,
        &s.AcceptsCash, &s.IsActive, &imgs, &s.CreatedAt, &s.UpdatedAt)
    if err != nil {
        return nil, err
    }
    if err := decodeJSON(types, &s.VehicleTypes); err != nil {
        return nil, err
    }
    if err := decodeJSON(counts, &s.VehicleCounts); err != nil {
        return nil, err
    }
    if err := decodeJSON(amenities, &s.Amenities); err != nil {
        return nil, err
    }
    if err := decodeJSON(imgs, &s.Images); err != nil {
        return nil, err
    }
    return &s, nil
}

func decodeJSON(raw []byte, dst any) error {
    if len(raw) == 0 {
        return nil
    }
    return json.Unmarshal(raw, dst)
}

func encodeJSON(v any) ([]byte, error) {
    return json.Marshal(v)
}

// Create inserts a new space.  The caller sets ID, Capacity and
// AvailableSpaces.
func (r *SpaceRepo) Create(ctx context.Context, s *model.ParkingSpace) error {
    types, err := encodeJSON(s.VehicleTypes)
    if err != nil {
        return err
    }
    counts, err := encodeJSON(s.VehicleCounts)
    if err != nil {
        return err
    }
    amenities, err := encodeJSON(s.Amenities)
    if err != nil {
        return err
    }
    imgs, err := encodeJSON(s.Images)
    if err != nil {
        return err
    }
    now := time.Now().UTC().Truncate(time.Second)
    const q = `INSERT INTO parking_spaces (` + spaceColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
    _, err = r.db.ExecContext(ctx, q, s.ID, s.OwnerID, s.Name, s.Address, s.City, s.PricePerHourCents,
        s.Capacity, s.AvailableSpaces, types, counts, amenities, s.AdditionalCharges,
        s.AcceptsCash, s.IsActive, imgs, now, now)
    if err != nil {
        return classify(err)
    }
    s.CreatedAt, s.UpdatedAt = now, now
    return nil
}

// GetByID returns a single space or ErrNotFound.
func (r *SpaceRepo) GetByID(ctx context.Context, id string) (*model.ParkingSpace, error) {
    row := r.db.QueryRowContext(ctx, `SELECT `+spaceColumns+` FROM parking_spaces WHERE id = ?`, id)
    s, err := scanSpace(row)
    if err != nil {
        return nil, classify(err)
    }
    return s, nil
}

// Search lists active spaces matching q.  It returns the page and the
// total number of matches.
func (r *SpaceRepo) Search(ctx context.Context, q model.SpaceQuery) ([]model.ParkingSpace, int, error) {
    where := []string{"is_active = 1"}
    args := []any{}
    if loc := strings.TrimSpace(q.Location); loc != "" {
        like := "%" + loc + "%"
        where = append(where, "(name LIKE ? OR address LIKE ? OR city LIKE ?)")
        args = append(args, like, like, like)
    }
    if q.MaxPriceCents > 0 {
        where = append(where, "price_per_hour_cents <= ?")
        args = append(args, q.MaxPriceCents)
    }
    if vt := strings.TrimSpace(q.VehicleType); vt != "" {
        where = append(where, "(vehicle_types IS NULL OR JSON_LENGTH(vehicle_types) = 0 OR JSON_CONTAINS(vehicle_types, JSON_QUOTE(?)))")
        args = append(args, vt)
    }
    cond := " WHERE " + strings.Join(where, " AND ")

    var total int
    if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM parking_spaces`+cond, args...).Scan(&total); err != nil {
        return nil, 0, classify(err)
    }

    page, size := NormalizePage(q.Page, q.PageSize)
    listArgs := append(append([]any{}, args...), size, (page-1)*size)
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+spaceColumns+` FROM parking_spaces`+cond+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, listArgs...)
    if err != nil {
        return nil, 0, classify(err)
    }
    defer rows.Close()
    out, err := collectSpaces(rows)
    if err != nil {
        return nil, 0, err
    }
    return out, total, nil
}

// ListByOwner returns every space of ownerID, active or not.
func (r *SpaceRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]model.ParkingSpace, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT `+spaceColumns+` FROM parking_spaces WHERE owner_id = ? ORDER BY created_at DESC, id`, ownerID)
    if err != nil {
        return nil, classify(err)
    }
    defer rows.Close()
    return collectSpaces(rows)
}

func collectSpaces(rows *sql.Rows) ([]model.ParkingSpace, error) {
    out := []model.ParkingSpace{}
    for rows.Next() {
        s, err := scanSpace(rows)
        if err != nil {
            return nil, classify(err)
        }
        out = append(out, *s)
    }
    if err := rows.Err(); err != nil {
        return nil, classify(err)
    }
    return out, nil
}

// lockSpaceTx locks the space row for the rest of tx and checks ownership.
func lockSpaceTx(ctx context.Context, tx *sql.Tx, id string, ownerID uint64) (capacity, available int, err error) {
    var owner uint64
    err = tx.QueryRowContext(ctx,
        `SELECT owner_id, capacity, available_spaces FROM parking_spaces WHERE id = ? FOR UPDATE`, id).
        Scan(&owner, &capacity, &available)
    if err != nil {
        return 0, 0, classify(err)
    }
    if owner != ownerID {
        return 0, 0, ErrForbidden
    }
    return capacity, available, nil
}

// withTx runs fn inside a transaction and commits when fn returns nil.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
    tx, err := db.BeginTx(ctx, nil)
    if err != nil {
        return classify(err)
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    if err := fn(tx); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return classify(err)
    }
    committed = true
    return nil
}

// UpdateDetails rewrites the descriptive fields of a space.  Capacity and
// the availability counter are left alone.
func (r *SpaceRepo) UpdateDetails(ctx context.Context, s *model.ParkingSpace) error {
    amenities, err := encodeJSON(s.Amenities)
    if err != nil {
        return err
    }
    return withTx(ctx, r.db, func(tx *sql.Tx) error {
        if _, _, err := lockSpaceTx(ctx, tx, s.ID, s.OwnerID); err != nil {
            return err
        }
        _, err := tx.ExecContext(ctx,
            `UPDATE parking_spaces SET name = ?, address = ?, city = ?, price_per_hour_cents = ?, amenities = ?, additional_charges = ?, accepts_cash = ?, updated_at = ? WHERE id = ?`,
            s.Name, s.Address, s.City, s.PricePerHourCents, amenities, s.AdditionalCharges, s.AcceptsCash,
            time.Now().UTC(), s.ID)
        return classify(err)
    })
}

// UpdateInventory changes capacity and vehicle sub-capacities.  The
// counter is recomputed as capacity minus the outstanding reservations
// while the row is locked, so concurrent bookings cannot slip in between.
func (r *SpaceRepo) UpdateInventory(ctx context.Context, id string, ownerID uint64, upd model.InventoryUpdate) (*model.ParkingSpace, error) {
    types, err := encodeJSON(upd.VehicleTypes)
    if err != nil {
        return nil, err
    }
    counts, err := encodeJSON(upd.VehicleCounts)
    if err != nil {
        return nil, err
    }
    err = withTx(ctx, r.db, func(tx *sql.Tx) error {
        if _, _, err := lockSpaceTx(ctx, tx, id, ownerID); err != nil {
            return err
        }
        var outstanding int
        if err := tx.QueryRowContext(ctx, countActiveSQL, id).Scan(&outstanding); err != nil {
            return classify(err)
        }
        if upd.Capacity < outstanding {
            return ErrCapacityBelowOutstanding
        }
        _, err := tx.ExecContext(ctx,
            `UPDATE parking_spaces SET capacity = ?, available_spaces = ?, vehicle_types = ?, vehicle_counts = ?, updated_at = ? WHERE id = ?`,
            upd.Capacity, upd.Capacity-outstanding, types, counts, time.Now().UTC(), id)
        return classify(err)
    })
    if err != nil {
        return nil, err
    }
    return r.GetByID(ctx, id)
}

// SetActive toggles the soft-delete flag.
func (r *SpaceRepo) SetActive(ctx context.Context, id string, ownerID uint64, active bool) error {
    return withTx(ctx, r.db, func(tx *sql.Tx) error {
        if _, _, err := lockSpaceTx(ctx, tx, id, ownerID); err != nil {
            return err
        }
        _, err := tx.ExecContext(ctx,
            `UPDATE parking_spaces SET is_active = ?, updated_at = ? WHERE id = ?`, active, time.Now().UTC(), id)
        return classify(err)
    })
}

// Delete hard-deletes a space together with its finished reservations and
// reviews.  It refuses with *ActiveReservationsError while any pending or
// confirmed reservation exists.
func (r *SpaceRepo) Delete(ctx context.Context, id string, ownerID uint64) error {
    return withTx(ctx, r.db, func(tx *sql.Tx) error {
        if _, _, err := lockSpaceTx(ctx, tx, id, ownerID); err != nil {
            return err
        }
        var active int
        if err := tx.QueryRowContext(ctx, countActiveSQL, id).Scan(&active); err != nil {
            return classify(err)
        }
        if active > 0 {
            return &ActiveReservationsError{Count: active}
        }
        for _, q := range []string{
            `DELETE FROM reviews WHERE space_id = ?`,
            `DELETE FROM reservations WHERE space_id = ?`,
            `DELETE FROM parking_spaces WHERE id = ?`,
        } {
            if _, err := tx.ExecContext(ctx, q, id); err != nil {
                return classify(err)
            }
        }
        return nil
    })
}

// AddImage appends a photo URL to the space.
func (r *SpaceRepo) AddImage(ctx context.Context, id string, ownerID uint64, url string) error {
    return withTx(ctx, r.db, func(tx *sql.Tx) error {
        if _, _, err := lockSpaceTx(ctx, tx, id, ownerID); err != nil {
            return err
        }
        var raw []byte
        if err := tx.QueryRowContext(ctx, `SELECT images FROM parking_spaces WHERE id = ?`, id).Scan(&raw); err != nil {
            return classify(err)
        }
        var imgs []string
        if err := decodeJSON(raw, &imgs); err != nil {
            return err
        }
        enc, err := encodeJSON(append(imgs, url))
        if err != nil {
            return err
        }
        _, err = tx.ExecContext(ctx, `UPDATE parking_spaces SET images = ?, updated_at = ? WHERE id = ?`, enc, time.Now().UTC(), id)
        return classify(err)
    })
}

// NormalizePage applies defaults (page 1, 20 per page, max 100).
func NormalizePage(page, size int) (int, int) {
    if page < 1 {
        page = 1
    }
    if size <= 0 {
        size = 20
    }
    if size > 100 {
        size = 100
    }
    return page, size
}
