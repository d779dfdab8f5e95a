package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/iliyamo/parking-space-reservation/internal/model"
)

// ReservationRepo persists reservations and keeps the owning space's
// availability counter in step with them.  Every method that changes a
// reservation's capacity footprint runs in one transaction together with
// the counter update.
type ReservationRepo struct {
    db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, space_id, user_id, user_email, arrival_at, duration_hours, total_amount_cents, payment_method, vehicle_type, plate_number, contact_phone, instructions, status, payment_ref, cancelled_at, created_at, updated_at`

const (
    consumeUnitSQL = `UPDATE parking_spaces SET available_spaces = available_spaces - 1 WHERE id = ? AND is_active = 1 AND available_spaces > 0`
    releaseUnitSQL = `UPDATE parking_spaces SET available_spaces = LEAST(available_spaces + 1, capacity) WHERE id = ?`
)

func scanReservation(row rowScanner) (*model.Reservation, error) {
    var (
        res          model.Reservation
        instructions sql.NullString
        paymentRef   sql.NullString
        cancelledAt  sql.NullTime
    )
    err := row.Scan(&res.ID, &res.SpaceID, &res.UserID, &res.UserEmail, &res.ArrivalAt, &res.DurationHours,
        &res.TotalAmountCents, &res.PaymentMethod, &res.VehicleType, &res.PlateNumber, &res.ContactPhone,
        &instructions, &res.Status, &paymentRef, &cancelledAt, &res.CreatedAt, &res.UpdatedAt)
    if err != nil {
        return nil, err
    }
    res.Instructions = instructions.String
    if paymentRef.Valid {
        pr := paymentRef.String
        res.PaymentRef = &pr
    }
    if cancelledAt.Valid {
        t := cancelledAt.Time
        res.CancelledAt = &t
    }
    return &res, nil
}

// Create consumes one unit of the space and inserts the reservation in a
// single transaction.  The conditional UPDATE is the only serialisation
// point: when it matches no row nothing is written and the reason is
// reported as ErrNotFound, ErrSpaceInactive or ErrNoCapacity.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
    now := time.Now().UTC().Truncate(time.Second)
    return withTx(ctx, r.db, func(tx *sql.Tx) error {
        result, err := tx.ExecContext(ctx, consumeUnitSQL, res.SpaceID)
        if err != nil {
            return classify(err)
        }
        n, err := result.RowsAffected()
        if err != nil {
            return classify(err)
        }
        if n == 0 {
            return whyNotConsumed(ctx, tx, res.SpaceID)
        }
        const q = `INSERT INTO reservations (` + reservationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
        _, err = tx.ExecContext(ctx, q, res.ID, res.SpaceID, res.UserID, res.UserEmail, res.ArrivalAt.UTC(),
            res.DurationHours, res.TotalAmountCents, res.PaymentMethod, res.VehicleType, res.PlateNumber,
            res.ContactPhone, nullString(res.Instructions), res.Status, res.PaymentRef, res.CancelledAt, now, now)
        if err != nil {
            return classify(err)
        }
        res.CreatedAt, res.UpdatedAt = now, now
        return nil
    })
}

func whyNotConsumed(ctx context.Context, tx *sql.Tx, spaceID string) error {
    var active bool
    err := tx.QueryRowContext(ctx, `SELECT is_active FROM parking_spaces WHERE id = ?`, spaceID).Scan(&active)
    if err != nil {
        return classify(err)
    }
    if !active {
        return ErrSpaceInactive
    }
    return ErrNoCapacity
}

func nullString(s string) sql.NullString {
    return sql.NullString{String: s, Valid: s != ""}
}

// GetByID returns one reservation or ErrNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
    res, err := scanReservation(r.db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id))
    if err != nil {
        return nil, classify(err)
    }
    return res, nil
}

// ListByUser returns a user's reservations, newest first.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
    return r.list(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
}

// ListBySpace returns every reservation of a space ordered by arrival.
func (r *ReservationRepo) ListBySpace(ctx context.Context, spaceID string) ([]model.Reservation, error) {
    return r.list(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE space_id = ? ORDER BY arrival_at, id`, spaceID)
}

// ListElapsed returns confirmed reservations whose booked window ended at
// or before now.
func (r *ReservationRepo) ListElapsed(ctx context.Context, now time.Time, limit int) ([]model.Reservation, error) {
    return r.list(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE status = 'confirmed' AND DATE_ADD(arrival_at, INTERVAL duration_hours HOUR) <= ? ORDER BY arrival_at LIMIT ?`,
        now.UTC(), limit)
}

// ListStalePending returns prepaid reservations still waiting for payment
// that were created before the cutoff.
func (r *ReservationRepo) ListStalePending(ctx context.Context, before time.Time, limit int) ([]model.Reservation, error) {
    return r.list(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE status = 'pending' AND payment_method = 'prepaid' AND created_at < ? ORDER BY created_at LIMIT ?`,
        before.UTC(), limit)
}

func (r *ReservationRepo) list(ctx context.Context, q string, args ...any) ([]model.Reservation, error) {
    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, classify(err)
    }
    defer rows.Close()
    out := []model.Reservation{}
    for rows.Next() {
        res, err := scanReservation(rows)
        if err != nil {
            return nil, classify(err)
        }
        out = append(out, *res)
    }
    if err := rows.Err(); err != nil {
        return nil, classify(err)
    }
    return out, nil
}

// Transition applies t under a row lock on the reservation.  Ownership and
// the source status are re-checked after the lock is taken so two
// concurrent cancels cannot both release a unit.
func (r *ReservationRepo) Transition(ctx context.Context, t model.Transition) (*model.Reservation, error) {
    var out *model.Reservation
    err := withTx(ctx, r.db, func(tx *sql.Tx) error {
        res, err := scanReservation(tx.QueryRowContext(ctx,
            `SELECT `+reservationColumns+` FROM reservations WHERE id = ? FOR UPDATE`, t.ReservationID))
        if err != nil {
            return classify(err)
        }
        if t.ActorID != 0 && res.UserID != t.ActorID {
            return ErrForbidden
        }
        if !t.Allows(res.Status) {
            return ErrInvalidTransition
        }
        at := t.At.UTC().Truncate(time.Second)
        var cancelledAt *time.Time
        if t.To == model.StatusCancelled {
            cancelledAt = &at
        }
        _, err = tx.ExecContext(ctx,
            `UPDATE reservations SET status = ?, cancelled_at = COALESCE(?, cancelled_at), payment_ref = COALESCE(?, payment_ref), updated_at = ? WHERE id = ?`,
            t.To, cancelledAt, t.PaymentRef, at, res.ID)
        if err != nil {
            return classify(err)
        }
        if t.Release {
            if _, err := tx.ExecContext(ctx, releaseUnitSQL, res.SpaceID); err != nil {
                return classify(err)
            }
        }
        res.Status = t.To
        if cancelledAt != nil {
            res.CancelledAt = cancelledAt
        }
        if t.PaymentRef != nil {
            res.PaymentRef = t.PaymentRef
        }
        res.UpdatedAt = at
        out = res
        return nil
    })
    if err != nil {
        return nil, err
    }
    return out, nil
}

// Delete hard-removes a cancelled reservation owned by actorID.  The unit
// was already released at cancel time so the counter is untouched.
func (r *ReservationRepo) Delete(ctx context.Context, id string, actorID uint64) error {
    return withTx(ctx, r.db, func(tx *sql.Tx) error {
        var (
            owner  uint64
            status model.ReservationStatus
        )
        err := tx.QueryRowContext(ctx, `SELECT user_id, status FROM reservations WHERE id = ? FOR UPDATE`, id).Scan(&owner, &status)
        if err != nil {
            return classify(err)
        }
        if owner != actorID {
            return ErrForbidden
        }
        if status != model.StatusCancelled {
            return ErrInvalidTransition
        }
        _, err = tx.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
        return classify(err)
    })
}

// SetPaymentRef records the processor reference on a pending reservation.
func (r *ReservationRepo) SetPaymentRef(ctx context.Context, id, ref string) error {
    _, err := r.db.ExecContext(ctx, `UPDATE reservations SET payment_ref = ?, updated_at = ? WHERE id = ?`, ref, time.Now().UTC(), id)
    return classify(err)
}
