// Package repository contains shared sentinel errors returned by the data
// access layer.  Both the MySQL repositories and the in-memory store return
// these so that handlers can map them to HTTP responses without knowing the
// backing store.
package repository

import (
    "context"
    "database/sql"
    "database/sql/driver"
    "errors"
    "fmt"
    "net"

    "github.com/go-sql-driver/mysql"

    "github.com/iliyamo/parking-space-reservation/internal/inventory"
)

// ErrForbidden indicates that the caller does not own the resource.
var ErrForbidden = errors.New("forbidden")

// ErrConflict indicates a uniqueness conflict on write.
var ErrConflict = errors.New("conflict")

// ErrNotFound indicates that the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrNoCapacity is returned when a space has no unit left to reserve.
var ErrNoCapacity = errors.New("no capacity available")

// ErrSpaceInactive is returned when booking a space that was deactivated.
var ErrSpaceInactive = errors.New("space is not accepting reservations")

// ErrInvalidTransition is returned when a reservation is not in a status
// that allows the requested change.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrHasActiveReservations is matched by *ActiveReservationsError.
var ErrHasActiveReservations = errors.New("space has active reservations")

// ErrCapacityBelowOutstanding is returned when an owner shrinks capacity
// below the number of units already reserved.
var ErrCapacityBelowOutstanding = errors.New("capacity below outstanding reservations")

// ErrPersistenceTimeout and ErrPersistenceUnavailable are retryable.
var (
    ErrPersistenceTimeout     = errors.New("persistence timeout")
    ErrPersistenceUnavailable = errors.New("persistence unavailable")
)

// ActiveReservationsError carries the number of pending or confirmed
// reservations that block a space deletion.
type ActiveReservationsError struct {
    Count int
}

func (e *ActiveReservationsError) Error() string {
    return fmt.Sprintf("space has %d active reservation(s)", e.Count)
}

// Is makes errors.Is(err, ErrHasActiveReservations) true.
func (e *ActiveReservationsError) Is(target error) bool { return target == ErrHasActiveReservations }

// Retryable reports whether err is a transient persistence failure.
func Retryable(err error) bool {
    return errors.Is(err, ErrPersistenceTimeout) || errors.Is(err, ErrPersistenceUnavailable)
}

// classify wraps driver-level failures into the persistence sentinels and
// leaves domain errors untouched.
func classify(err error) error {
    if err == nil {
        return nil
    }
    if errors.Is(err, sql.ErrNoRows) {
        return ErrNotFound
    }
    if errors.Is(err, context.DeadlineExceeded) {
        return fmt.Errorf("%w: %v", ErrPersistenceTimeout, err)
    }
    if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone) {
        return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
    }
    var me *mysql.MySQLError
    if errors.As(err, &me) {
        switch me.Number {
        case 1062: // duplicate entry
            return fmt.Errorf("%w: %v", ErrConflict, err)
        case 3819: // check constraint violated
            return fmt.Errorf("%w: %v", inventory.ErrInvariantViolation, err)
        case 1205: // lock wait timeout
            return fmt.Errorf("%w: %v", ErrPersistenceTimeout, err)
        case 1213, 1040, 2006, 2013: // deadlock, too many connections, gone away, lost
            return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
        }
        return err
    }
    var ne net.Error
    if errors.As(err, &ne) {
        if ne.Timeout() {
            return fmt.Errorf("%w: %v", ErrPersistenceTimeout, err)
        }
        return fmt.Errorf("%w: %v", ErrPersistenceUnavailable, err)
    }
    return err
}
