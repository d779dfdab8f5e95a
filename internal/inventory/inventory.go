// Package inventory holds the capacity arithmetic for a parking space.  The
// functions here never touch the database; repositories call them to decide
// whether a counter change is legal before writing it.
package inventory

import (
    "errors"
    "fmt"
)

var (
    // ErrNegativeCount is returned when a vehicle-type count is below zero.
    ErrNegativeCount = errors.New("vehicle count must not be negative")
    // ErrCapacityExceeded is returned when sub-capacities add up to more
    // than the space's total capacity.
    ErrCapacityExceeded = errors.New("vehicle counts exceed capacity")
    // ErrInvalidCapacity is returned for a zero or negative capacity.
    ErrInvalidCapacity = errors.New("capacity must be a positive integer")
    // ErrUnknownVehicleType is returned when a count references a label
    // missing from the space's vehicle type list.
    ErrUnknownVehicleType = errors.New("vehicle count references unknown vehicle type")
    // ErrInvariantViolation means a release or consume would push the
    // availability counter below zero.  It always indicates an accounting
    // bug elsewhere (double cancel, double release).
    ErrInvariantViolation = errors.New("inventory invariant violation")
)

// ComputeTotalAvailable sums the per-vehicle-type counts.  Negative entries
// are rejected rather than silently added.
func ComputeTotalAvailable(counts map[string]int) (int, error) {
    total := 0
    for label, n := range counts {
        if n < 0 {
            return 0, fmt.Errorf("%w: %s=%d", ErrNegativeCount, label, n)
        }
        total += n
    }
    return total, nil
}

// ValidateAgainstCapacity fails when total exceeds capacity.
func ValidateAgainstCapacity(total, capacity int) error {
    if total > capacity {
        return fmt.Errorf("%w: %d > %d", ErrCapacityExceeded, total, capacity)
    }
    return nil
}

// ApplyDelta returns current+delta bounded to [0, capacity].  Overshooting
// capacity is clamped; undershooting zero is an error.
func ApplyDelta(current, delta, capacity int) (int, error) {
    next := current + delta
    if next < 0 {
        return current, fmt.Errorf("%w: %d%+d below zero", ErrInvariantViolation, current, delta)
    }
    if next > capacity {
        next = capacity
    }
    return next, nil
}

// ValidateVehicleCounts checks an owner's inventory edit before anything is
// written: capacity must be positive, every count must belong to a declared
// vehicle type and the counts must fit within capacity.
func ValidateVehicleCounts(capacity int, types []string, counts map[string]int) error {
    if capacity <= 0 {
        return ErrInvalidCapacity
    }
    if len(counts) > 0 {
        declared := make(map[string]bool, len(types))
        for _, t := range types {
            declared[t] = true
        }
        for label := range counts {
            if !declared[label] {
                return fmt.Errorf("%w: %s", ErrUnknownVehicleType, label)
            }
        }
    }
    total, err := ComputeTotalAvailable(counts)
    if err != nil {
        return err
    }
    return ValidateAgainstCapacity(total, capacity)
}

// Outstanding returns how many units are currently consumed given the
// capacity and the live counter.
func Outstanding(available, capacity int) int {
    if available > capacity {
        return 0
    }
    return capacity - available
}
