package inventory

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestComputeTotalAvailable(t *testing.T) {
    total, err := ComputeTotalAvailable(map[string]int{"Car": 7, "Bike": 3})
    require.NoError(t, err)
    assert.Equal(t, 10, total)

    total, err = ComputeTotalAvailable(nil)
    require.NoError(t, err)
    assert.Equal(t, 0, total)

    _, err = ComputeTotalAvailable(map[string]int{"Car": -1})
    assert.ErrorIs(t, err, ErrNegativeCount)
}

func TestValidateAgainstCapacity(t *testing.T) {
    assert.NoError(t, ValidateAgainstCapacity(10, 10))
    assert.ErrorIs(t, ValidateAgainstCapacity(11, 10), ErrCapacityExceeded)
}

func TestApplyDelta(t *testing.T) {
    cases := []struct {
        name                     string
        current, delta, capacity int
        want                     int
        wantErr                  bool
    }{
        {"consume", 5, -1, 5, 4, false},
        {"release", 4, 1, 5, 5, false},
        {"release clamps at capacity", 5, 1, 5, 5, false},
        {"consume last unit", 1, -1, 5, 0, false},
        {"consume below zero", 0, -1, 5, 0, true},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            got, err := ApplyDelta(tc.current, tc.delta, tc.capacity)
            if tc.wantErr {
                assert.ErrorIs(t, err, ErrInvariantViolation)
                assert.Equal(t, tc.current, got)
                return
            }
            require.NoError(t, err)
            assert.Equal(t, tc.want, got)
        })
    }
}

func TestValidateVehicleCounts(t *testing.T) {
    types := []string{"Car", "Bike"}

    err := ValidateVehicleCounts(10, types, map[string]int{"Car": 7, "Bike": 4})
    assert.ErrorIs(t, err, ErrCapacityExceeded)

    assert.NoError(t, ValidateVehicleCounts(10, types, map[string]int{"Car": 7, "Bike": 3}))
    assert.NoError(t, ValidateVehicleCounts(10, nil, nil))

    assert.ErrorIs(t, ValidateVehicleCounts(0, types, nil), ErrInvalidCapacity)
    assert.ErrorIs(t, ValidateVehicleCounts(10, types, map[string]int{"Truck": 1}), ErrUnknownVehicleType)
    assert.ErrorIs(t, ValidateVehicleCounts(10, types, map[string]int{"Car": -2}), ErrNegativeCount)
}

func TestOutstanding(t *testing.T) {
    assert.Equal(t, 3, Outstanding(7, 10))
    assert.Equal(t, 0, Outstanding(10, 10))
    assert.Equal(t, 0, Outstanding(12, 10))
}
