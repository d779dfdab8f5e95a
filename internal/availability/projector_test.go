package availability

import (
    "testing"

    "github.com/stretchr/testify/assert"

    "github.com/iliyamo/parking-space-reservation/internal/model"
)

func TestStatusOf(t *testing.T) {
    assert.Equal(t, Full, StatusOf(0, 10))
    assert.Equal(t, Limited, StatusOf(1, 10))
    assert.Equal(t, Limited, StatusOf(3, 10))
    assert.Equal(t, Available, StatusOf(4, 10))
    assert.Equal(t, Available, StatusOf(10, 10))
    // 30% of 5 is 1.5: one unit left is Limited, two is not.
    assert.Equal(t, Limited, StatusOf(1, 5))
    assert.Equal(t, Available, StatusOf(2, 5))
}

func TestBreakdownKeepsOrderAndDefaultsMissing(t *testing.T) {
    got := Breakdown([]string{"Car", "Bike", "Truck"}, map[string]int{"Bike": 4, "Car": 6})
    assert.Equal(t, []TypeCount{
        {VehicleType: "Car", Count: 6},
        {VehicleType: "Bike", Count: 4},
        {VehicleType: "Truck", Count: 0},
    }, got)

    assert.Empty(t, Breakdown(nil, map[string]int{"Car": 1}))
}

func TestParseFlatCharge(t *testing.T) {
    cases := map[string]int64{
        "":                        0,
        "no extra fees":           0,
        "Rs 20 overnight":         2000,
        "₹15.50 cleaning, 10 tip": 1550,
        "40":                      4000,
        "fee: 7.5":                750,
    }
    for in, want := range cases {
        assert.Equal(t, want, ParseFlatCharge(in), in)
    }
}

func TestTotalAmount(t *testing.T) {
    assert.Equal(t, int64(10000), TotalAmount(2, 5000, 0))
    assert.Equal(t, int64(12000), TotalAmount(2, 5000, ParseFlatCharge("20 flat")))
}

func TestProject(t *testing.T) {
    s := &model.ParkingSpace{
        Capacity:          10,
        AvailableSpaces:   3,
        VehicleTypes:      []string{"Car"},
        VehicleCounts:     map[string]int{"Car": 10},
        AdditionalCharges: "5 per night",
    }
    p := Project(s)
    assert.Equal(t, Limited, p.Status)
    assert.Equal(t, 3, p.Available)
    assert.Equal(t, 10, p.Capacity)
    assert.Equal(t, []TypeCount{{VehicleType: "Car", Count: 10}}, p.Breakdown)
    assert.Equal(t, int64(500), p.FlatChargeCents)
}
