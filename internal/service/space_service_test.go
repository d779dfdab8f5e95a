package service

import (
    "context"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/parking-space-reservation/internal/availability"
    "github.com/iliyamo/parking-space-reservation/internal/inventory"
    "github.com/iliyamo/parking-space-reservation/internal/model"
    "github.com/iliyamo/parking-space-reservation/internal/repository"
    "github.com/iliyamo/parking-space-reservation/internal/repository/memory"
)

func newSpaceService(t *testing.T) (*SpaceService, *ReservationService, *memory.Store) {
    t.Helper()
    st := memory.New()
    spaces := NewSpaceService(SpaceDeps{Spaces: st.Spaces, Reviews: st.Reviews})
    res := NewReservationService(ReservationDeps{Spaces: st.Spaces, Reservations: st.Reservations})
    return spaces, res, st
}

func lotInput() SpaceInput {
    return SpaceInput{
        Name: "Harbour Garage", Address: "12 Quay Rd", City: "Dublin",
        PricePerHourCents: 5000, Amenities: []string{"CCTV", "CCTV", " EV charging "},
        AcceptsCash: true,
    }
}

func TestCreateSpaceStartsFullyAvailable(t *testing.T) {
    svc, _, _ := newSpaceService(t)

    v, err := svc.Create(context.Background(), owner, lotInput(), model.InventoryUpdate{
        Capacity: 10, VehicleTypes: []string{"Car", "Bike"}, VehicleCounts: map[string]int{"Car": 7, "Bike": 3},
    })
    require.NoError(t, err)
    assert.NotEmpty(t, v.ID)
    assert.Equal(t, 10, v.AvailableSpaces)
    assert.True(t, v.IsActive)
    assert.Equal(t, []string{"CCTV", "EV charging"}, v.Amenities)
    assert.Equal(t, availability.Available, v.Availability.Status)
}

func TestCreateSpaceRejectsOversubscribedVehicleCounts(t *testing.T) {
    svc, _, st := newSpaceService(t)

    _, err := svc.Create(context.Background(), owner, lotInput(), model.InventoryUpdate{
        Capacity: 10, VehicleTypes: []string{"Car", "Bike"}, VehicleCounts: map[string]int{"Car": 7, "Bike": 4},
    })
    var ve *ValidationError
    require.ErrorAs(t, err, &ve)
    assert.Equal(t, "vehicle_counts", ve.Field)
    assert.ErrorIs(t, err, inventory.ErrCapacityExceeded)

    list, err := st.Spaces.ListByOwner(context.Background(), owner.UserID)
    require.NoError(t, err)
    assert.Empty(t, list)
}

func TestOnlyOwnersManageSpaces(t *testing.T) {
    svc, _, _ := newSpaceService(t)

    _, err := svc.Create(context.Background(), driver, lotInput(), model.InventoryUpdate{Capacity: 3})
    assert.ErrorIs(t, err, repository.ErrForbidden)

    v, err := svc.Create(context.Background(), owner, lotInput(), model.InventoryUpdate{Capacity: 3})
    require.NoError(t, err)

    rival := model.Identity{UserID: 99, Role: model.RoleOwner}
    assert.ErrorIs(t, svc.SetActive(context.Background(), rival, v.ID, false), repository.ErrForbidden)
    assert.ErrorIs(t, svc.Delete(context.Background(), rival, v.ID), repository.ErrForbidden)
}

func TestDeleteSpaceWithActiveReservation(t *testing.T) {
    svc, res, st := newSpaceService(t)
    v, err := svc.Create(context.Background(), owner, lotInput(), model.InventoryUpdate{Capacity: 5})
    require.NoError(t, err)

    in := bookingInput(model.PaymentCash)
    in.SpaceID = v.ID
    in.VehicleType = "Van"
    booked, err := res.Create(context.Background(), driver, in)
    require.NoError(t, err)

    err = svc.Delete(context.Background(), owner, v.ID)
    var active *repository.ActiveReservationsError
    require.ErrorAs(t, err, &active)
    assert.Equal(t, 1, active.Count)
    assert.ErrorIs(t, err, repository.ErrHasActiveReservations)

    sp, err := st.Spaces.GetByID(context.Background(), v.ID)
    require.NoError(t, err)
    assert.Equal(t, 4, sp.AvailableSpaces)

    _, err = res.Cancel(context.Background(), driver, booked.Reservation.ID)
    require.NoError(t, err)
    require.NoError(t, svc.Delete(context.Background(), owner, v.ID))
    _, err = st.Spaces.GetByID(context.Background(), v.ID)
    assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpdateInventoryKeepsOutstandingReservations(t *testing.T) {
    svc, res, _ := newSpaceService(t)
    v, err := svc.Create(context.Background(), owner, lotInput(), model.InventoryUpdate{Capacity: 5})
    require.NoError(t, err)

    in := bookingInput(model.PaymentCash)
    in.SpaceID = v.ID
    for i := 0; i < 2; i++ {
        _, err := res.Create(context.Background(), driver, in)
        require.NoError(t, err)
    }

    got, err := svc.UpdateInventory(context.Background(), owner, v.ID, model.InventoryUpdate{Capacity: 8})
    require.NoError(t, err)
    assert.Equal(t, 8, got.Capacity)
    assert.Equal(t, 6, got.AvailableSpaces)

    _, err = svc.UpdateInventory(context.Background(), owner, v.ID, model.InventoryUpdate{Capacity: 1})
    var ve *ValidationError
    require.ErrorAs(t, err, &ve)
    assert.ErrorIs(t, err, repository.ErrCapacityBelowOutstanding)

    _, err = svc.UpdateInventory(context.Background(), owner, v.ID, model.InventoryUpdate{Capacity: 0})
    assert.ErrorIs(t, err, inventory.ErrInvalidCapacity)
}

func TestInactiveSpaceHiddenFromOthers(t *testing.T) {
    svc, _, _ := newSpaceService(t)
    v, err := svc.Create(context.Background(), owner, lotInput(), model.InventoryUpdate{Capacity: 2})
    require.NoError(t, err)
    require.NoError(t, svc.SetActive(context.Background(), owner, v.ID, false))

    _, err = svc.Get(context.Background(), driver.UserID, v.ID)
    assert.ErrorIs(t, err, repository.ErrNotFound)
    got, err := svc.Get(context.Background(), owner.UserID, v.ID)
    require.NoError(t, err)
    assert.False(t, got.IsActive)

    list, total, err := svc.Search(context.Background(), model.SpaceQuery{})
    require.NoError(t, err)
    assert.Zero(t, total)
    assert.Empty(t, list)
}

func TestReviewsAreOnePerDriver(t *testing.T) {
    spaces, _, st := newSpaceService(t)
    reviews := NewReviewService(st.Spaces, st.Reviews, 0)
    v, err := spaces.Create(context.Background(), owner, lotInput(), model.InventoryUpdate{Capacity: 2})
    require.NoError(t, err)

    _, err = reviews.Upsert(context.Background(), driver, v.ID, 2, "tight ramp")
    require.NoError(t, err)
    _, err = reviews.Upsert(context.Background(), driver, v.ID, 4, "")
    require.NoError(t, err)
    _, err = reviews.Upsert(context.Background(), other, v.ID, 5, "great")
    require.NoError(t, err)

    _, err = reviews.Upsert(context.Background(), owner, v.ID, 5, "")
    assert.ErrorIs(t, err, repository.ErrForbidden)
    _, err = reviews.Upsert(context.Background(), driver, v.ID, 6, "")
    var ve *ValidationError
    assert.ErrorAs(t, err, &ve)

    list, err := reviews.List(context.Background(), v.ID, 1, 10)
    require.NoError(t, err)
    assert.Len(t, list, 2)

    got, err := spaces.Get(context.Background(), 0, v.ID)
    require.NoError(t, err)
    require.NotNil(t, got.Rating)
    assert.Equal(t, 2, got.Rating.Count)
    assert.InDelta(t, 4.5, got.Rating.Average, 0.001)
}
