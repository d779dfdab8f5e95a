package memory

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/parking-space-reservation/internal/model"
    "github.com/iliyamo/parking-space-reservation/internal/repository"
)

func seedSpace(t *testing.T, s *Store, capacity, available int) *model.ParkingSpace {
    t.Helper()
    sp := &model.ParkingSpace{
        ID: "space-1", OwnerID: 1, Name: "Lot", PricePerHourCents: 5000,
        Capacity: capacity, AvailableSpaces: available, IsActive: true,
    }
    require.NoError(t, s.Spaces.Create(context.Background(), sp))
    return sp
}

func newReservation(id string) *model.Reservation {
    return &model.Reservation{
        ID: id, SpaceID: "space-1", UserID: 7, ArrivalAt: time.Now().UTC(),
        DurationHours: 1, PaymentMethod: model.PaymentCash, Status: model.StatusConfirmed,
    }
}

func TestCreateConsumesAndRefusesWhenFull(t *testing.T) {
    ctx := context.Background()
    s := New()
    seedSpace(t, s, 2, 1)

    require.NoError(t, s.Reservations.Create(ctx, newReservation("r1")))
    err := s.Reservations.Create(ctx, newReservation("r2"))
    assert.ErrorIs(t, err, repository.ErrNoCapacity)

    sp, err := s.Spaces.GetByID(ctx, "space-1")
    require.NoError(t, err)
    assert.Equal(t, 0, sp.AvailableSpaces)
    _, err = s.Reservations.GetByID(ctx, "r2")
    assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestConcurrentCreatesNeverOversell(t *testing.T) {
    ctx := context.Background()
    s := New()
    seedSpace(t, s, 10, 3)

    var (
        wg       sync.WaitGroup
        mu       sync.Mutex
        ok, full int
    )
    for i := 0; i < 20; i++ {
        wg.Add(1)
        go func(i int) {
            defer wg.Done()
            err := s.Reservations.Create(ctx, newReservation(fmt.Sprintf("r%d", i)))
            mu.Lock()
            defer mu.Unlock()
            switch {
            case err == nil:
                ok++
            case errors.Is(err, repository.ErrNoCapacity):
                full++
            default:
                t.Errorf("unexpected error: %v", err)
            }
        }(i)
    }
    wg.Wait()

    assert.Equal(t, 3, ok)
    assert.Equal(t, 17, full)
    sp, _ := s.Spaces.GetByID(ctx, "space-1")
    assert.Equal(t, 0, sp.AvailableSpaces)
}

func TestTransitionIsGuardedAndReleasesOnce(t *testing.T) {
    ctx := context.Background()
    s := New()
    seedSpace(t, s, 5, 5)
    require.NoError(t, s.Reservations.Create(ctx, newReservation("r1")))

    cancel := model.Transition{
        ReservationID: "r1", ActorID: 7,
        From: []model.ReservationStatus{model.StatusPending, model.StatusConfirmed},
        To:   model.StatusCancelled, At: time.Now(), Release: true,
    }
    wrongOwner := cancel
    wrongOwner.ActorID = 8
    _, err := s.Reservations.Transition(ctx, wrongOwner)
    assert.ErrorIs(t, err, repository.ErrForbidden)

    res, err := s.Reservations.Transition(ctx, cancel)
    require.NoError(t, err)
    assert.Equal(t, model.StatusCancelled, res.Status)
    require.NotNil(t, res.CancelledAt)

    _, err = s.Reservations.Transition(ctx, cancel)
    assert.ErrorIs(t, err, repository.ErrInvalidTransition)

    sp, _ := s.Spaces.GetByID(ctx, "space-1")
    assert.Equal(t, 5, sp.AvailableSpaces)
}

func TestDeleteSpaceBlockedByActiveReservations(t *testing.T) {
    ctx := context.Background()
    s := New()
    seedSpace(t, s, 5, 5)
    require.NoError(t, s.Reservations.Create(ctx, newReservation("r1")))

    err := s.Spaces.Delete(ctx, "space-1", 1)
    var active *repository.ActiveReservationsError
    require.ErrorAs(t, err, &active)
    assert.Equal(t, 1, active.Count)
    assert.ErrorIs(t, err, repository.ErrHasActiveReservations)

    assert.ErrorIs(t, s.Spaces.Delete(ctx, "space-1", 2), repository.ErrForbidden)

    _, err = s.Spaces.GetByID(ctx, "space-1")
    assert.NoError(t, err)
}

func TestUpdateInventoryRecomputesCounter(t *testing.T) {
    ctx := context.Background()
    s := New()
    seedSpace(t, s, 5, 5)
    require.NoError(t, s.Reservations.Create(ctx, newReservation("r1")))
    require.NoError(t, s.Reservations.Create(ctx, newReservation("r2")))

    sp, err := s.Spaces.UpdateInventory(ctx, "space-1", 1, model.InventoryUpdate{Capacity: 8})
    require.NoError(t, err)
    assert.Equal(t, 8, sp.Capacity)
    assert.Equal(t, 6, sp.AvailableSpaces)

    _, err = s.Spaces.UpdateInventory(ctx, "space-1", 1, model.InventoryUpdate{Capacity: 1})
    assert.ErrorIs(t, err, repository.ErrCapacityBelowOutstanding)
}

func TestReviewUpsertKeepsOnePerUser(t *testing.T) {
    ctx := context.Background()
    s := New()
    seedSpace(t, s, 1, 1)

    first := &model.Review{SpaceID: "space-1", UserID: 3, Rating: 2}
    require.NoError(t, s.Reviews.Upsert(ctx, first))
    second := &model.Review{SpaceID: "space-1", UserID: 3, Rating: 5, Comment: "better"}
    require.NoError(t, s.Reviews.Upsert(ctx, second))
    assert.Equal(t, first.ID, second.ID)

    list, err := s.Reviews.ListBySpace(ctx, "space-1", 10, 0)
    require.NoError(t, err)
    require.Len(t, list, 1)
    assert.Equal(t, 5, list[0].Rating)

    sum, err := s.Reviews.Summary(ctx, "space-1")
    require.NoError(t, err)
    assert.Equal(t, model.RatingSummary{Average: 5, Count: 1}, sum)
}

func TestCancelledContextReportsTimeout(t *testing.T) {
    s := New()
    ctx, cancel := context.WithCancel(context.Background())
    cancel()
    _, err := s.Spaces.GetByID(ctx, "space-1")
    assert.ErrorIs(t, err, repository.ErrPersistenceTimeout)
}
