package service

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
    "github.com/iliyamo/parking-space-reservation/internal/payment"
    "github.com/iliyamo/parking-space-reservation/internal/queue"
    "github.com/iliyamo/parking-space-reservation/internal/repository"
    "github.com/iliyamo/parking-space-reservation/internal/repository/memory"
)

var (
    owner  = model.Identity{UserID: 1, Email: "owner@example.com", Role: model.RoleOwner}
    driver = model.Identity{UserID: 7, Email: "driver@example.com", Role: model.RoleDriver}
    other  = model.Identity{UserID: 8, Email: "other@example.com", Role: model.RoleDriver}
)

type fakeGateway struct {
    mu        sync.Mutex
    intentErr error
    refundErr error
    intents   int
    refunds   []string
}

func (g *fakeGateway) CreateIntent(_ context.Context, r *model.Reservation, _ *model.ParkingSpace) (payment.Handle, error) {
    g.mu.Lock()
    defer g.mu.Unlock()
    if g.intentErr != nil {
        return payment.Handle{}, g.intentErr
    }
    g.intents++
    return payment.Handle{Reference: "pi_" + r.ID, ClientSecret: "secret_" + r.ID}, nil
}

func (g *fakeGateway) Refund(_ context.Context, ref string) error {
    g.mu.Lock()
    defer g.mu.Unlock()
    if g.refundErr != nil {
        return g.refundErr
    }
    g.refunds = append(g.refunds, ref)
    return nil
}

type fakePublisher struct {
    mu     sync.Mutex
    events []queue.ReservationEvent
}

func (p *fakePublisher) Publish(_ context.Context, ev queue.ReservationEvent) error {
    p.mu.Lock()
    defer p.mu.Unlock()
    p.events = append(p.events, ev)
    return nil
}

func (p *fakePublisher) types() []string {
    p.mu.Lock()
    defer p.mu.Unlock()
    out := make([]string, 0, len(p.events))
    for _, ev := range p.events {
        out = append(out, ev.Type)
    }
    return out
}

type countingCache struct{ n int }

func (c *countingCache) Invalidate(context.Context) error { c.n++; return nil }

type fixture struct {
    store  *memory.Store
    svc    *ReservationService
    gw     *fakeGateway
    events *fakePublisher
    cache  *countingCache
}

func newFixture(t *testing.T) *fixture {
    t.Helper()
    st := memory.New()
    f := &fixture{store: st, gw: &fakeGateway{}, events: &fakePublisher{}, cache: &countingCache{}}
    f.svc = NewReservationService(ReservationDeps{
        Spaces:       st.Spaces,
        Reservations: st.Reservations,
        Payments:     f.gw,
        Events:       f.events,
        Cache:        f.cache,
    })
    return f
}

func (f *fixture) seed(t *testing.T, capacity, available int) *model.ParkingSpace {
    t.Helper()
    sp := &model.ParkingSpace{
        ID: "space-1", OwnerID: owner.UserID, Name: "Central Lot", Address: "1 Main St",
        PricePerHourCents: 5000, Capacity: capacity, AvailableSpaces: available,
        VehicleTypes: []string{"Car"}, VehicleCounts: map[string]int{"Car": capacity},
        AcceptsCash: true, IsActive: true,
    }
    require.NoError(t, f.store.Spaces.Create(context.Background(), sp))
    return sp
}

func (f *fixture) available(t *testing.T) int {
    t.Helper()
    sp, err := f.store.Spaces.GetByID(context.Background(), "space-1")
    require.NoError(t, err)
    return sp.AvailableSpaces
}

func bookingInput(method model.PaymentMethod) CreateReservationInput {
    return CreateReservationInput{
        SpaceID:       "space-1",
        ArrivalAt:     time.Now().UTC().Add(2 * time.Hour),
        DurationHours: 2,
        PaymentMethod: method,
        VehicleType:   "Car",
        PlateNumber:   "ab 123",
        ContactPhone:  "+15550100",
    }
}

func TestCreateConsumesOneUnitAndPricesTheStay(t *testing.T) {
    f := newFixture(t)
    f.seed(t, 5, 5)

    out, err := f.svc.Create(context.Background(), driver, bookingInput(model.PaymentCash))
    require.NoError(t, err)

    res := out.Reservation
    assert.Equal(t, model.StatusConfirmed, res.Status)
    assert.EqualValues(t, 10000, res.TotalAmountCents)
    assert.Equal(t, "AB 123", res.PlateNumber)
    assert.Empty(t, out.ClientSecret)
    assert.Equal(t, 4, f.available(t))
    assert.Equal(t, []string{queue.EventCreated}, f.events.types())
    assert.Equal(t, 1, f.cache.n)
}

func TestCreateAddsFlatCharge(t *testing.T) {
    f := newFixture(t)
    sp := f.seed(t, 5, 5)
    sp.AdditionalCharges = "cleaning fee 2.50"
    require.NoError(t, f.store.Spaces.UpdateDetails(context.Background(), sp))

    out, err := f.svc.Create(context.Background(), driver, bookingInput(model.PaymentCash))
    require.NoError(t, err)
    assert.EqualValues(t, 10250, out.Reservation.TotalAmountCents)
}

func TestCreateFailsWhenNoCapacity(t *testing.T) {
    f := newFixture(t)
    f.seed(t, 5, 0)

    _, err := f.svc.Create(context.Background(), driver, bookingInput(model.PaymentCash))
    assert.ErrorIs(t, err, repository.ErrNoCapacity)
    assert.Equal(t, 0, f.available(t))
    assert.Empty(t, f.events.types())
}

func TestCreateRejectsBadInputBeforeAnyWrite(t *testing.T) {
    f := newFixture(t)
    f.seed(t, 5, 5)

    cases := map[string]func(*CreateReservationInput){
        "duration":      func(in *CreateReservationInput) { in.DurationHours = 7 },
        "past arrival":  func(in *CreateReservationInput) { in.ArrivalAt = time.Now().Add(-time.Hour) },
        "method":        func(in *CreateReservationInput) { in.PaymentMethod = "card" },
        "vehicle":       func(in *CreateReservationInput) { in.VehicleType = "Truck" },
        "missing phone": func(in *CreateReservationInput) { in.ContactPhone = " " },
    }
    for name, mutate := range cases {
        t.Run(name, func(t *testing.T) {
            in := bookingInput(model.PaymentCash)
            mutate(&in)
            _, err := f.svc.Create(context.Background(), driver, in)
            var ve *ValidationError
            assert.ErrorAs(t, err, &ve)
        })
    }
    assert.Equal(t, 5, f.available(t))
}

func TestCreateRequiresIdentityAndActiveSpace(t *testing.T) {
    f := newFixture(t)
    f.seed(t, 5, 5)

    _, err := f.svc.Create(context.Background(), model.Identity{}, bookingInput(model.PaymentCash))
    assert.ErrorIs(t, err, ErrUnauthenticated)

    require.NoError(t, f.store.Spaces.SetActive(context.Background(), "space-1", owner.UserID, false))
    _, err = f.svc.Create(context.Background(), driver, bookingInput(model.PaymentCash))
    assert.ErrorIs(t, err, repository.ErrSpaceInactive)

    in := bookingInput(model.PaymentCash)
    in.SpaceID = "missing"
    _, err = f.svc.Create(context.Background(), driver, in)
    assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestConcurrentCreatesNeverExceedCapacity(t *testing.T) {
    f := newFixture(t)
    f.seed(t, 10, 4)

    var (
        wg       sync.WaitGroup
        mu       sync.Mutex
        ok, full int
    )
    for i := 0; i < 25; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            _, err := f.svc.Create(context.Background(), driver, bookingInput(model.PaymentCash))
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
        }()
    }
    wg.Wait()

    assert.Equal(t, 4, ok)
    assert.Equal(t, 21, full)
    assert.Equal(t, 0, f.available(t))
}

func TestCancelReleasesUnitOnce(t *testing.T) {
    f := newFixture(t)
    f.seed(t, 5, 5)
    out, err := f.svc.Create(context.Background(), driver, bookingInput(model.PaymentCash))
    require.NoError(t, err)
    require.Equal(t, 4, f.available(t))

    res, err := f.svc.Cancel(context.Background(), driver, out.Reservation.ID)
    require.NoError(t, err)
    assert.Equal(t, model.StatusCancelled, res.Status)
    require.NotNil(t, res.CancelledAt)
    assert.Equal(t, 5, f.available(t))

    _, err = f.svc.Cancel(context.Background(), driver, out.Reservation.ID)
    assert.ErrorIs(t, err, repository.ErrInvalidTransition)
    assert.Equal(t, 5, f.available(t))
}

func TestCancelByAnotherUserIsForbidden(t *testing.T) {
    f := newFixture(t)
    f.seed(t, 5, 5)
    out, err := f.svc.Create(context.Background(), driver, bookingInput(model.PaymentCash))
    require.NoError(t, err)

    _, err = f.svc.Cancel(context.Background(), other, out.Reservation.ID)
    assert.ErrorIs(t, err, repository.ErrForbidden)
    assert.Equal(t, 4, f.available(t))

    _, err = f.svc.Cancel(context.Background(), driver, "nope")
    assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCreateCancelRoundTripRestoresCounter(t *testing.T) {
    f := newFixture(t)
    f.seed(t, 3, 3)

    ids := make([]string, 0, 3)
    for i := 0; i < 3; i++ {
        out, err := f.svc.Create(context.Background(), driver, bookingInput(model.PaymentCash))
        require.NoError(t, err)
        ids = append(ids, out.Reservation.ID)
    }
    assert.Equal(t, 0, f.available(t))
    for _, id := range ids {
        _, err := f.svc.Cancel(context.Background(), driver, id)
        require.NoError(t, err)
    }
    assert.Equal(t, 3, f.available(t))
}

func TestDeleteOnlyCancelledReservations(t *testing.T) {
    f := newFixture(t)
    f.seed(t, 5, 5)
    out, err := f.svc.Create(context.Background(), driver, bookingInput(model.PaymentCash))
    require.NoError(t, err)
    id := out.Reservation.ID

    assert.ErrorIs(t, f.svc.Delete(context.Background(), driver, id), repository.ErrInvalidTransition)

    _, err = f.svc.Cancel(context.Background(), driver, id)
    require.NoError(t, err)
    assert.ErrorIs(t, f.svc.Delete(context.Background(), other, id), repository.ErrForbidden)
    require.NoError(t, f.svc.Delete(context.Background(), driver, id))

    _, err = f.svc.Get(context.Background(), driver, id)
    assert.ErrorIs(t, err, repository.ErrNotFound)
    assert.Equal(t, 5, f.available(t))
}

func TestGetVisibleToDriverAndSpaceOwner(t *testing.T) {
    f := newFixture(t)
    f.seed(t, 5, 5)
    out, err := f.svc.Create(context.Background(), driver, bookingInput(model.PaymentCash))
    require.NoError(t, err)

    _, err = f.svc.Get(context.Background(), driver, out.Reservation.ID)
    assert.NoError(t, err)
    _, err = f.svc.Get(context.Background(), owner, out.Reservation.ID)
    assert.NoError(t, err)
    _, err = f.svc.Get(context.Background(), other, out.Reservation.ID)
    assert.ErrorIs(t, err, repository.ErrForbidden)

    list, err := f.svc.ListForSpace(context.Background(), owner, "space-1")
    require.NoError(t, err)
    assert.Len(t, list, 1)
    _, err = f.svc.ListForSpace(context.Background(), driver, "space-1")
    assert.ErrorIs(t, err, repository.ErrForbidden)

    mine, err := f.svc.ListMine(context.Background(), driver)
    require.NoError(t, err)
    assert.Len(t, mine, 1)
}

func TestPrepaidStaysPendingUntilConfirmed(t *testing.T) {
    f := newFixture(t)
    f.seed(t, 5, 5)

    out, err := f.svc.Create(context.Background(), driver, bookingInput(model.PaymentPrepaid))
    require.NoError(t, err)
    res := out.Reservation
    assert.Equal(t, model.StatusPending, res.Status)
    assert.Equal(t, "secret_"+res.ID, out.ClientSecret)
    require.NotNil(t, res.PaymentRef)
    assert.Equal(t, 4, f.available(t))

    confirmed, err := f.svc.ConfirmPayment(context.Background(), res.ID, "pi_"+res.ID)
    require.NoError(t, err)
    assert.Equal(t, model.StatusConfirmed, confirmed.Status)

    // a repeated notification is accepted
    again, err := f.svc.ConfirmPayment(context.Background(), res.ID, "pi_"+res.ID)
    require.NoError(t, err)
    assert.Equal(t, model.StatusConfirmed, again.Status)
    assert.Equal(t, 4, f.available(t))
}

func TestPrepaidIntentFailureReleasesUnit(t *testing.T) {
    f := newFixture(t)
    f.seed(t, 5, 5)
    f.gw.intentErr = errors.New("card declined")

    _, err := f.svc.Create(context.Background(), driver, bookingInput(model.PaymentPrepaid))
    assert.ErrorIs(t, err, ErrPaymentFailed)
    assert.Equal(t, 5, f.available(t))
}

func TestFailPaymentCancelsAndIsIdempotent(t *testing.T) {
    f := newFixture(t)
    f.seed(t, 5, 5)
    out, err := f.svc.Create(context.Background(), driver, bookingInput(model.PaymentPrepaid))
    require.NoError(t, err)

    res, err := f.svc.FailPayment(context.Background(), out.Reservation.ID)
    require.NoError(t, err)
    assert.Equal(t, model.StatusCancelled, res.Status)
    assert.Equal(t, 5, f.available(t))

    _, err = f.svc.FailPayment(context.Background(), out.Reservation.ID)
    require.NoError(t, err)
    assert.Equal(t, 5, f.available(t))
}

func TestCancelConfirmedPrepaidRefunds(t *testing.T) {
    f := newFixture(t)
    f.seed(t, 5, 5)
    out, err := f.svc.Create(context.Background(), driver, bookingInput(model.PaymentPrepaid))
    require.NoError(t, err)
    id := out.Reservation.ID
    _, err = f.svc.ConfirmPayment(context.Background(), id, "pi_"+id)
    require.NoError(t, err)

    _, err = f.svc.Cancel(context.Background(), driver, id)
    require.NoError(t, err)
    assert.Equal(t, []string{"pi_" + id}, f.gw.refunds)
    assert.Equal(t, 5, f.available(t))
}

// confirmAfterRead lets a payment confirmation commit right after the first
// read of a reservation.
type confirmAfterRead struct {
    ReservationStore
    once    sync.Once
    confirm func(id string)
}

func (s *confirmAfterRead) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
    res, err := s.ReservationStore.GetByID(ctx, id)
    s.once.Do(func() { s.confirm(id) })
    return res, err
}

func TestCancelRacingConfirmationStillRefunds(t *testing.T) {
    f := newFixture(t)
    f.seed(t, 5, 5)
    out, err := f.svc.Create(context.Background(), driver, bookingInput(model.PaymentPrepaid))
    require.NoError(t, err)
    id := out.Reservation.ID

    racing := &confirmAfterRead{ReservationStore: f.store.Reservations}
    racing.confirm = func(id string) {
        _, err := f.svc.ConfirmPayment(context.Background(), id, "pi_"+id)
        require.NoError(t, err)
    }
    svc := NewReservationService(ReservationDeps{
        Spaces:       f.store.Spaces,
        Reservations: racing,
        Payments:     f.gw,
        Events:       f.events,
    })

    res, err := svc.Cancel(context.Background(), driver, id)
    require.NoError(t, err)
    assert.Equal(t, model.StatusCancelled, res.Status)
    assert.Equal(t, []string{"pi_" + id}, f.gw.refunds)
    assert.Equal(t, 5, f.available(t))
}

func TestRefundFailureAsksForSupport(t *testing.T) {
    f := newFixture(t)
    f.seed(t, 5, 5)
    out, err := f.svc.Create(context.Background(), driver, bookingInput(model.PaymentPrepaid))
    require.NoError(t, err)
    id := out.Reservation.ID
    _, err = f.svc.ConfirmPayment(context.Background(), id, "pi_"+id)
    require.NoError(t, err)
    f.gw.refundErr = errors.New("processor down")

    res, err := f.svc.Cancel(context.Background(), driver, id)
    assert.ErrorIs(t, err, ErrContactSupport)
    require.NotNil(t, res)
    assert.Equal(t, model.StatusCancelled, res.Status)
}

func TestLatePaymentForCancelledReservationIsRefunded(t *testing.T) {
    f := newFixture(t)
    f.seed(t, 5, 5)
    out, err := f.svc.Create(context.Background(), driver, bookingInput(model.PaymentPrepaid))
    require.NoError(t, err)
    id := out.Reservation.ID
    _, err = f.svc.FailPayment(context.Background(), id)
    require.NoError(t, err)

    _, err = f.svc.ConfirmPayment(context.Background(), id, "pi_"+id)
    assert.ErrorIs(t, err, repository.ErrInvalidTransition)
    assert.Equal(t, []string{"pi_" + id}, f.gw.refunds)
    assert.Equal(t, 5, f.available(t))
}

func TestConfirmUnknownReservationAsksForSupport(t *testing.T) {
    f := newFixture(t)
    _, err := f.svc.ConfirmPayment(context.Background(), "missing", "pi_1")
    assert.ErrorIs(t, err, ErrContactSupport)
}

func TestSweepCompletesElapsedAndExpiresStalePending(t *testing.T) {
    f := newFixture(t)
    f.seed(t, 5, 5)

    cash, err := f.svc.Create(context.Background(), driver, bookingInput(model.PaymentCash))
    require.NoError(t, err)
    prepaid, err := f.svc.Create(context.Background(), driver, bookingInput(model.PaymentPrepaid))
    require.NoError(t, err)
    require.Equal(t, 3, f.available(t))

    later := time.Now().UTC().Add(5 * time.Hour)
    f.svc.now = func() time.Time { return later }
    w := NewSweeper(f.svc, "", 30*time.Minute, nil)
    completed, expired := w.RunOnce(context.Background())
    assert.Equal(t, 1, completed)
    assert.Equal(t, 1, expired)

    got, err := f.store.Reservations.GetByID(context.Background(), cash.Reservation.ID)
    require.NoError(t, err)
    assert.Equal(t, model.StatusCompleted, got.Status)
    got, err = f.store.Reservations.GetByID(context.Background(), prepaid.Reservation.ID)
    require.NoError(t, err)
    assert.Equal(t, model.StatusCancelled, got.Status)
    assert.Equal(t, 5, f.available(t))

    completed, expired = w.RunOnce(context.Background())
    assert.Zero(t, completed)
    assert.Zero(t, expired)
}

type slowStore struct {
    ReservationStore
}

func (s slowStore) Create(ctx context.Context, _ *model.Reservation) error {
    <-ctx.Done()
    return fmt.Errorf("%w: %v", repository.ErrPersistenceTimeout, ctx.Err())
}

func TestStoreCallsAreBoundedByTimeout(t *testing.T) {
    st := memory.New()
    svc := NewReservationService(ReservationDeps{
        Spaces:       st.Spaces,
        Reservations: slowStore{st.Reservations},
        Timeout:      20 * time.Millisecond,
    })
    require.NoError(t, st.Spaces.Create(context.Background(), &model.ParkingSpace{
        ID: "space-1", OwnerID: 1, Name: "Lot", PricePerHourCents: 100,
        Capacity: 1, AvailableSpaces: 1, AcceptsCash: true, IsActive: true,
    }))

    start := time.Now()
    _, err := svc.Create(context.Background(), driver, bookingInput(model.PaymentCash))
    assert.ErrorIs(t, err, repository.ErrPersistenceTimeout)
    assert.True(t, repository.Retryable(err))
    assert.Less(t, time.Since(start), time.Second)
}
