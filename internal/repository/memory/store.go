// Package memory is an in-process implementation of the repository
// contracts.  One mutex guards all tables, which gives every operation the
// same all-or-nothing behaviour the MySQL repositories get from
// transactions.  It backs STORE_DRIVER=memory and the service tests.
package memory

import (
    "context"
    "sort"
    "strings"
    "sync"
    "time"

    "github.com/iliyamo/parking-space-reservation/internal/inventory"
    "github.com/iliyamo/parking-space-reservation/internal/model"
    "github.com/iliyamo/parking-space-reservation/internal/repository"
)

type state struct {
    mu           sync.Mutex
    spaces       map[string]*model.ParkingSpace
    reservations map[string]*model.Reservation
    reviews      map[reviewKey]*model.Review
    nextReviewID uint64
    users        map[uint64]*model.User
    nextUserID   uint64
    tokens       map[string]*token
}

type reviewKey struct {
    userID  uint64
    spaceID string
}

type token struct {
    userID  uint64
    expires time.Time
    revoked bool
}

// Store groups the per-table views that share one lock.
type Store struct {
    Spaces       *SpaceStore
    Reservations *ReservationStore
    Reviews      *ReviewStore
    Users        *UserStore
    Tokens       *TokenStore
}

// New returns an empty store.
func New() *Store {
    st := &state{
        spaces:       map[string]*model.ParkingSpace{},
        reservations: map[string]*model.Reservation{},
        reviews:      map[reviewKey]*model.Review{},
        users:        map[uint64]*model.User{},
        tokens:       map[string]*token{},
    }
    return &Store{
        Spaces:       &SpaceStore{st},
        Reservations: &ReservationStore{st},
        Reviews:      &ReviewStore{st},
        Users:        &UserStore{st},
        Tokens:       &TokenStore{st},
    }
}

// lock acquires the store mutex unless ctx is already done.
func (s *state) lock(ctx context.Context) error {
    if err := ctx.Err(); err != nil {
        return repository.ErrPersistenceTimeout
    }
    s.mu.Lock()
    return nil
}

func now() time.Time { return time.Now().UTC().Truncate(time.Second) }

func copySpace(sp *model.ParkingSpace) *model.ParkingSpace {
    c := *sp
    c.VehicleTypes = append([]string(nil), sp.VehicleTypes...)
    c.Amenities = append([]string(nil), sp.Amenities...)
    c.Images = append([]string(nil), sp.Images...)
    if sp.VehicleCounts != nil {
        c.VehicleCounts = make(map[string]int, len(sp.VehicleCounts))
        for k, v := range sp.VehicleCounts {
            c.VehicleCounts[k] = v
        }
    }
    return &c
}

func (s *state) activeCount(spaceID string) int {
    n := 0
    for _, r := range s.reservations {
        if r.SpaceID == spaceID && r.HoldsCapacity() {
            n++
        }
    }
    return n
}

func (s *state) ownedSpace(id string, ownerID uint64) (*model.ParkingSpace, error) {
    sp, ok := s.spaces[id]
    if !ok {
        return nil, repository.ErrNotFound
    }
    if sp.OwnerID != ownerID {
        return nil, repository.ErrForbidden
    }
    return sp, nil
}

// SpaceStore is the parking_spaces table.
type SpaceStore struct{ st *state }

func (s *SpaceStore) Create(ctx context.Context, sp *model.ParkingSpace) error {
    if err := s.st.lock(ctx); err != nil {
        return err
    }
    defer s.st.mu.Unlock()
    if _, dup := s.st.spaces[sp.ID]; dup {
        return repository.ErrConflict
    }
    t := now()
    sp.CreatedAt, sp.UpdatedAt = t, t
    s.st.spaces[sp.ID] = copySpace(sp)
    return nil
}

func (s *SpaceStore) GetByID(ctx context.Context, id string) (*model.ParkingSpace, error) {
    if err := s.st.lock(ctx); err != nil {
        return nil, err
    }
    defer s.st.mu.Unlock()
    sp, ok := s.st.spaces[id]
    if !ok {
        return nil, repository.ErrNotFound
    }
    return copySpace(sp), nil
}

func (s *SpaceStore) Search(ctx context.Context, q model.SpaceQuery) ([]model.ParkingSpace, int, error) {
    if err := s.st.lock(ctx); err != nil {
        return nil, 0, err
    }
    defer s.st.mu.Unlock()
    loc := strings.ToLower(strings.TrimSpace(q.Location))
    var matched []model.ParkingSpace
    for _, sp := range s.st.spaces {
        if !sp.IsActive {
            continue
        }
        if loc != "" && !strings.Contains(strings.ToLower(sp.Name+" "+sp.Address+" "+sp.City), loc) {
            continue
        }
        if q.MaxPriceCents > 0 && sp.PricePerHourCents > q.MaxPriceCents {
            continue
        }
        if q.VehicleType != "" && !sp.AcceptsVehicle(q.VehicleType) {
            continue
        }
        matched = append(matched, *copySpace(sp))
    }
    sort.Slice(matched, func(i, j int) bool {
        if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
            return matched[i].CreatedAt.After(matched[j].CreatedAt)
        }
        return matched[i].ID < matched[j].ID
    })
    total := len(matched)
    page, size := repository.NormalizePage(q.Page, q.PageSize)
    start := (page - 1) * size
    if start >= total {
        return []model.ParkingSpace{}, total, nil
    }
    end := start + size
    if end > total {
        end = total
    }
    return matched[start:end], total, nil
}

func (s *SpaceStore) ListByOwner(ctx context.Context, ownerID uint64) ([]model.ParkingSpace, error) {
    if err := s.st.lock(ctx); err != nil {
        return nil, err
    }
    defer s.st.mu.Unlock()
    out := []model.ParkingSpace{}
    for _, sp := range s.st.spaces {
        if sp.OwnerID == ownerID {
            out = append(out, *copySpace(sp))
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

func (s *SpaceStore) UpdateDetails(ctx context.Context, upd *model.ParkingSpace) error {
    if err := s.st.lock(ctx); err != nil {
        return err
    }
    defer s.st.mu.Unlock()
    sp, err := s.st.ownedSpace(upd.ID, upd.OwnerID)
    if err != nil {
        return err
    }
    sp.Name, sp.Address, sp.City = upd.Name, upd.Address, upd.City
    sp.PricePerHourCents = upd.PricePerHourCents
    sp.Amenities = append([]string(nil), upd.Amenities...)
    sp.AdditionalCharges = upd.AdditionalCharges
    sp.AcceptsCash = upd.AcceptsCash
    sp.UpdatedAt = now()
    return nil
}

func (s *SpaceStore) UpdateInventory(ctx context.Context, id string, ownerID uint64, upd model.InventoryUpdate) (*model.ParkingSpace, error) {
    if err := s.st.lock(ctx); err != nil {
        return nil, err
    }
    defer s.st.mu.Unlock()
    sp, err := s.st.ownedSpace(id, ownerID)
    if err != nil {
        return nil, err
    }
    outstanding := s.st.activeCount(id)
    if upd.Capacity < outstanding {
        return nil, repository.ErrCapacityBelowOutstanding
    }
    sp.Capacity = upd.Capacity
    sp.AvailableSpaces = upd.Capacity - outstanding
    sp.VehicleTypes = append([]string(nil), upd.VehicleTypes...)
    sp.VehicleCounts = map[string]int{}
    for k, v := range upd.VehicleCounts {
        sp.VehicleCounts[k] = v
    }
    sp.UpdatedAt = now()
    return copySpace(sp), nil
}

func (s *SpaceStore) SetActive(ctx context.Context, id string, ownerID uint64, active bool) error {
    if err := s.st.lock(ctx); err != nil {
        return err
    }
    defer s.st.mu.Unlock()
    sp, err := s.st.ownedSpace(id, ownerID)
    if err != nil {
        return err
    }
    sp.IsActive = active
    sp.UpdatedAt = now()
    return nil
}

func (s *SpaceStore) Delete(ctx context.Context, id string, ownerID uint64) error {
    if err := s.st.lock(ctx); err != nil {
        return err
    }
    defer s.st.mu.Unlock()
    if _, err := s.st.ownedSpace(id, ownerID); err != nil {
        return err
    }
    if n := s.st.activeCount(id); n > 0 {
        return &repository.ActiveReservationsError{Count: n}
    }
    for rid, r := range s.st.reservations {
        if r.SpaceID == id {
            delete(s.st.reservations, rid)
        }
    }
    for k := range s.st.reviews {
        if k.spaceID == id {
            delete(s.st.reviews, k)
        }
    }
    delete(s.st.spaces, id)
    return nil
}

func (s *SpaceStore) AddImage(ctx context.Context, id string, ownerID uint64, url string) error {
    if err := s.st.lock(ctx); err != nil {
        return err
    }
    defer s.st.mu.Unlock()
    sp, err := s.st.ownedSpace(id, ownerID)
    if err != nil {
        return err
    }
    sp.Images = append(sp.Images, url)
    sp.UpdatedAt = now()
    return nil
}

// ReservationStore is the reservations table.
type ReservationStore struct{ st *state }

// Create consumes a unit and stores the reservation under the same lock.
func (s *ReservationStore) Create(ctx context.Context, res *model.Reservation) error {
    if err := s.st.lock(ctx); err != nil {
        return err
    }
    defer s.st.mu.Unlock()
    sp, ok := s.st.spaces[res.SpaceID]
    if !ok {
        return repository.ErrNotFound
    }
    if !sp.IsActive {
        return repository.ErrSpaceInactive
    }
    if sp.AvailableSpaces <= 0 {
        return repository.ErrNoCapacity
    }
    if _, dup := s.st.reservations[res.ID]; dup {
        return repository.ErrConflict
    }
    next, err := inventory.ApplyDelta(sp.AvailableSpaces, -1, sp.Capacity)
    if err != nil {
        return err
    }
    sp.AvailableSpaces = next
    t := now()
    res.CreatedAt, res.UpdatedAt = t, t
    c := *res
    s.st.reservations[res.ID] = &c
    return nil
}

func (s *ReservationStore) GetByID(ctx context.Context, id string) (*model.Reservation, error) {
    if err := s.st.lock(ctx); err != nil {
        return nil, err
    }
    defer s.st.mu.Unlock()
    r, ok := s.st.reservations[id]
    if !ok {
        return nil, repository.ErrNotFound
    }
    c := *r
    return &c, nil
}

func (s *ReservationStore) filter(ctx context.Context, keep func(*model.Reservation) bool, less func(a, b *model.Reservation) bool, limit int) ([]model.Reservation, error) {
    if err := s.st.lock(ctx); err != nil {
        return nil, err
    }
    defer s.st.mu.Unlock()
    out := []model.Reservation{}
    for _, r := range s.st.reservations {
        if keep(r) {
            out = append(out, *r)
        }
    }
    sort.Slice(out, func(i, j int) bool { return less(&out[i], &out[j]) })
    if limit > 0 && len(out) > limit {
        out = out[:limit]
    }
    return out, nil
}

func (s *ReservationStore) ListByUser(ctx context.Context, userID uint64) ([]model.Reservation, error) {
    return s.filter(ctx,
        func(r *model.Reservation) bool { return r.UserID == userID },
        func(a, b *model.Reservation) bool {
            if !a.CreatedAt.Equal(b.CreatedAt) {
                return a.CreatedAt.After(b.CreatedAt)
            }
            return a.ID < b.ID
        }, 0)
}

func (s *ReservationStore) ListBySpace(ctx context.Context, spaceID string) ([]model.Reservation, error) {
    return s.filter(ctx,
        func(r *model.Reservation) bool { return r.SpaceID == spaceID },
        byArrival, 0)
}

func (s *ReservationStore) ListElapsed(ctx context.Context, at time.Time, limit int) ([]model.Reservation, error) {
    return s.filter(ctx,
        func(r *model.Reservation) bool {
            return r.Status == model.StatusConfirmed && !r.EndsAt().After(at)
        },
        byArrival, limit)
}

func (s *ReservationStore) ListStalePending(ctx context.Context, before time.Time, limit int) ([]model.Reservation, error) {
    return s.filter(ctx,
        func(r *model.Reservation) bool {
            return r.Status == model.StatusPending && r.PaymentMethod == model.PaymentPrepaid && r.CreatedAt.Before(before)
        },
        func(a, b *model.Reservation) bool { return a.CreatedAt.Before(b.CreatedAt) }, limit)
}

func byArrival(a, b *model.Reservation) bool {
    if !a.ArrivalAt.Equal(b.ArrivalAt) {
        return a.ArrivalAt.Before(b.ArrivalAt)
    }
    return a.ID < b.ID
}

// Transition applies t and, when releasing, returns the unit to the space.
func (s *ReservationStore) Transition(ctx context.Context, t model.Transition) (*model.Reservation, error) {
    if err := s.st.lock(ctx); err != nil {
        return nil, err
    }
    defer s.st.mu.Unlock()
    r, ok := s.st.reservations[t.ReservationID]
    if !ok {
        return nil, repository.ErrNotFound
    }
    if t.ActorID != 0 && r.UserID != t.ActorID {
        return nil, repository.ErrForbidden
    }
    if !t.Allows(r.Status) {
        return nil, repository.ErrInvalidTransition
    }
    if t.Release {
        if sp, ok := s.st.spaces[r.SpaceID]; ok {
            next, err := inventory.ApplyDelta(sp.AvailableSpaces, 1, sp.Capacity)
            if err != nil {
                return nil, err
            }
            sp.AvailableSpaces = next
        }
    }
    at := t.At.UTC().Truncate(time.Second)
    r.Status = t.To
    if t.To == model.StatusCancelled {
        r.CancelledAt = &at
    }
    if t.PaymentRef != nil {
        ref := *t.PaymentRef
        r.PaymentRef = &ref
    }
    r.UpdatedAt = at
    c := *r
    return &c, nil
}

func (s *ReservationStore) Delete(ctx context.Context, id string, actorID uint64) error {
    if err := s.st.lock(ctx); err != nil {
        return err
    }
    defer s.st.mu.Unlock()
    r, ok := s.st.reservations[id]
    if !ok {
        return repository.ErrNotFound
    }
    if r.UserID != actorID {
        return repository.ErrForbidden
    }
    if r.Status != model.StatusCancelled {
        return repository.ErrInvalidTransition
    }
    delete(s.st.reservations, id)
    return nil
}

func (s *ReservationStore) SetPaymentRef(ctx context.Context, id, ref string) error {
    if err := s.st.lock(ctx); err != nil {
        return err
    }
    defer s.st.mu.Unlock()
    r, ok := s.st.reservations[id]
    if !ok {
        return repository.ErrNotFound
    }
    r.PaymentRef = &ref
    r.UpdatedAt = now()
    return nil
}

// ReviewStore is the reviews table.
type ReviewStore struct{ st *state }

func (s *ReviewStore) Upsert(ctx context.Context, rv *model.Review) error {
    if err := s.st.lock(ctx); err != nil {
        return err
    }
    defer s.st.mu.Unlock()
    if _, ok := s.st.spaces[rv.SpaceID]; !ok {
        return repository.ErrNotFound
    }
    k := reviewKey{userID: rv.UserID, spaceID: rv.SpaceID}
    t := now()
    if cur, ok := s.st.reviews[k]; ok {
        cur.Rating, cur.Comment, cur.UpdatedAt = rv.Rating, rv.Comment, t
        *rv = *cur
        return nil
    }
    s.st.nextReviewID++
    rv.ID, rv.CreatedAt, rv.UpdatedAt = s.st.nextReviewID, t, t
    c := *rv
    s.st.reviews[k] = &c
    return nil
}

func (s *ReviewStore) ListBySpace(ctx context.Context, spaceID string, limit, offset int) ([]model.Review, error) {
    if err := s.st.lock(ctx); err != nil {
        return nil, err
    }
    defer s.st.mu.Unlock()
    out := []model.Review{}
    for k, rv := range s.st.reviews {
        if k.spaceID == spaceID {
            out = append(out, *rv)
        }
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
    if offset >= len(out) {
        return []model.Review{}, nil
    }
    out = out[offset:]
    if limit > 0 && len(out) > limit {
        out = out[:limit]
    }
    return out, nil
}

func (s *ReviewStore) Summary(ctx context.Context, spaceID string) (model.RatingSummary, error) {
    if err := s.st.lock(ctx); err != nil {
        return model.RatingSummary{}, err
    }
    defer s.st.mu.Unlock()
    var sum model.RatingSummary
    total := 0
    for k, rv := range s.st.reviews {
        if k.spaceID == spaceID {
            sum.Count++
            total += rv.Rating
        }
    }
    if sum.Count > 0 {
        sum.Average = float64(total) / float64(sum.Count)
    }
    return sum, nil
}
