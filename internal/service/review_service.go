package service

import (
    "context"
    "strings"
    "time"

    "github.com/iliyamo/parking-space-reservation/internal/model"
    "github.com/iliyamo/parking-space-reservation/internal/repository"
)

// ReviewService stores one rating per driver and space.
type ReviewService struct {
    spaces  SpaceStore
    reviews ReviewStore
    timeout time.Duration
}

// NewReviewService panics when a store is missing.
func NewReviewService(spaces SpaceStore, reviews ReviewStore, timeout time.Duration) *ReviewService {
    if spaces == nil || reviews == nil {
        panic("nil store passed to NewReviewService")
    }
    if timeout <= 0 {
        timeout = DefaultTimeout
    }
    return &ReviewService{spaces: spaces, reviews: reviews, timeout: timeout}
}

// Upsert writes the caller's review of a space, replacing an earlier one.
// Owners cannot review their own spaces.
func (s *ReviewService) Upsert(ctx context.Context, who model.Identity, spaceID string, rating int, comment string) (*model.Review, error) {
    if err := requireIdentity(who); err != nil {
        return nil, err
    }
    comment = strings.TrimSpace(comment)
    if rating < 1 || rating > 5 {
        return nil, invalid("rating", "must be between 1 and 5")
    }
    if len(comment) > 1000 {
        return nil, invalid("comment", "must be at most 1000 characters")
    }
    cctx, cancel := context.WithTimeout(ctx, s.timeout)
    defer cancel()
    sp, err := s.spaces.GetByID(cctx, spaceID)
    if err != nil {
        return nil, err
    }
    if sp.OwnerID == who.UserID {
        return nil, repository.ErrForbidden
    }
    rv := &model.Review{SpaceID: spaceID, UserID: who.UserID, Rating: rating, Comment: comment}
    if err := s.reviews.Upsert(cctx, rv); err != nil {
        return nil, err
    }
    return rv, nil
}

// List pages through the reviews of a space.
func (s *ReviewService) List(ctx context.Context, spaceID string, page, size int) ([]model.Review, error) {
    if page < 1 {
        page = 1
    }
    if size <= 0 || size > 100 {
        size = 20
    }
    cctx, cancel := context.WithTimeout(ctx, s.timeout)
    defer cancel()
    return s.reviews.ListBySpace(cctx, spaceID, size, (page-1)*size)
}
