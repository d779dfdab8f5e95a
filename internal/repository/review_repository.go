package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/iliyamo/parking-space-reservation/internal/model"
)

// ReviewRepo stores driver reviews, one per (user, space).
type ReviewRepo struct {
    db *sql.DB
}

// NewReviewRepo returns a new ReviewRepo bound to db.
func NewReviewRepo(db *sql.DB) *ReviewRepo { return &ReviewRepo{db: db} }

// Upsert inserts the review or replaces the rating and comment of the
// existing one for the same user and space.
func (r *ReviewRepo) Upsert(ctx context.Context, rv *model.Review) error {
    now := time.Now().UTC().Truncate(time.Second)
    _, err := r.db.ExecContext(ctx,
        `INSERT INTO reviews (space_id, user_id, rating, comment, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
         ON DUPLICATE KEY UPDATE rating = VALUES(rating), comment = VALUES(comment), updated_at = VALUES(updated_at)`,
        rv.SpaceID, rv.UserID, rv.Rating, rv.Comment, now, now)
    if err != nil {
        return classify(err)
    }
    err = r.db.QueryRowContext(ctx,
        `SELECT id, created_at, updated_at FROM reviews WHERE user_id = ? AND space_id = ?`, rv.UserID, rv.SpaceID).
        Scan(&rv.ID, &rv.CreatedAt, &rv.UpdatedAt)
    return classify(err)
}

// ListBySpace pages through a space's reviews, latest first.
func (r *ReviewRepo) ListBySpace(ctx context.Context, spaceID string, limit, offset int) ([]model.Review, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT id, space_id, user_id, rating, COALESCE(comment, ''), created_at, updated_at FROM reviews WHERE space_id = ? ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?`,
        spaceID, limit, offset)
    if err != nil {
        return nil, classify(err)
    }
    defer rows.Close()
    out := []model.Review{}
    for rows.Next() {
        var rv model.Review
        if err := rows.Scan(&rv.ID, &rv.SpaceID, &rv.UserID, &rv.Rating, &rv.Comment, &rv.CreatedAt, &rv.UpdatedAt); err != nil {
            return nil, classify(err)
        }
        out = append(out, rv)
    }
    if err := rows.Err(); err != nil {
        return nil, classify(err)
    }
    return out, nil
}

// Summary returns the average rating and review count of a space.
func (r *ReviewRepo) Summary(ctx context.Context, spaceID string) (model.RatingSummary, error) {
    var (
        sum model.RatingSummary
        avg sql.NullFloat64
    )
    err := r.db.QueryRowContext(ctx, `SELECT AVG(rating), COUNT(*) FROM reviews WHERE space_id = ?`, spaceID).Scan(&avg, &sum.Count)
    if err != nil {
        return sum, classify(err)
    }
    sum.Average = avg.Float64
    return sum, nil
}
