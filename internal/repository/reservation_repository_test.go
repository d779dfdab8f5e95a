package repository

import (
    "context"
    "database/sql"
    "fmt"
    "regexp"
    "testing"
    "time"

    "github.com/DATA-DOG/go-sqlmock"
    "github.com/go-sql-driver/mysql"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/iliyamo/parking-space-reservation/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
    t.Helper()
    db, mock, err := sqlmock.New()
    require.NoError(t, err)
    t.Cleanup(func() { _ = db.Close() })
    return db, mock
}

func sampleReservation() *model.Reservation {
    return &model.Reservation{
        ID: "res-1", SpaceID: "space-1", UserID: 7, ArrivalAt: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
        DurationHours: 2, TotalAmountCents: 10000, PaymentMethod: model.PaymentCash,
        VehicleType: "Car", Status: model.StatusConfirmed,
    }
}

func reservationRow(status string) *sqlmock.Rows {
    now := time.Now().UTC()
    return sqlmock.NewRows([]string{"id", "space_id", "user_id", "user_email", "arrival_at", "duration_hours",
        "total_amount_cents", "payment_method", "vehicle_type", "plate_number", "contact_phone", "instructions",
        "status", "payment_ref", "cancelled_at", "created_at", "updated_at"}).
        AddRow("res-1", "space-1", int64(7), "d@example.com", now, int64(2), int64(10000), "cash", "Car", "", "",
            nil, status, nil, nil, now, now)
}

func TestReservationCreateConsumesThenInserts(t *testing.T) {
    db, mock := newMock(t)
    repo := NewReservationRepo(db)

    mock.ExpectBegin()
    mock.ExpectExec(regexp.QuoteMeta(consumeUnitSQL)).WithArgs("space-1").WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(regexp.QuoteMeta("INSERT INTO reservations")).WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectCommit()

    res := sampleReservation()
    require.NoError(t, repo.Create(context.Background(), res))
    assert.False(t, res.CreatedAt.IsZero())
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationCreateWithoutCapacityWritesNothing(t *testing.T) {
    db, mock := newMock(t)
    repo := NewReservationRepo(db)

    mock.ExpectBegin()
    mock.ExpectExec(regexp.QuoteMeta(consumeUnitSQL)).WithArgs("space-1").WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectQuery(regexp.QuoteMeta("SELECT is_active FROM parking_spaces WHERE id = ?")).
        WithArgs("space-1").
        WillReturnRows(sqlmock.NewRows([]string{"is_active"}).AddRow(true))
    mock.ExpectRollback()

    err := repo.Create(context.Background(), sampleReservation())
    assert.ErrorIs(t, err, ErrNoCapacity)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationCreateOnInactiveOrMissingSpace(t *testing.T) {
    db, mock := newMock(t)
    repo := NewReservationRepo(db)

    mock.ExpectBegin()
    mock.ExpectExec(regexp.QuoteMeta(consumeUnitSQL)).WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectQuery(regexp.QuoteMeta("SELECT is_active FROM parking_spaces")).
        WillReturnRows(sqlmock.NewRows([]string{"is_active"}).AddRow(false))
    mock.ExpectRollback()
    assert.ErrorIs(t, repo.Create(context.Background(), sampleReservation()), ErrSpaceInactive)

    mock.ExpectBegin()
    mock.ExpectExec(regexp.QuoteMeta(consumeUnitSQL)).WillReturnResult(sqlmock.NewResult(0, 0))
    mock.ExpectQuery(regexp.QuoteMeta("SELECT is_active FROM parking_spaces")).WillReturnError(sql.ErrNoRows)
    mock.ExpectRollback()
    assert.ErrorIs(t, repo.Create(context.Background(), sampleReservation()), ErrNotFound)

    assert.NoError(t, mock.ExpectationsWereMet())
}

func cancelTransition(actor uint64) model.Transition {
    return model.Transition{
        ReservationID: "res-1", ActorID: actor,
        From: []model.ReservationStatus{model.StatusPending, model.StatusConfirmed},
        To:   model.StatusCancelled, At: time.Now(), Release: true,
    }
}

func TestTransitionCancelReleasesUnderLock(t *testing.T) {
    db, mock := newMock(t)
    repo := NewReservationRepo(db)

    mock.ExpectBegin()
    mock.ExpectQuery(regexp.QuoteMeta("FROM reservations WHERE id = ? FOR UPDATE")).
        WithArgs("res-1").WillReturnRows(reservationRow("confirmed"))
    mock.ExpectExec(regexp.QuoteMeta("UPDATE reservations SET status = ?")).WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectExec(regexp.QuoteMeta(releaseUnitSQL)).WithArgs("space-1").WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectCommit()

    res, err := repo.Transition(context.Background(), cancelTransition(7))
    require.NoError(t, err)
    assert.Equal(t, model.StatusCancelled, res.Status)
    assert.NotNil(t, res.CancelledAt)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionRejectsWithoutWriting(t *testing.T) {
    db, mock := newMock(t)
    repo := NewReservationRepo(db)

    mock.ExpectBegin()
    mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnRows(reservationRow("cancelled"))
    mock.ExpectRollback()
    _, err := repo.Transition(context.Background(), cancelTransition(7))
    assert.ErrorIs(t, err, ErrInvalidTransition)

    mock.ExpectBegin()
    mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnRows(reservationRow("confirmed"))
    mock.ExpectRollback()
    _, err = repo.Transition(context.Background(), cancelTransition(99))
    assert.ErrorIs(t, err, ErrForbidden)

    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReservationDeleteOnlyWhenCancelled(t *testing.T) {
    db, mock := newMock(t)
    repo := NewReservationRepo(db)
    lock := regexp.QuoteMeta("SELECT user_id, status FROM reservations WHERE id = ? FOR UPDATE")

    mock.ExpectBegin()
    mock.ExpectQuery(lock).WillReturnRows(sqlmock.NewRows([]string{"user_id", "status"}).AddRow(int64(7), "confirmed"))
    mock.ExpectRollback()
    assert.ErrorIs(t, repo.Delete(context.Background(), "res-1", 7), ErrInvalidTransition)

    mock.ExpectBegin()
    mock.ExpectQuery(lock).WillReturnRows(sqlmock.NewRows([]string{"user_id", "status"}).AddRow(int64(7), "cancelled"))
    mock.ExpectExec(regexp.QuoteMeta("DELETE FROM reservations WHERE id = ?")).WithArgs("res-1").WillReturnResult(sqlmock.NewResult(0, 1))
    mock.ExpectCommit()
    assert.NoError(t, repo.Delete(context.Background(), "res-1", 7))

    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSpaceDeleteReportsActiveCount(t *testing.T) {
    db, mock := newMock(t)
    repo := NewSpaceRepo(db)

    mock.ExpectBegin()
    mock.ExpectQuery(regexp.QuoteMeta("SELECT owner_id, capacity, available_spaces FROM parking_spaces WHERE id = ? FOR UPDATE")).
        WithArgs("space-1").
        WillReturnRows(sqlmock.NewRows([]string{"owner_id", "capacity", "available_spaces"}).AddRow(int64(1), int64(5), int64(4)))
    mock.ExpectQuery(regexp.QuoteMeta(countActiveSQL)).WithArgs("space-1").
        WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
    mock.ExpectRollback()

    err := repo.Delete(context.Background(), "space-1", 1)
    var active *ActiveReservationsError
    require.ErrorAs(t, err, &active)
    assert.Equal(t, 1, active.Count)
    assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
    assert.Nil(t, classify(nil))
    assert.ErrorIs(t, classify(sql.ErrNoRows), ErrNotFound)
    assert.ErrorIs(t, classify(fmt.Errorf("exec: %w", context.DeadlineExceeded)), ErrPersistenceTimeout)
    assert.ErrorIs(t, classify(&mysql.MySQLError{Number: 1205}), ErrPersistenceTimeout)
    assert.ErrorIs(t, classify(&mysql.MySQLError{Number: 1213}), ErrPersistenceUnavailable)
    assert.ErrorIs(t, classify(&mysql.MySQLError{Number: 1062}), ErrConflict)
    assert.ErrorIs(t, classify(mysql.ErrInvalidConn), ErrPersistenceUnavailable)
    assert.True(t, Retryable(classify(context.DeadlineExceeded)))
    assert.False(t, Retryable(ErrNoCapacity))
    assert.ErrorIs(t, classify(ErrNoCapacity), ErrNoCapacity)
}
