package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"labtool-ledger/internal/domain"
	"labtool-ledger/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var toolRowColumns = []string{"id", "code", "name", "category", "storage_location", "description",
	"status", "maintenance_interval", "created_at", "updated_at"}

var transactionRowColumns = []string{"id", "tool_id", "user_id", "purpose", "transaction_date", "expected_return_date",
	"return_date", "return_condition", "extension_reason", "notes", "updated_at"}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestToolRepository_GetByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewToolRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows(toolRowColumns).
			AddRow(1, "OSC-01", "Oscilloscope", "Electronics", "Cabinet A", "", "available", 90, now, now)
		mock.ExpectQuery("SELECT (.+) FROM tools WHERE id = \\$1").
			WithArgs(int32(1)).
			WillReturnRows(rows)

		tool, err := repo.GetByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Oscilloscope", tool.Name)
		assert.Equal(t, domain.ToolStatusAvailable, tool.Status)
		assert.Equal(t, int32(90), tool.MaintenanceIntervalDays)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM tools WHERE id = \\$1").
			WithArgs(int32(99)).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(ctx, 99)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestToolRepository_GetByIDForUpdate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewToolRepository(db)
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM tools WHERE id = \\$1 FOR UPDATE").
		WithArgs(int32(3)).
		WillReturnRows(sqlmock.NewRows(toolRowColumns).
			AddRow(3, "DRL-3", "Drill", "", "", "", "borrowed", 0, now, now))

	tool, err := repo.GetByIDForUpdate(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, domain.ToolStatusBorrowed, tool.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestToolRepository_UpdateStatus(t *testing.T) {
	db, mock := newMock(t)
	repo := NewToolRepository(db)
	ctx := context.Background()
	at := time.Now()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("UPDATE tools SET status = \\$1, updated_at = \\$2 WHERE id = \\$3").
			WithArgs(domain.ToolStatusBorrowed, at, int32(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.UpdateStatus(ctx, 1, domain.ToolStatusBorrowed, at))
	})

	t.Run("MissingRow", func(t *testing.T) {
		mock.ExpectExec("UPDATE tools SET status").
			WithArgs(domain.ToolStatusAvailable, at, int32(2)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateStatus(ctx, 2, domain.ToolStatusAvailable, at)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestTransactionRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTransactionRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		txn := &domain.Transaction{ToolID: 1, UserID: 7, Purpose: "lab 3", TransactionDate: now, ExpectedReturnDate: now.AddDate(0, 0, 5)}
		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs(int32(1), int32(7), "lab 3", now, now.AddDate(0, 0, 5), "").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))

		require.NoError(t, repo.Create(ctx, txn))
		assert.Equal(t, int32(12), txn.ID)
	})

	t.Run("SecondOpenTransaction", func(t *testing.T) {
		txn := &domain.Transaction{ToolID: 1, UserID: 8, Purpose: "lab 4", TransactionDate: now, ExpectedReturnDate: now.AddDate(0, 0, 1)}
		mock.ExpectQuery("INSERT INTO transactions").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "transactions_one_open_per_tool"})

		err := repo.Create(ctx, txn)
		assert.ErrorIs(t, err, repository.ErrConflict)
	})
}

func TestTransactionRepository_GetByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTransactionRepository(db)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	returned := now.AddDate(0, 0, 2)

	mock.ExpectQuery("SELECT (.+) FROM transactions t WHERE t.id = \\$1").
		WithArgs(int32(5)).
		WillReturnRows(sqlmock.NewRows(transactionRowColumns).
			AddRow(5, 1, 7, "lab", now, now.AddDate(0, 0, 3), returned, "poor", nil, "scratched", returned))

	txn, err := repo.GetByID(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, txn.IsOpen())
	require.NotNil(t, txn.ReturnCondition)
	assert.Equal(t, domain.ReturnConditionPoor, *txn.ReturnCondition)
	assert.Nil(t, txn.ExtensionReason)
	assert.Equal(t, "scratched", txn.Notes)
}

func TestTransactionRepository_ListOpenDueBetween(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTransactionRepository(db)
	from := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	due := from.Add(15 * time.Hour)

	cols := append(append([]string{}, transactionRowColumns...), "name", "code")
	mock.ExpectQuery("SELECT (.+) FROM transactions t JOIN tools tl ON tl.id = t.tool_id WHERE t.return_date IS NULL AND t.expected_return_date >= \\$1").
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(9, 4, 7, "lab", from.AddDate(0, 0, -2), due, nil, nil, nil, "", from, "Multimeter", "MM-4"))

	open, err := repo.ListOpenDueBetween(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "Multimeter", open[0].ToolName)
	assert.Equal(t, "MM-4", open[0].ToolCode)
	assert.True(t, open[0].IsOpen())
}

func TestMaintenanceRepository_Complete(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMaintenanceRepository(db)
	done := time.Now()
	by := int32(2)

	mock.ExpectExec("UPDATE maintenance_logs").
		WithArgs(done, domain.MaintenanceStatusCompleted, "calibrated", by, int32(4)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Complete(context.Background(), &domain.MaintenanceLog{
		ID: 4, Status: domain.MaintenanceStatusCompleted, MaintenanceDate: &done, Notes: "calibrated", CompletedBy: &by,
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestNotificationRepository_ExistsMatching(t *testing.T) {
	db, mock := newMock(t)
	repo := NewNotificationRepository(db)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	user := int32(7)

	t.Run("BroadcastPattern", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(domain.NotificationTypeMaintenance, since, `%100\% Saw%2026-03-08%`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		ok, err := repo.ExistsMatching(context.Background(), repository.NotificationMatch{
			Type:      domain.NotificationTypeMaintenance,
			Since:     since,
			Fragments: []string{"100% Saw", "2026-03-08"},
		})
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("ScopedToUser", func(t *testing.T) {
		mock.ExpectQuery("SELECT EXISTS (.+) AND user_id = \\$4").
			WithArgs(domain.NotificationTypeOverdue, since, `%Drill\_X%`, user).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		ok, err := repo.ExistsMatching(context.Background(), repository.NotificationMatch{
			Type:      domain.NotificationTypeOverdue,
			UserID:    &user,
			Since:     since,
			Fragments: []string{"Drill_X"},
		})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepository_MarkAsRead(t *testing.T) {
	db, mock := newMock(t)
	repo := NewNotificationRepository(db)

	mock.ExpectExec("UPDATE notifications SET is_read = true WHERE id = \\$1 AND user_id = \\$2").
		WithArgs(int32(3), int32(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkAsRead(context.Background(), 3, 7, false)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSettingsRepository_GetAll(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSettingsRepository(db)

	mock.ExpectQuery("SELECT setting_name").
		WillReturnRows(sqlmock.NewRows([]string{"setting_name", "setting_value"}).
			AddRow("max_borrow_days", "10").
			AddRow("enable_email_notifications", "0"))

	values, err := repo.GetAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10", values["max_borrow_days"])
	assert.Len(t, values, 2)
}

func TestStore_WithinTx(t *testing.T) {
	ctx := context.Background()
	at := time.Now()

	t.Run("Commit", func(t *testing.T) {
		db, mock := newMock(t)
		store := NewStore(db, WithLockTimeout(2*time.Second))

		mock.ExpectBegin()
		mock.ExpectExec("SELECT set_config").WithArgs("2000ms").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("UPDATE tools SET status").
			WithArgs(domain.ToolStatusMaintenance, at, int32(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
			return r.Tools.UpdateStatus(ctx, 1, domain.ToolStatusMaintenance, at)
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		db, mock := newMock(t)
		store := NewStore(db)
		boom := errors.New("boom")

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE tools SET status").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectRollback()

		err := store.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
			if err := r.Tools.UpdateStatus(ctx, 1, domain.ToolStatusAvailable, at); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLikeSequence(t *testing.T) {
	assert.Equal(t, "%", likeSequence(nil))
	assert.Equal(t, `%a\_b%c\\d%`, likeSequence([]string{"a_b", `c\d`}))
}
