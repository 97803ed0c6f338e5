package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"labtool-ledger/internal/domain"
	"labtool-ledger/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func seedTool(t *testing.T, s *Store, code string) *domain.Tool {
	t.Helper()
	tool := &domain.Tool{Code: code, Name: "Tool " + code, Status: domain.ToolStatusAvailable, CreatedAt: t0}
	require.NoError(t, s.Repos().Tools.Create(context.Background(), tool))
	return tool
}

func TestWithinTx_CommitAndRollback(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	tool := seedTool(t, s, "A")

	t.Run("Rollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
			require.NoError(t, r.Tools.UpdateStatus(ctx, tool.ID, domain.ToolStatusBorrowed, t0))
			require.NoError(t, r.Transactions.Create(ctx, &domain.Transaction{ToolID: tool.ID, UserID: 1, TransactionDate: t0, ExpectedReturnDate: t0.Add(time.Hour)}))

			got, err := r.Tools.GetByID(ctx, tool.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.ToolStatusBorrowed, got.Status)
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := s.Repos().Tools.GetByID(ctx, tool.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ToolStatusAvailable, got.Status)
		_, err = s.Repos().Transactions.GetOpenByTool(ctx, tool.ID)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("Commit", func(t *testing.T) {
		err := s.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
			return r.Tools.UpdateStatus(ctx, tool.ID, domain.ToolStatusMaintenance, t0)
		})
		require.NoError(t, err)

		got, err := s.Repos().Tools.GetByID(ctx, tool.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ToolStatusMaintenance, got.Status)
	})
}

func TestWithinTx_ExpiredContextRollsBack(t *testing.T) {
	s := NewStore()
	tool := seedTool(t, s, "B")
	ctx, cancel := context.WithCancel(context.Background())

	err := s.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
		if err := r.Tools.UpdateStatus(ctx, tool.ID, domain.ToolStatusMissing, t0); err != nil {
			return err
		}
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	got, _ := s.Repos().Tools.GetByID(context.Background(), tool.ID)
	assert.Equal(t, domain.ToolStatusAvailable, got.Status)
}

func TestRowLockWaitsAndHonoursDeadline(t *testing.T) {
	s := NewStore()
	tool := seedTool(t, s, "C")
	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- s.WithinTx(context.Background(), func(ctx context.Context, r repository.Repos) error {
			if _, err := r.Tools.GetByIDForUpdate(ctx, tool.ID); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
		_, err := r.Tools.GetByIDForUpdate(ctx, tool.ID)
		return err
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// A different tool is not blocked.
	other := seedTool(t, s, "D")
	err = s.WithinTx(context.Background(), func(ctx context.Context, r repository.Repos) error {
		_, err := r.Tools.GetByIDForUpdate(ctx, other.ID)
		return err
	})
	assert.NoError(t, err)

	close(release)
	require.NoError(t, <-done)
}

func TestOneOpenTransactionPerTool(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	tool := seedTool(t, s, "E")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// No row lock: the commit-time check alone must keep the rule.
			errs[i] = s.WithinTx(ctx, func(ctx context.Context, r repository.Repos) error {
				return r.Transactions.Create(ctx, &domain.Transaction{
					ToolID: tool.ID, UserID: int32(i + 1), TransactionDate: t0, ExpectedReturnDate: t0.Add(time.Hour),
				})
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, repository.ErrConflict)
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestDuplicateToolCode(t *testing.T) {
	s := NewStore()
	seedTool(t, s, "F")
	err := s.Repos().Tools.Create(context.Background(), &domain.Tool{Code: "F", Name: "again"})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestNotificationMatching(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	repo := s.Repos().Notifications
	user := int32(4)

	require.NoError(t, repo.Create(ctx, &domain.Notification{
		UserID: user, Type: domain.NotificationTypeDueDate, Title: "Tool Due Soon: Saw",
		Message: "The tool Saw (S-1) is due for return tomorrow (2026-03-03).", CreatedAt: t0,
	}))

	match := repository.NotificationMatch{Type: domain.NotificationTypeDueDate, Since: t0.Add(-time.Hour), Fragments: []string{"Saw", "2026-03-03"}}
	ok, err := repo.ExistsMatching(ctx, match)
	require.NoError(t, err)
	assert.True(t, ok)

	match.Fragments = []string{"2026-03-03", "Saw"}
	ok, _ = repo.ExistsMatching(ctx, match)
	assert.False(t, ok, "fragments must appear in order")

	match.Fragments = []string{"Saw"}
	match.Since = t0.Add(time.Minute)
	ok, _ = repo.ExistsMatching(ctx, match)
	assert.False(t, ok, "outside window")

	other := int32(5)
	match.Since = t0.Add(-time.Hour)
	match.UserID = &other
	ok, _ = repo.ExistsMatching(ctx, match)
	assert.False(t, ok, "other user")
}

func TestLastCompletedMaintenance(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	repo := s.Repos().Maintenance
	tool := seedTool(t, s, "G")

	_, err := repo.LastCompleted(ctx, tool.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	early, late := t0.AddDate(0, -2, 0), t0.AddDate(0, -1, 0)
	for _, done := range []time.Time{late, early} {
		m := &domain.MaintenanceLog{ToolID: tool.ID, ScheduledDate: done, Status: domain.MaintenanceStatusScheduled}
		require.NoError(t, repo.Create(ctx, m))
		d := done
		m.Status = domain.MaintenanceStatusCompleted
		m.MaintenanceDate = &d
		require.NoError(t, repo.Complete(ctx, m))
	}

	last, err := repo.LastCompleted(ctx, tool.ID)
	require.NoError(t, err)
	assert.True(t, last.MaintenanceDate.Equal(late))
}
