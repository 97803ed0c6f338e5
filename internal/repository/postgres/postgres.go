package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"labtool-ledger/internal/logger"
	"labtool-ledger/internal/repository"

	"github.com/lib/pq"
)

// Querier is the subset of *sql.DB and *sql.Tx the repositories need.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
	settings    repository.SettingsRepository
	users       repository.UserRepository
}

type Option func(*Store)

// WithLockTimeout bounds how long a unit of work waits on a row lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:       db,
		settings: NewSettingsRepository(db),
		users:    NewUserRepository(db),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func reposFor(q Querier) repository.Repos {
	return repository.Repos{
		Tools:         NewToolRepository(q),
		Transactions:  NewTransactionRepository(q),
		Logs:          NewTransactionLogRepository(q),
		Maintenance:   NewMaintenanceRepository(q),
		Notifications: NewNotificationRepository(q),
	}
}

func (s *Store) Repos() repository.Repos {
	return reposFor(s.db)
}

func (s *Store) Settings() repository.SettingsRepository { return s.settings }

func (s *Store) Users() repository.UserRepository { return s.users }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithinTx runs fn inside a READ COMMITTED transaction. Row locks are taken
// by the ForUpdate reads and released on commit or rollback.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, r repository.Repos) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", mapError(err))
	}
	defer tx.Rollback()

	if s.lockTimeout > 0 {
		ms := fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, ms); err != nil {
			return fmt.Errorf("set lock timeout: %w", mapError(err))
		}
	}

	if err := fn(ctx, reposFor(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		logger.Error("Transaction commit failed", "error", err)
		return fmt.Errorf("commit transaction: %w", mapError(err))
	}
	return nil
}

// mapError converts driver errors into repository sentinels where one applies.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%w: %s", repository.ErrConflict, pqErr.Constraint)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likeSequence builds a LIKE pattern matching the fragments in order.
func likeSequence(fragments []string) string {
	var b strings.Builder
	b.WriteString("%")
	for _, f := range fragments {
		b.WriteString(likeEscaper.Replace(f))
		b.WriteString("%")
	}
	return b.String()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
