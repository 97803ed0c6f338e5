package postgres

import (
	"context"
	"database/sql"
	"time"

	"labtool-ledger/internal/domain"
	"labtool-ledger/internal/logger"
	"labtool-ledger/internal/repository"
)

const transactionColumns = `t.id, t.tool_id, t.user_id, COALESCE(t.purpose, ''), t.transaction_date, t.expected_return_date,
	t.return_date, t.return_condition, t.extension_reason, COALESCE(t.notes, ''), t.updated_at`

type transactionRepository struct {
	db Querier
}

func NewTransactionRepository(db Querier) repository.TransactionRepository {
	return &transactionRepository{db: db}
}

func scanTransaction(row rowScanner, extra ...any) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	var returnDate sql.NullTime
	var condition, reason sql.NullString
	dest := []any{&t.ID, &t.ToolID, &t.UserID, &t.Purpose, &t.TransactionDate, &t.ExpectedReturnDate,
		&returnDate, &condition, &reason, &t.Notes, &t.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, mapError(err)
	}
	t.ReturnDate = timePtr(returnDate)
	if condition.Valid {
		c := domain.ReturnCondition(condition.String)
		t.ReturnCondition = &c
	}
	if reason.Valid {
		s := reason.String
		t.ExtensionReason = &s
	}
	return t, nil
}

func (r *transactionRepository) Create(ctx context.Context, t *domain.Transaction) error {
	query := `INSERT INTO transactions (tool_id, user_id, purpose, transaction_date, expected_return_date, notes, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $4, $4) RETURNING id`
	logger.DatabaseCall("INSERT", "transactions", "toolID", t.ToolID, "userID", t.UserID)
	err := r.db.QueryRowContext(ctx, query, t.ToolID, t.UserID, t.Purpose, t.TransactionDate,
		t.ExpectedReturnDate, t.Notes).Scan(&t.ID)
	logger.DatabaseResult("INSERT", 1, err, "transactionID", t.ID)
	if err != nil {
		return mapError(err)
	}
	t.UpdatedAt = t.TransactionDate
	return nil
}

func (r *transactionRepository) GetByID(ctx context.Context, id int32) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions t WHERE t.id = $1`
	return scanTransaction(r.db.QueryRowContext(ctx, query, id))
}

func (r *transactionRepository) GetByIDForUpdate(ctx context.Context, id int32) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions t WHERE t.id = $1 FOR UPDATE`
	logger.DatabaseCall("SELECT FOR UPDATE", "transactions", "transactionID", id)
	return scanTransaction(r.db.QueryRowContext(ctx, query, id))
}

func (r *transactionRepository) GetOpenByTool(ctx context.Context, toolID int32) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions t
	          WHERE t.tool_id = $1 AND t.return_date IS NULL
	          ORDER BY t.transaction_date DESC LIMIT 1`
	return scanTransaction(r.db.QueryRowContext(ctx, query, toolID))
}

func (r *transactionRepository) GetLatestByTool(ctx context.Context, toolID int32) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions t
	          WHERE t.tool_id = $1
	          ORDER BY t.transaction_date DESC, t.id DESC LIMIT 1`
	return scanTransaction(r.db.QueryRowContext(ctx, query, toolID))
}

func (r *transactionRepository) ListByTool(ctx context.Context, toolID int32) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions t
	          WHERE t.tool_id = $1 ORDER BY t.transaction_date DESC, t.id DESC`
	rows, err := r.db.QueryContext(ctx, query, toolID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

func (r *transactionRepository) Update(ctx context.Context, t *domain.Transaction) error {
	var condition sql.NullString
	if t.ReturnCondition != nil {
		condition = sql.NullString{String: string(*t.ReturnCondition), Valid: true}
	}
	var reason sql.NullString
	if t.ExtensionReason != nil {
		reason = sql.NullString{String: *t.ExtensionReason, Valid: true}
	}
	query := `UPDATE transactions
	          SET expected_return_date = $1, return_date = $2, return_condition = $3,
	              extension_reason = $4, notes = $5, updated_at = $6
	          WHERE id = $7`
	logger.DatabaseCall("UPDATE", "transactions", "transactionID", t.ID)
	res, err := r.db.ExecContext(ctx, query, t.ExpectedReturnDate, nullTime(t.ReturnDate), condition,
		reason, t.Notes, t.UpdatedAt, t.ID)
	if err != nil {
		logger.DatabaseResult("UPDATE", 0, err)
		return mapError(err)
	}
	n, err := res.RowsAffected()
	logger.DatabaseResult("UPDATE", n, err)
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *transactionRepository) ListOpenDueBetween(ctx context.Context, from, to time.Time) ([]domain.OpenTransaction, error) {
	query := `SELECT ` + transactionColumns + `, tl.name, tl.code
	          FROM transactions t JOIN tools tl ON tl.id = t.tool_id
	          WHERE t.return_date IS NULL AND t.expected_return_date >= $1 AND t.expected_return_date < $2
	          ORDER BY t.expected_return_date, t.id`
	return r.listOpen(ctx, query, from, to)
}

func (r *transactionRepository) ListOpenDueBefore(ctx context.Context, before time.Time) ([]domain.OpenTransaction, error) {
	query := `SELECT ` + transactionColumns + `, tl.name, tl.code
	          FROM transactions t JOIN tools tl ON tl.id = t.tool_id
	          WHERE t.return_date IS NULL AND t.expected_return_date < $1
	          ORDER BY t.expected_return_date, t.id`
	return r.listOpen(ctx, query, before)
}

func (r *transactionRepository) listOpen(ctx context.Context, query string, args ...any) ([]domain.OpenTransaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []domain.OpenTransaction
	for rows.Next() {
		var name, code string
		t, err := scanTransaction(rows, &name, &code)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.OpenTransaction{Transaction: *t, ToolName: name, ToolCode: code})
	}
	return out, rows.Err()
}
