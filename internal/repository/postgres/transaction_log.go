package postgres

import (
	"context"

	"labtool-ledger/internal/domain"
	"labtool-ledger/internal/logger"
	"labtool-ledger/internal/repository"
)

type transactionLogRepository struct {
	db Querier
}

func NewTransactionLogRepository(db Querier) repository.TransactionLogRepository {
	return &transactionLogRepository{db: db}
}

func (r *transactionLogRepository) Append(ctx context.Context, e *domain.TransactionLog) error {
	query := `INSERT INTO transaction_logs (transaction_id, action, details, user_id, created_at)
	          VALUES ($1, $2, $3, $4, $5) RETURNING id`
	logger.DatabaseCall("INSERT", "transaction_logs", "transactionID", e.TransactionID, "action", e.Action)
	err := r.db.QueryRowContext(ctx, query, e.TransactionID, e.Action, e.Details, e.UserID, e.CreatedAt).Scan(&e.ID)
	logger.DatabaseResult("INSERT", 1, err, "logID", e.ID)
	return mapError(err)
}

func (r *transactionLogRepository) ListByTransaction(ctx context.Context, transactionID int32) ([]domain.TransactionLog, error) {
	query := `SELECT id, transaction_id, action, COALESCE(details, ''), user_id, created_at
	          FROM transaction_logs WHERE transaction_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, transactionID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var entries []domain.TransactionLog
	for rows.Next() {
		var e domain.TransactionLog
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.Action, &e.Details, &e.UserID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
