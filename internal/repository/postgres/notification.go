package postgres

import (
	"context"
	"fmt"

	"labtool-ledger/internal/domain"
	"labtool-ledger/internal/logger"
	"labtool-ledger/internal/repository"
)

type notificationRepository struct {
	db Querier
}

func NewNotificationRepository(db Querier) repository.NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	logger.EnterMethod("notificationRepository.Create", "userID", n.UserID, "type", n.Type, "title", n.Title)

	query := `INSERT INTO notifications (user_id, type, title, message, is_read, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	logger.DatabaseCall("INSERT", "notifications", "userID", n.UserID)

	err := r.db.QueryRowContext(ctx, query, n.UserID, n.Type, n.Title, n.Message, n.IsRead, n.CreatedAt).Scan(&n.ID)
	logger.DatabaseResult("INSERT", 1, err, "notificationID", n.ID)

	if err != nil {
		logger.ExitMethodWithError("notificationRepository.Create", err, "userID", n.UserID)
		return mapError(err)
	}
	logger.ExitMethod("notificationRepository.Create", "notificationID", n.ID)
	return nil
}

func (r *notificationRepository) List(ctx context.Context, userID int32, includeBroadcast bool, limit, offset int32) ([]domain.Notification, int32, error) {
	where := `user_id = $1`
	if includeBroadcast {
		where = `user_id IN ($1, 0)`
	}

	var count int32
	countQuery := `SELECT count(*) FROM notifications WHERE ` + where
	if err := r.db.QueryRowContext(ctx, countQuery, userID).Scan(&count); err != nil {
		return nil, 0, mapError(err)
	}

	query := `SELECT id, user_id, type, title, message, is_read, created_at
	          FROM notifications WHERE ` + where + ` ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	var notes []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, 0, err
		}
		notes = append(notes, n)
	}
	return notes, count, rows.Err()
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, id, userID int32, includeBroadcast bool) error {
	query := `UPDATE notifications SET is_read = true WHERE id = $1 AND user_id = $2`
	if includeBroadcast {
		query = `UPDATE notifications SET is_read = true WHERE id = $1 AND user_id IN ($2, 0)`
	}
	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return mapError(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("notification %d: %w", id, repository.ErrNotFound)
	}
	return nil
}

// ExistsMatching looks for a notification whose message contains the
// fragments in order.
func (r *notificationRepository) ExistsMatching(ctx context.Context, m repository.NotificationMatch) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM notifications
	          WHERE type = $1 AND created_at >= $2 AND message LIKE $3`
	args := []any{m.Type, m.Since, likeSequence(m.Fragments)}
	if m.UserID != nil {
		query += ` AND user_id = $4`
		args = append(args, *m.UserID)
	}
	query += `)`

	logger.DatabaseCall("SELECT", "notifications", "type", m.Type, "fragments", m.Fragments)
	var exists bool
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&exists)
	logger.DatabaseResult("SELECT", 1, err, "exists", exists)
	if err != nil {
		return false, mapError(err)
	}
	return exists, nil
}
