package postgres

import (
	"context"
	"database/sql"

	"labtool-ledger/internal/domain"
	"labtool-ledger/internal/repository"
)

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) repository.UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, email, COALESCE(first_name, ''), role, email_notifications`

func (r *userRepository) GetByID(ctx context.Context, id int32) (*domain.User, error) {
	u := &domain.User{}
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&u.ID, &u.Email, &u.FirstName, &u.Role, &u.EmailNotifications)
	if err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

func (r *userRepository) ListStaff(ctx context.Context) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
	          WHERE role IN ('admin', 'lab_tech') AND status = 'active' ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FirstName, &u.Role, &u.EmailNotifications); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
