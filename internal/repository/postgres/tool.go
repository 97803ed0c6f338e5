package postgres

import (
	"context"
	"time"

	"labtool-ledger/internal/domain"
	"labtool-ledger/internal/logger"
	"labtool-ledger/internal/repository"
)

const toolColumns = `id, code, name, COALESCE(category, ''), COALESCE(storage_location, ''), COALESCE(description, ''),
	status, maintenance_interval, created_at, updated_at`

type toolRepository struct {
	db Querier
}

func NewToolRepository(db Querier) repository.ToolRepository {
	return &toolRepository{db: db}
}

func scanTool(row rowScanner) (*domain.Tool, error) {
	t := &domain.Tool{}
	err := row.Scan(&t.ID, &t.Code, &t.Name, &t.Category, &t.StorageLocation, &t.Description,
		&t.Status, &t.MaintenanceIntervalDays, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return t, nil
}

func (r *toolRepository) Create(ctx context.Context, t *domain.Tool) error {
	query := `INSERT INTO tools (code, name, category, storage_location, description, status, maintenance_interval, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8) RETURNING id`
	logger.DatabaseCall("INSERT", "tools", "code", t.Code)
	err := r.db.QueryRowContext(ctx, query, t.Code, t.Name, t.Category, t.StorageLocation, t.Description,
		t.Status, t.MaintenanceIntervalDays, t.CreatedAt).Scan(&t.ID)
	logger.DatabaseResult("INSERT", 1, err, "toolID", t.ID)
	if err != nil {
		return mapError(err)
	}
	t.UpdatedAt = t.CreatedAt
	return nil
}

func (r *toolRepository) GetByID(ctx context.Context, id int32) (*domain.Tool, error) {
	query := `SELECT ` + toolColumns + ` FROM tools WHERE id = $1`
	return scanTool(r.db.QueryRowContext(ctx, query, id))
}

func (r *toolRepository) GetByIDForUpdate(ctx context.Context, id int32) (*domain.Tool, error) {
	query := `SELECT ` + toolColumns + ` FROM tools WHERE id = $1 FOR UPDATE`
	logger.DatabaseCall("SELECT FOR UPDATE", "tools", "toolID", id)
	return scanTool(r.db.QueryRowContext(ctx, query, id))
}

func (r *toolRepository) List(ctx context.Context, status domain.ToolStatus, page, pageSize int32) ([]domain.Tool, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	var total int32
	countQuery := `SELECT count(*) FROM tools WHERE ($1 = '' OR status = $1)`
	if err := r.db.QueryRowContext(ctx, countQuery, string(status)).Scan(&total); err != nil {
		return nil, 0, mapError(err)
	}

	query := `SELECT ` + toolColumns + ` FROM tools WHERE ($1 = '' OR status = $1) ORDER BY name, id LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, string(status), pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, mapError(err)
	}
	defer rows.Close()

	var tools []domain.Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, 0, err
		}
		tools = append(tools, *t)
	}
	return tools, total, rows.Err()
}

func (r *toolRepository) UpdateStatus(ctx context.Context, id int32, status domain.ToolStatus, at time.Time) error {
	query := `UPDATE tools SET status = $1, updated_at = $2 WHERE id = $3`
	logger.DatabaseCall("UPDATE", "tools", "toolID", id, "status", status)
	res, err := r.db.ExecContext(ctx, query, status, at, id)
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

func (r *toolRepository) ListMaintenanceTracked(ctx context.Context) ([]domain.Tool, error) {
	query := `SELECT ` + toolColumns + ` FROM tools
	          WHERE maintenance_interval > 0 AND status NOT IN ('maintenance', 'inactive')
	          ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var tools []domain.Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		tools = append(tools, *t)
	}
	return tools, rows.Err()
}
