package postgres

import (
	"context"
	"database/sql"

	"labtool-ledger/internal/domain"
	"labtool-ledger/internal/logger"
	"labtool-ledger/internal/repository"
)

const maintenanceColumns = `id, tool_id, scheduled_date, maintenance_date, status, COALESCE(notes, ''), created_by, completed_by`

type maintenanceRepository struct {
	db Querier
}

func NewMaintenanceRepository(db Querier) repository.MaintenanceRepository {
	return &maintenanceRepository{db: db}
}

func scanMaintenance(row rowScanner) (*domain.MaintenanceLog, error) {
	m := &domain.MaintenanceLog{}
	var done sql.NullTime
	var completedBy sql.NullInt32
	if err := row.Scan(&m.ID, &m.ToolID, &m.ScheduledDate, &done, &m.Status, &m.Notes, &m.CreatedBy, &completedBy); err != nil {
		return nil, mapError(err)
	}
	m.MaintenanceDate = timePtr(done)
	if completedBy.Valid {
		id := completedBy.Int32
		m.CompletedBy = &id
	}
	return m, nil
}

func (r *maintenanceRepository) Create(ctx context.Context, m *domain.MaintenanceLog) error {
	query := `INSERT INTO maintenance_logs (tool_id, scheduled_date, status, notes, created_by, created_at)
	          VALUES ($1, $2, $3, $4, $5, $2) RETURNING id`
	logger.DatabaseCall("INSERT", "maintenance_logs", "toolID", m.ToolID)
	err := r.db.QueryRowContext(ctx, query, m.ToolID, m.ScheduledDate, m.Status, m.Notes, m.CreatedBy).Scan(&m.ID)
	logger.DatabaseResult("INSERT", 1, err, "maintenanceID", m.ID)
	return mapError(err)
}

func (r *maintenanceRepository) GetOpenByTool(ctx context.Context, toolID int32) (*domain.MaintenanceLog, error) {
	query := `SELECT ` + maintenanceColumns + ` FROM maintenance_logs
	          WHERE tool_id = $1 AND status = 'scheduled'
	          ORDER BY scheduled_date DESC, id DESC LIMIT 1`
	return scanMaintenance(r.db.QueryRowContext(ctx, query, toolID))
}

func (r *maintenanceRepository) LastCompleted(ctx context.Context, toolID int32) (*domain.MaintenanceLog, error) {
	query := `SELECT ` + maintenanceColumns + ` FROM maintenance_logs
	          WHERE tool_id = $1 AND status = 'completed' AND maintenance_date IS NOT NULL
	          ORDER BY maintenance_date DESC, id DESC LIMIT 1`
	return scanMaintenance(r.db.QueryRowContext(ctx, query, toolID))
}

func (r *maintenanceRepository) ListByTool(ctx context.Context, toolID int32) ([]domain.MaintenanceLog, error) {
	query := `SELECT ` + maintenanceColumns + ` FROM maintenance_logs
	          WHERE tool_id = $1 ORDER BY scheduled_date DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, toolID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var entries []domain.MaintenanceLog
	for rows.Next() {
		m, err := scanMaintenance(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *m)
	}
	return entries, rows.Err()
}

func (r *maintenanceRepository) Complete(ctx context.Context, m *domain.MaintenanceLog) error {
	query := `UPDATE maintenance_logs
	          SET maintenance_date = $1, status = $2, notes = $3, completed_by = $4, updated_at = $1
	          WHERE id = $5 AND status = 'scheduled'`
	var completedBy sql.NullInt32
	if m.CompletedBy != nil {
		completedBy = sql.NullInt32{Int32: *m.CompletedBy, Valid: true}
	}
	logger.DatabaseCall("UPDATE", "maintenance_logs", "maintenanceID", m.ID)
	res, err := r.db.ExecContext(ctx, query, nullTime(m.MaintenanceDate), m.Status, m.Notes, completedBy, m.ID)
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
