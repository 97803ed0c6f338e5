package memory

import (
	"context"
	"fmt"
	"time"

	"labtool-ledger/internal/domain"
	"labtool-ledger/internal/repository"
)

type toolRepo struct{ u *unit }

func (r toolRepo) put(t domain.Tool) {
	if r.u.tx {
		r.u.tools[t.ID] = t
	} else {
		r.u.store.tools[t.ID] = t
	}
}

func (r toolRepo) Create(ctx context.Context, t *domain.Tool) error {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range r.u.toolView() {
		if existing.Code == t.Code {
			return fmt.Errorf("%w: tool code %q", repository.ErrConflict, t.Code)
		}
	}
	t.ID = s.id()
	t.UpdatedAt = t.CreatedAt
	r.put(*t)
	return nil
}

func (r toolRepo) GetByID(ctx context.Context, id int32) (*domain.Tool, error) {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := r.u.toolView()[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r toolRepo) GetByIDForUpdate(ctx context.Context, id int32) (*domain.Tool, error) {
	if err := r.u.lock(ctx, toolKey(id)); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r toolRepo) List(ctx context.Context, status domain.ToolStatus, page, pageSize int32) ([]domain.Tool, int32, error) {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	all := sortedValues(r.u.toolView(), func(a, b domain.Tool) bool {
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	var matched []domain.Tool
	for _, t := range all {
		if status == "" || t.Status == status {
			matched = append(matched, t)
		}
	}
	offset, limit := clampPage(page, pageSize)
	return window(matched, offset, limit), int32(len(matched)), nil
}

func (r toolRepo) UpdateStatus(ctx context.Context, id int32, status domain.ToolStatus, at time.Time) error {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := r.u.toolView()[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = at
	r.put(t)
	return nil
}

func (r toolRepo) ListMaintenanceTracked(ctx context.Context) ([]domain.Tool, error) {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Tool
	for _, t := range sortedValues(r.u.toolView(), func(a, b domain.Tool) bool { return a.ID < b.ID }) {
		if t.MaintenanceTracked() {
			out = append(out, t)
		}
	}
	return out, nil
}

type transactionRepo struct{ u *unit }

func (r transactionRepo) put(t domain.Transaction) {
	if r.u.tx {
		r.u.transactions[t.ID] = t
	} else {
		r.u.store.transactions[t.ID] = t
	}
}

func (r transactionRepo) Create(ctx context.Context, t *domain.Transaction) error {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range r.u.transactionView() {
		if existing.ToolID == t.ToolID && existing.IsOpen() {
			return fmt.Errorf("%w: tool %d already has open transaction %d", repository.ErrConflict, t.ToolID, id)
		}
	}
	t.ID = s.id()
	t.UpdatedAt = t.TransactionDate
	r.put(*t)
	return nil
}

func (r transactionRepo) GetByID(ctx context.Context, id int32) (*domain.Transaction, error) {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := r.u.transactionView()[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r transactionRepo) GetByIDForUpdate(ctx context.Context, id int32) (*domain.Transaction, error) {
	if err := r.u.lock(ctx, transactionKey(id)); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r transactionRepo) byTool(toolID int32) []domain.Transaction {
	var out []domain.Transaction
	for _, t := range r.u.transactionView() {
		if t.ToolID == toolID {
			out = append(out, t)
		}
	}
	return out
}

func latestFirst(a, b domain.Transaction) bool {
	if !a.TransactionDate.Equal(b.TransactionDate) {
		return a.TransactionDate.After(b.TransactionDate)
	}
	return a.ID > b.ID
}

func (r transactionRepo) GetOpenByTool(ctx context.Context, toolID int32) (*domain.Transaction, error) {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range r.byTool(toolID) {
		if t.IsOpen() {
			return &t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r transactionRepo) GetLatestByTool(ctx context.Context, toolID int32) (*domain.Transaction, error) {
	txns, _ := r.ListByTool(ctx, toolID)
	if len(txns) == 0 {
		return nil, repository.ErrNotFound
	}
	return &txns[0], nil
}

func (r transactionRepo) ListByTool(ctx context.Context, toolID int32) ([]domain.Transaction, error) {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	m := make(map[int32]domain.Transaction)
	for _, t := range r.byTool(toolID) {
		m[t.ID] = t
	}
	return sortedValues(m, latestFirst), nil
}

func (r transactionRepo) Update(ctx context.Context, t *domain.Transaction) error {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := r.u.transactionView()[t.ID]; !ok {
		return repository.ErrNotFound
	}
	r.put(*t)
	return nil
}

func (r transactionRepo) listOpen(match func(domain.Transaction) bool) []domain.OpenTransaction {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	tools := r.u.toolView()
	txns := sortedValues(r.u.transactionView(), func(a, b domain.Transaction) bool {
		if !a.ExpectedReturnDate.Equal(b.ExpectedReturnDate) {
			return a.ExpectedReturnDate.Before(b.ExpectedReturnDate)
		}
		return a.ID < b.ID
	})
	var out []domain.OpenTransaction
	for _, t := range txns {
		if !t.IsOpen() || !match(t) {
			continue
		}
		tool := tools[t.ToolID]
		out = append(out, domain.OpenTransaction{Transaction: t, ToolName: tool.Name, ToolCode: tool.Code})
	}
	return out
}

func (r transactionRepo) ListOpenDueBetween(ctx context.Context, from, to time.Time) ([]domain.OpenTransaction, error) {
	return r.listOpen(func(t domain.Transaction) bool {
		return !t.ExpectedReturnDate.Before(from) && t.ExpectedReturnDate.Before(to)
	}), nil
}

func (r transactionRepo) ListOpenDueBefore(ctx context.Context, before time.Time) ([]domain.OpenTransaction, error) {
	return r.listOpen(func(t domain.Transaction) bool {
		return t.ExpectedReturnDate.Before(before)
	}), nil
}

type logRepo struct{ u *unit }

func (r logRepo) Append(ctx context.Context, e *domain.TransactionLog) error {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := r.u.transactionView()[e.TransactionID]; !ok {
		return fmt.Errorf("transaction %d: %w", e.TransactionID, repository.ErrNotFound)
	}
	e.ID = s.id()
	if r.u.tx {
		r.u.logs[e.ID] = *e
	} else {
		s.logs[e.ID] = *e
	}
	return nil
}

func (r logRepo) ListByTransaction(ctx context.Context, transactionID int32) ([]domain.TransactionLog, error) {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TransactionLog
	for _, e := range sortedValues(r.u.logView(), func(a, b domain.TransactionLog) bool { return a.ID < b.ID }) {
		if e.TransactionID == transactionID {
			out = append(out, e)
		}
	}
	return out, nil
}

type maintenanceRepo struct{ u *unit }

func (r maintenanceRepo) put(m domain.MaintenanceLog) {
	if r.u.tx {
		r.u.maintenance[m.ID] = m
	} else {
		r.u.store.maintenance[m.ID] = m
	}
}

func (r maintenanceRepo) Create(ctx context.Context, m *domain.MaintenanceLog) error {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.id()
	r.put(*m)
	return nil
}

func (r maintenanceRepo) byTool(toolID int32) []domain.MaintenanceLog {
	var out []domain.MaintenanceLog
	for _, m := range sortedValues(r.u.maintenanceView(), func(a, b domain.MaintenanceLog) bool {
		if !a.ScheduledDate.Equal(b.ScheduledDate) {
			return a.ScheduledDate.After(b.ScheduledDate)
		}
		return a.ID > b.ID
	}) {
		if m.ToolID == toolID {
			out = append(out, m)
		}
	}
	return out
}

func (r maintenanceRepo) GetOpenByTool(ctx context.Context, toolID int32) (*domain.MaintenanceLog, error) {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range r.byTool(toolID) {
		if m.Status == domain.MaintenanceStatusScheduled {
			return &m, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r maintenanceRepo) LastCompleted(ctx context.Context, toolID int32) (*domain.MaintenanceLog, error) {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *domain.MaintenanceLog
	for _, m := range r.byTool(toolID) {
		if m.Status != domain.MaintenanceStatusCompleted || m.MaintenanceDate == nil {
			continue
		}
		if last == nil || m.MaintenanceDate.After(*last.MaintenanceDate) {
			last = &m
		}
	}
	if last == nil {
		return nil, repository.ErrNotFound
	}
	return last, nil
}

func (r maintenanceRepo) ListByTool(ctx context.Context, toolID int32) ([]domain.MaintenanceLog, error) {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	return r.byTool(toolID), nil
}

func (r maintenanceRepo) Complete(ctx context.Context, m *domain.MaintenanceLog) error {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := r.u.maintenanceView()[m.ID]
	if !ok || existing.Status != domain.MaintenanceStatusScheduled {
		return repository.ErrNotFound
	}
	r.put(*m)
	return nil
}

type notificationRepo struct{ u *unit }

func (r notificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = s.id()
	if r.u.tx {
		r.u.notifications[n.ID] = *n
	} else {
		s.notifications[n.ID] = *n
	}
	return nil
}

func visibleTo(n domain.Notification, userID int32, includeBroadcast bool) bool {
	return n.UserID == userID || (includeBroadcast && n.UserID == domain.BroadcastUserID)
}

func (r notificationRepo) List(ctx context.Context, userID int32, includeBroadcast bool, limit, offset int32) ([]domain.Notification, int32, error) {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []domain.Notification
	for _, n := range sortedValues(r.u.notificationView(), func(a, b domain.Notification) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	}) {
		if visibleTo(n, userID, includeBroadcast) {
			matched = append(matched, n)
		}
	}
	if limit < 1 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return window(matched, int(offset), int(limit)), int32(len(matched)), nil
}

func (r notificationRepo) MarkAsRead(ctx context.Context, id, userID int32, includeBroadcast bool) error {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := r.u.notificationView()[id]
	if !ok || !visibleTo(n, userID, includeBroadcast) {
		return fmt.Errorf("notification %d: %w", id, repository.ErrNotFound)
	}
	n.IsRead = true
	if r.u.tx {
		r.u.notifications[id] = n
	} else {
		s.notifications[id] = n
	}
	return nil
}

func (r notificationRepo) ExistsMatching(ctx context.Context, m repository.NotificationMatch) (bool, error) {
	s := r.u.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range r.u.notificationView() {
		if n.Type != m.Type || n.CreatedAt.Before(m.Since) {
			continue
		}
		if m.UserID != nil && n.UserID != *m.UserID {
			continue
		}
		if containsInOrder(n.Message, m.Fragments) {
			return true, nil
		}
	}
	return false, nil
}

type settingsRepo struct{ s *Store }

func (r settingsRepo) GetAll(ctx context.Context) (map[string]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[string]string, len(r.s.settings))
	for k, v := range r.s.settings {
		out[k] = v
	}
	return out, nil
}

type userRepo struct{ s *Store }

func (r userRepo) GetByID(ctx context.Context, id int32) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r userRepo) ListStaff(ctx context.Context) ([]domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.User
	for _, u := range sortedValues(r.s.users, func(a, b domain.User) bool { return a.ID < b.ID }) {
		if u.Role.IsStaff() {
			out = append(out, u)
		}
	}
	return out, nil
}
