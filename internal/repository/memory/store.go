// Package memory is a LedgerStore kept in process memory. It gives the same
// row-lock and all-or-nothing guarantees as the Postgres store and backs the
// dev profile and the workflow tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"labtool-ledger/internal/domain"
	"labtool-ledger/internal/repository"
)

type Store struct {
	mu     sync.Mutex
	locks  *keyLocks
	nextID int32

	tools         map[int32]domain.Tool
	transactions  map[int32]domain.Transaction
	logs          map[int32]domain.TransactionLog
	maintenance   map[int32]domain.MaintenanceLog
	notifications map[int32]domain.Notification
	settings      map[string]string
	users         map[int32]domain.User
}

func NewStore() *Store {
	return &Store{
		locks:         newKeyLocks(),
		tools:         make(map[int32]domain.Tool),
		transactions:  make(map[int32]domain.Transaction),
		logs:          make(map[int32]domain.TransactionLog),
		maintenance:   make(map[int32]domain.MaintenanceLog),
		notifications: make(map[int32]domain.Notification),
		settings:      make(map[string]string),
		users:         make(map[int32]domain.User),
	}
}

// SetSetting stores a raw setting value.
func (s *Store) SetSetting(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[name] = value
}

// PutUser adds or replaces a directory entry.
func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) id() int32 {
	s.nextID++
	return s.nextID
}

func (s *Store) Repos() repository.Repos {
	return reposFor(&unit{store: s})
}

func (s *Store) Settings() repository.SettingsRepository { return settingsRepo{s} }

func (s *Store) Users() repository.UserRepository { return userRepo{s} }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, r repository.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u := newUnit(s)
	defer u.releaseAll()

	if err := fn(ctx, reposFor(u)); err != nil {
		return err
	}
	// A unit that outlived its deadline is rolled back like a database
	// transaction whose connection was cancelled.
	if err := ctx.Err(); err != nil {
		return err
	}
	return u.commit()
}

// unit is one unit of work. A nil staged map means writes apply immediately.
type unit struct {
	store *Store
	held  map[string]bool
	tx    bool

	tools         map[int32]domain.Tool
	transactions  map[int32]domain.Transaction
	logs          map[int32]domain.TransactionLog
	maintenance   map[int32]domain.MaintenanceLog
	notifications map[int32]domain.Notification
}

func newUnit(s *Store) *unit {
	return &unit{
		store:         s,
		tx:            true,
		held:          make(map[string]bool),
		tools:         make(map[int32]domain.Tool),
		transactions:  make(map[int32]domain.Transaction),
		logs:          make(map[int32]domain.TransactionLog),
		maintenance:   make(map[int32]domain.MaintenanceLog),
		notifications: make(map[int32]domain.Notification),
	}
}

func (u *unit) lock(ctx context.Context, key string) error {
	if !u.tx || u.held[key] {
		return nil
	}
	if err := u.store.locks.acquire(ctx, key); err != nil {
		return err
	}
	u.held[key] = true
	return nil
}

func (u *unit) releaseAll() {
	for key := range u.held {
		u.store.locks.release(key)
	}
	u.held = nil
}

// commit applies staged rows. The one-open-transaction-per-tool rule is
// checked again against committed state.
func (u *unit) commit() error {
	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range u.transactions {
		if !t.IsOpen() {
			continue
		}
		for otherID, other := range s.transactions {
			if otherID != id && other.ToolID == t.ToolID && other.IsOpen() {
				return fmt.Errorf("%w: tool %d already has open transaction %d", repository.ErrConflict, t.ToolID, otherID)
			}
		}
	}
	for id, t := range u.tools {
		s.tools[id] = t
	}
	for id, t := range u.transactions {
		s.transactions[id] = t
	}
	for id, l := range u.logs {
		s.logs[id] = l
	}
	for id, m := range u.maintenance {
		s.maintenance[id] = m
	}
	for id, n := range u.notifications {
		s.notifications[id] = n
	}
	return nil
}

// The view helpers below must be called with store.mu held.

func (u *unit) toolView() map[int32]domain.Tool {
	return overlay(u.store.tools, u.tools)
}

func (u *unit) transactionView() map[int32]domain.Transaction {
	return overlay(u.store.transactions, u.transactions)
}

func (u *unit) logView() map[int32]domain.TransactionLog {
	return overlay(u.store.logs, u.logs)
}

func (u *unit) maintenanceView() map[int32]domain.MaintenanceLog {
	return overlay(u.store.maintenance, u.maintenance)
}

func (u *unit) notificationView() map[int32]domain.Notification {
	return overlay(u.store.notifications, u.notifications)
}

func overlay[V any](base, staged map[int32]V) map[int32]V {
	if len(staged) == 0 {
		return base
	}
	out := make(map[int32]V, len(base)+len(staged))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range staged {
		out[k] = v
	}
	return out
}

func sortedValues[V any](m map[int32]V, less func(a, b V) bool) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func containsInOrder(s string, fragments []string) bool {
	for _, f := range fragments {
		i := strings.Index(s, f)
		if i < 0 {
			return false
		}
		s = s[i+len(f):]
	}
	return true
}

func reposFor(u *unit) repository.Repos {
	return repository.Repos{
		Tools:         toolRepo{u},
		Transactions:  transactionRepo{u},
		Logs:          logRepo{u},
		Maintenance:   maintenanceRepo{u},
		Notifications: notificationRepo{u},
	}
}

func toolKey(id int32) string { return fmt.Sprintf("tool:%d", id) }

func transactionKey(id int32) string { return fmt.Sprintf("transaction:%d", id) }

func clampPage(page, pageSize int32) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return int((page - 1) * pageSize), int(pageSize)
}

func window[V any](items []V, offset, limit int) []V {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

