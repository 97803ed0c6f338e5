package service

import (
	"context"
	"errors"
	"sync"

	"labtool-ledger/internal/domain"
	"labtool-ledger/internal/repository"
	"labtool-ledger/internal/repository/memory"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/mock"
)

// MockRelay
type MockRelay struct {
	mock.Mock
}

func (m *MockRelay) Relay(ctx context.Context, notes []domain.Notification) {
	m.Called(ctx, notes)
}

// relayed flattens every batch handed to the relay.
func (m *MockRelay) relayed() []domain.Notification {
	var out []domain.Notification
	for _, c := range m.Calls {
		out = append(out, c.Arguments.Get(1).([]domain.Notification)...)
	}
	return out
}

// MockEmailService
type MockEmailService struct {
	mock.Mock
}

func (m *MockEmailService) SendNotification(ctx context.Context, toEmail, toName string, n *domain.Notification) error {
	args := m.Called(ctx, toEmail, toName, n)
	return args.Error(0)
}

// MockUserRepo
type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) GetByID(ctx context.Context, id int32) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) ListStaff(ctx context.Context) ([]domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.User), args.Error(1)
}

// MockNotificationRepo
type MockNotificationRepo struct {
	mock.Mock
}

func (m *MockNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockNotificationRepo) List(ctx context.Context, userID int32, includeBroadcast bool, limit, offset int32) ([]domain.Notification, int32, error) {
	args := m.Called(ctx, userID, includeBroadcast, limit, offset)
	return args.Get(0).([]domain.Notification), int32(args.Int(1)), args.Error(2)
}

func (m *MockNotificationRepo) MarkAsRead(ctx context.Context, id, userID int32, includeBroadcast bool) error {
	args := m.Called(ctx, id, userID, includeBroadcast)
	return args.Error(0)
}

func (m *MockNotificationRepo) ExistsMatching(ctx context.Context, match repository.NotificationMatch) (bool, error) {
	args := m.Called(ctx, match)
	return args.Bool(0), args.Error(1)
}

// MockMailSender
type MockMailSender struct {
	mock.Mock
}

func (m *MockMailSender) SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*rest.Response), args.Error(1)
}

var errStoreDown = errors.New("connection reset by peer")

// flakyStore fails the first `failures` units of work with an
// infrastructure error before handing over to the real store.
type flakyStore struct {
	*memory.Store
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, r repository.Repos) error) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return errStoreDown
	}
	return f.Store.WithinTx(ctx, fn)
}
