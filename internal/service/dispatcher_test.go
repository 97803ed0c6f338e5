package service

import (
	"context"
	"errors"
	"testing"

	"labtool-ledger/internal/domain"

	"github.com/stretchr/testify/mock"
)

func TestEmailRelay(t *testing.T) {
	ctx := context.Background()
	personal := domain.Notification{ID: 1, UserID: 11, Type: domain.NotificationTypeOverdue, Title: "Overdue Tool: Scope"}
	broadcast := domain.Notification{ID: 2, UserID: domain.BroadcastUserID, Type: domain.NotificationTypeMaintenance, Title: "Maintenance Due: Scope"}

	t.Run("OptedInUserIsMailed", func(t *testing.T) {
		email := new(MockEmailService)
		users := new(MockUserRepo)
		users.On("GetByID", ctx, int32(11)).Return(&domain.User{ID: 11, Email: "ada@lab.test", FirstName: "Ada", EmailNotifications: true}, nil)
		email.On("SendNotification", ctx, "ada@lab.test", "Ada", mock.AnythingOfType("*domain.Notification")).Return(nil)

		NewEmailRelay(email, users, StaticPolicy(domain.DefaultPolicy()), "").Relay(ctx, []domain.Notification{personal})

		email.AssertExpectations(t)
		users.AssertExpectations(t)
	})

	t.Run("OptedOutUserIsSkipped", func(t *testing.T) {
		email := new(MockEmailService)
		users := new(MockUserRepo)
		users.On("GetByID", ctx, int32(11)).Return(&domain.User{ID: 11, Email: "ada@lab.test"}, nil)

		NewEmailRelay(email, users, StaticPolicy(domain.DefaultPolicy()), "").Relay(ctx, []domain.Notification{personal})

		email.AssertNotCalled(t, "SendNotification", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("GloballyDisabled", func(t *testing.T) {
		email := new(MockEmailService)
		users := new(MockUserRepo)
		policy := domain.DefaultPolicy()
		policy.EnableEmailNotifications = false

		NewEmailRelay(email, users, StaticPolicy(policy), "staff@lab.test").Relay(ctx, []domain.Notification{personal, broadcast})

		users.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
		email.AssertNotCalled(t, "SendNotification", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("BroadcastGoesToStaff", func(t *testing.T) {
		email := new(MockEmailService)
		users := new(MockUserRepo)
		users.On("ListStaff", ctx).Return([]domain.User{
			{ID: 2, Email: "tech@lab.test", FirstName: "Tess", EmailNotifications: true},
			{ID: 3, Email: "quiet@lab.test", FirstName: "Quinn"},
		}, nil)
		email.On("SendNotification", ctx, "tech@lab.test", "Tess", mock.Anything).Return(nil)

		NewEmailRelay(email, users, StaticPolicy(domain.DefaultPolicy()), "staff@lab.test").Relay(ctx, []domain.Notification{broadcast})

		email.AssertExpectations(t)
		email.AssertNumberOfCalls(t, "SendNotification", 1)
	})

	t.Run("BroadcastFallsBackToStaffAddress", func(t *testing.T) {
		email := new(MockEmailService)
		users := new(MockUserRepo)
		users.On("ListStaff", ctx).Return(nil, errors.New("directory offline"))
		email.On("SendNotification", ctx, "staff@lab.test", "Lab staff", mock.Anything).Return(nil)

		NewEmailRelay(email, users, StaticPolicy(domain.DefaultPolicy()), "staff@lab.test").Relay(ctx, []domain.Notification{broadcast})

		email.AssertExpectations(t)
	})

	t.Run("SendFailureDoesNotStopBatch", func(t *testing.T) {
		email := new(MockEmailService)
		users := new(MockUserRepo)
		users.On("GetByID", ctx, int32(11)).Return(&domain.User{ID: 11, Email: "ada@lab.test", FirstName: "Ada", EmailNotifications: true}, nil)
		email.On("SendNotification", ctx, "ada@lab.test", "Ada", mock.Anything).Return(errors.New("smtp down"))

		second := personal
		second.ID = 3
		NewEmailRelay(email, users, StaticPolicy(domain.DefaultPolicy()), "").Relay(ctx, []domain.Notification{personal, second})

		email.AssertNumberOfCalls(t, "SendNotification", 2)
	})
}
