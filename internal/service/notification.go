package service

import (
	"context"
	"errors"

	"labtool-ledger/internal/domain"
	"labtool-ledger/internal/repository"
)

type notificationService struct {
	noteRepo repository.NotificationRepository
}

func NewNotificationService(noteRepo repository.NotificationRepository) NotificationService {
	return &notificationService{noteRepo: noteRepo}
}

// GetNotifications lists the caller's inbox. Staff also see broadcasts.
func (s *notificationService) GetNotifications(ctx context.Context, actor domain.Principal, page, pageSize int32) ([]domain.Notification, int32, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize
	return s.noteRepo.List(ctx, actor.UserID, actor.IsStaff(), pageSize, offset)
}

func (s *notificationService) MarkAsRead(ctx context.Context, actor domain.Principal, notificationID int32) error {
	err := s.noteRepo.MarkAsRead(ctx, notificationID, actor.UserID, actor.IsStaff())
	if errors.Is(err, repository.ErrNotFound) {
		return domain.NewError(domain.ErrKindNotFound, "notification not found or access denied")
	}
	return err
}
