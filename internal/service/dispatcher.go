package service

import (
	"context"

	"labtool-ledger/internal/domain"
	"labtool-ledger/internal/logger"
	"labtool-ledger/internal/repository"
)

type emailRelay struct {
	email        EmailService
	users        repository.UserRepository
	policy       PolicySource
	staffAddress string
}

// NewEmailRelay mails committed notifications when
// enable_email_notifications is on. Personal notifications go to users who
// opted in; broadcasts go to opted-in staff, or staffAddress when there are none.
func NewEmailRelay(email EmailService, users repository.UserRepository, policy PolicySource, staffAddress string) NotificationRelay {
	return &emailRelay{email: email, users: users, policy: policy, staffAddress: staffAddress}
}

func (r *emailRelay) Relay(ctx context.Context, notes []domain.Notification) {
	if len(notes) == 0 {
		return
	}
	policy, err := r.policy.Policy(ctx)
	if err != nil {
		logger.Warn("Skipping email relay", "error", err)
		return
	}
	if !policy.EnableEmailNotifications {
		return
	}

	for i := range notes {
		n := &notes[i]
		for _, to := range r.recipients(ctx, n) {
			if err := r.email.SendNotification(ctx, to.Email, to.FirstName, n); err != nil {
				logger.Error("Failed to relay notification", "notificationID", n.ID, "to", to.Email, "error", err)
			}
		}
	}
}

func (r *emailRelay) recipients(ctx context.Context, n *domain.Notification) []domain.User {
	if !n.IsBroadcast() {
		u, err := r.users.GetByID(ctx, n.UserID)
		if err != nil {
			logger.Warn("Notification recipient lookup failed", "userID", n.UserID, "error", err)
			return nil
		}
		if !u.EmailNotifications || u.Email == "" {
			return nil
		}
		return []domain.User{*u}
	}

	staff, err := r.users.ListStaff(ctx)
	if err != nil {
		logger.Warn("Staff lookup failed", "error", err)
	}
	var out []domain.User
	for _, u := range staff {
		if u.EmailNotifications && u.Email != "" {
			out = append(out, u)
		}
	}
	if len(out) == 0 && r.staffAddress != "" {
		out = append(out, domain.User{Email: r.staffAddress, FirstName: "Lab staff"})
	}
	return out
}
