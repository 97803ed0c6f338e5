package service

import (
	"context"
	"errors"
	"testing"

	"labtool-ledger/internal/domain"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestSendGridEmailService(t *testing.T) {
	ctx := context.Background()
	n := &domain.Notification{Title: "Overdue Tool: Scope", Message: "The tool Scope (S-1) is overdue by 2 days. <b>Return it</b>."}

	t.Run("Success", func(t *testing.T) {
		sender := new(MockMailSender)
		svc := &sendgridEmailService{client: sender, fromEmail: "noreply@lab.test", fromName: "Lab Tool Tracker"}
		sender.On("SendWithContext", ctx, mock.MatchedBy(func(m *mail.SGMailV3) bool {
			return m.Subject == n.Title &&
				m.From.Address == "noreply@lab.test" &&
				len(m.Personalizations) == 1 &&
				m.Personalizations[0].To[0].Address == "ada@lab.test"
		})).Return(&rest.Response{StatusCode: 202}, nil)

		err := svc.SendNotification(ctx, "ada@lab.test", "Ada", n)

		assert.NoError(t, err)
		sender.AssertExpectations(t)
	})

	t.Run("ErrorStatus", func(t *testing.T) {
		sender := new(MockMailSender)
		svc := &sendgridEmailService{client: sender, fromEmail: "noreply@lab.test"}
		sender.On("SendWithContext", ctx, mock.Anything).Return(&rest.Response{StatusCode: 401, Body: "unauthorized"}, nil)

		err := svc.SendNotification(ctx, "ada@lab.test", "Ada", n)

		assert.ErrorContains(t, err, "status 401")
	})

	t.Run("TransportError", func(t *testing.T) {
		sender := new(MockMailSender)
		svc := &sendgridEmailService{client: sender, fromEmail: "noreply@lab.test"}
		sender.On("SendWithContext", ctx, mock.Anything).Return(nil, errors.New("dial tcp: timeout"))

		err := svc.SendNotification(ctx, "ada@lab.test", "Ada", n)

		assert.ErrorContains(t, err, "failed to send email via sendgrid")
	})
}

func TestRenderNotificationEscapesHTML(t *testing.T) {
	plain, body := renderNotification("Ada", &domain.Notification{Message: "a <b>bold</b> claim"})
	assert.Contains(t, plain, "Hello Ada,")
	assert.Contains(t, plain, "a <b>bold</b> claim")
	assert.Contains(t, body, "a &lt;b&gt;bold&lt;/b&gt; claim")
}
