package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"labtool-ledger/internal/domain"
	"labtool-ledger/internal/logger"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// mailSender is the part of the SendGrid client we use.
type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type sendgridEmailService struct {
	client    mailSender
	fromEmail string
	fromName  string
}

func NewSendGridEmailService(apiKey, fromEmail, fromName string) EmailService {
	return &sendgridEmailService{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (s *sendgridEmailService) SendNotification(ctx context.Context, toEmail, toName string, n *domain.Notification) error {
	logger.ExternalServiceCall("sendgrid", "send", "to", toEmail, "type", n.Type)

	from := mail.NewEmail(s.fromName, s.fromEmail)
	recipient := mail.NewEmail(toName, toEmail)
	plain, htmlBody := renderNotification(toName, n)
	message := mail.NewSingleEmail(from, n.Title, recipient, plain, htmlBody)

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		logger.ExternalServiceResult("sendgrid", "send", err)
		return fmt.Errorf("failed to send email via sendgrid: %w", err)
	}
	if response.StatusCode >= 400 {
		err := fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
		logger.ExternalServiceResult("sendgrid", "send", err)
		return err
	}
	logger.ExternalServiceResult("sendgrid", "send", nil, "status", response.StatusCode)
	return nil
}

func renderNotification(toName string, n *domain.Notification) (string, string) {
	greeting := "Hello"
	if toName != "" {
		greeting = "Hello " + toName
	}
	plain := fmt.Sprintf("%s,\n\n%s\n\nLab Tool Tracker", greeting, n.Message)

	var b strings.Builder
	b.WriteString("<p>")
	b.WriteString(html.EscapeString(greeting))
	b.WriteString(",</p><p>")
	b.WriteString(html.EscapeString(n.Message))
	b.WriteString("</p><p>Lab Tool Tracker</p>")
	return plain, b.String()
}

type logEmailService struct{}

// NewLogEmailService writes messages to the log instead of sending them.
func NewLogEmailService() EmailService {
	return logEmailService{}
}

func (logEmailService) SendNotification(ctx context.Context, toEmail, toName string, n *domain.Notification) error {
	logger.Info("Email notification (log only)", "to", toEmail, "subject", n.Title, "type", n.Type)
	return nil
}
