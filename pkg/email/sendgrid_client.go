package email

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type SendGridClient struct {
	client *sendgrid.Client
	config *Config
	logger Logger
}

func NewSendGridClient(config *Config, logger Logger) (*SendGridClient, error) {
	if config.SendGridAPIKey == "" {
		return nil, NewError("create_sendgrid_client", "sendgrid", ErrProviderNotConfigured)
	}
	return &SendGridClient{
		client: sendgrid.NewSendClient(config.SendGridAPIKey),
		config: config,
		logger: logger,
	}, nil
}

func (sg *SendGridClient) Send(ctx context.Context, message *Message) error {
	if err := prepare(message, sg.config.DefaultFrom); err != nil {
		return NewError("send", "sendgrid", err)
	}

	ctx, cancel := context.WithTimeout(ctx, sg.config.Timeout)
	defer cancel()

	response, err := sg.client.SendWithContext(ctx, sg.build(message))
	if err != nil {
		return NewError("send", "sendgrid", err)
	}
	if err := classifyStatus(response.StatusCode, response.Body); err != nil {
		return NewError("send", "sendgrid", err)
	}

	sg.logger.Debug("Email sent successfully via SendGrid",
		"to", message.To,
		"subject", message.Subject,
		"status_code", response.StatusCode,
	)
	return nil
}

func (sg *SendGridClient) ValidateEmail(address string) error {
	return validateEmail(address)
}

func (sg *SendGridClient) Close() error {
	sg.logger.Info("SendGrid client closed")
	return nil
}

// classifyStatus maps a SendGrid response onto nil, ErrRejected or a
// transient error. Throttling and server errors are worth another attempt.
func classifyStatus(status int, body string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("sendgrid returned status %d: %s", status, body)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrRejected, status, body)
	}
}

func (sg *SendGridClient) build(message *Message) *mail.SGMailV3 {
	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(sg.config.FromName, message.From))
	m.Subject = message.Subject

	p := mail.NewPersonalization()
	for _, to := range message.To {
		p.AddTos(mail.NewEmail("", to))
	}
	for key, value := range message.Headers {
		p.SetHeader(key, value)
	}
	for key, value := range message.Tags {
		p.SetCustomArg(key, value)
	}
	m.AddPersonalizations(p)

	if message.Text != "" {
		m.AddContent(mail.NewContent("text/plain", message.Text))
	}
	if message.HTML != "" {
		m.AddContent(mail.NewContent("text/html", message.HTML))
	}
	if message.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail("", message.ReplyTo))
	}
	return m
}
