package email

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
)

type Provider string

const (
	SES      Provider = "ses"
	SendGrid Provider = "sendgrid"
	Mock     Provider = "mock"
)

var (
	ErrInvalidProvider       = errors.New("invalid email provider")
	ErrInvalidEmail          = errors.New("invalid email address")
	ErrMissingRecipients     = errors.New("no recipients specified")
	ErrMissingSubject        = errors.New("subject is required")
	ErrMissingContent        = errors.New("email content is required")
	ErrProviderNotConfigured = errors.New("email provider not properly configured")
	// ErrRejected marks a message the provider refused outright. Sending it
	// again will not help.
	ErrRejected = errors.New("email rejected by provider")
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

type Error struct {
	Operation string
	Provider  string
	Err       error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("email %s operation failed for provider '%s': %v", e.Operation, e.Provider, e.Err)
	}
	return fmt.Sprintf("email %s operation failed: %v", e.Operation, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(operation, provider string, err error) *Error {
	return &Error{
		Operation: operation,
		Provider:  provider,
		Err:       err,
	}
}

// IsPermanent reports whether err will fail the same way on every attempt:
// a malformed message or a provider rejection.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrRejected) ||
		errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrMissingRecipients) ||
		errors.Is(err, ErrMissingSubject) ||
		errors.Is(err, ErrMissingContent)
}

type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Client sends one message per call and never retries; redelivery belongs to
// the notification queue.
type Client interface {
	Send(ctx context.Context, message *Message) error
	ValidateEmail(email string) error
	Close() error
}

type Message struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	ReplyTo string            `json:"reply_to,omitempty"`
	Subject string            `json:"subject"`
	Text    string            `json:"text,omitempty"`
	HTML    string            `json:"html,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Tags    map[string]string `json:"tags,omitempty"`
}

type Config struct {
	Provider    string `json:"provider" yaml:"provider" env:"EMAIL_PROVIDER"`
	DefaultFrom string `json:"default_from" yaml:"default_from" env:"EMAIL_DEFAULT_FROM"`
	FromName    string `json:"from_name" yaml:"from_name" env:"EMAIL_FROM_NAME"`

	// Timeout bounds a single provider call.
	Timeout time.Duration `json:"timeout" yaml:"timeout" env:"EMAIL_TIMEOUT"`

	SESRegion           string `json:"ses_region" yaml:"ses_region" env:"EMAIL_SES_REGION"`
	SESAccessKey        string `json:"ses_access_key" yaml:"ses_access_key" env:"EMAIL_SES_ACCESS_KEY"`
	SESSecretKey        string `json:"ses_secret_key" yaml:"ses_secret_key" env:"EMAIL_SES_SECRET_KEY"`
	SESConfigurationSet string `json:"ses_configuration_set" yaml:"ses_configuration_set" env:"EMAIL_SES_CONFIGURATION_SET"`

	SendGridAPIKey string `json:"sendgrid_api_key" yaml:"sendgrid_api_key" env:"EMAIL_SENDGRID_API_KEY"`

	MockDelay    time.Duration `json:"mock_delay" yaml:"mock_delay" env:"EMAIL_MOCK_DELAY"`
	MockFailRate float64       `json:"mock_fail_rate" yaml:"mock_fail_rate" env:"EMAIL_MOCK_FAIL_RATE"`
}

func (c *Config) setDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.SESRegion == "" {
		c.SESRegion = "us-east-1"
	}
}

// NewClient builds the client of the configured provider.
func NewClient(config *Config, logger Logger) (Client, error) {
	config.setDefaults()

	var (
		client Client
		err    error
	)
	switch Provider(config.Provider) {
	case SES:
		client, err = NewSESClient(config, logger)
	case SendGrid:
		client, err = NewSendGridClient(config, logger)
	case Mock:
		client = NewMockClient(config, logger)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidProvider, config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", config.Provider, err)
	}

	logger.Info("Email client created successfully",
		"provider", config.Provider,
		"default_from", config.DefaultFrom,
	)
	return client, nil
}

func validateEmail(address string) error {
	if !emailRegex.MatchString(address) {
		return ErrInvalidEmail
	}
	return nil
}

// prepare fills the sender and checks the message before any provider call.
func prepare(message *Message, defaultFrom string) error {
	if len(message.To) == 0 {
		return ErrMissingRecipients
	}
	if message.Subject == "" {
		return ErrMissingSubject
	}
	if message.Text == "" && message.HTML == "" {
		return ErrMissingContent
	}
	if message.From == "" {
		message.From = defaultFrom
	}
	if err := validateEmail(message.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	for _, to := range message.To {
		if err := validateEmail(to); err != nil {
			return fmt.Errorf("invalid to address %s: %w", to, err)
		}
	}
	return nil
}
