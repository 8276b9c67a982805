package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/smithy-go"
)

// sesPermanentCodes are SES error codes that no retry can fix.
var sesPermanentCodes = map[string]struct{}{
	"MessageRejected":                        {},
	"MailFromDomainNotVerified":              {},
	"ConfigurationSetDoesNotExist":           {},
	"AccountSendingPausedException":          {},
	"ConfigurationSetSendingPausedException": {},
}

type SESClient struct {
	client *ses.Client
	config *Config
	logger Logger
}

func NewSESClient(emailConfig *Config, logger Logger) (*SESClient, error) {
	if emailConfig.SESAccessKey == "" || emailConfig.SESSecretKey == "" {
		return nil, NewError("create_ses_client", "ses", ErrProviderNotConfigured)
	}

	ctx, cancel := context.WithTimeout(context.Background(), emailConfig.Timeout)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(emailConfig.SESRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			emailConfig.SESAccessKey,
			emailConfig.SESSecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, NewError("create_ses_config", "ses", err)
	}

	client := &SESClient{
		client: ses.NewFromConfig(cfg),
		config: emailConfig,
		logger: logger,
	}
	if _, err := client.client.GetSendQuota(ctx, &ses.GetSendQuotaInput{}); err != nil {
		return nil, fmt.Errorf("failed to ping SES service: %w", err)
	}
	return client, nil
}

func (s *SESClient) Send(ctx context.Context, message *Message) error {
	if err := prepare(message, s.config.DefaultFrom); err != nil {
		return NewError("send", "ses", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	out, err := s.client.SendEmail(ctx, s.build(message))
	if err != nil {
		return NewError("send", "ses", classifySESError(err))
	}

	s.logger.Debug("Email sent successfully via SES",
		"to", message.To,
		"subject", message.Subject,
		"message_id", aws.ToString(out.MessageId),
	)
	return nil
}

func (s *SESClient) ValidateEmail(address string) error {
	return validateEmail(address)
}

func (s *SESClient) Close() error {
	s.logger.Info("SES client closed")
	return nil
}

func classifySESError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := sesPermanentCodes[apiErr.ErrorCode()]; ok {
			return fmt.Errorf("%w: %s: %s", ErrRejected, apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
	}
	return err
}

func (s *SESClient) build(message *Message) *ses.SendEmailInput {
	body := &types.Body{}
	if message.Text != "" {
		body.Text = &types.Content{Data: aws.String(message.Text), Charset: aws.String("UTF-8")}
	}
	if message.HTML != "" {
		body.Html = &types.Content{Data: aws.String(message.HTML), Charset: aws.String("UTF-8")}
	}

	input := &ses.SendEmailInput{
		Source:      aws.String(message.From),
		Destination: &types.Destination{ToAddresses: message.To},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(message.Subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
	}
	if message.ReplyTo != "" {
		input.ReplyToAddresses = []string{message.ReplyTo}
	}
	if s.config.SESConfigurationSet != "" {
		input.ConfigurationSetName = aws.String(s.config.SESConfigurationSet)
	}
	for name, value := range message.Tags {
		input.Tags = append(input.Tags, types.MessageTag{Name: aws.String(name), Value: aws.String(value)})
	}
	return input
}
