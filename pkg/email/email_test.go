package email

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct{}

func (testLogger) Info(string, ...interface{})   {}
func (testLogger) Error(string, ...interface{})  {}
func (testLogger) Debug(string, ...interface{})  {}
func (testLogger) Infof(string, ...interface{})  {}
func (testLogger) Errorf(string, ...interface{}) {}
func (testLogger) Debugf(string, ...interface{}) {}

func TestNewClientRejectsUnknownProvider(t *testing.T) {
	_, err := NewClient(&Config{Provider: "carrier-pigeon"}, testLogger{})
	assert.True(t, errors.Is(err, ErrInvalidProvider))
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(&Config{Provider: string(SendGrid)}, testLogger{})
	assert.True(t, errors.Is(err, ErrProviderNotConfigured))

	_, err = NewClient(&Config{Provider: string(SES)}, testLogger{})
	assert.True(t, errors.Is(err, ErrProviderNotConfigured))
}

func TestMockClientSend(t *testing.T) {
	client, err := NewClient(&Config{Provider: string(Mock), DefaultFrom: "noreply@example.com"}, testLogger{})
	require.NoError(t, err)
	mock := client.(*MockClient)

	err = client.Send(context.Background(), &Message{
		To:      []string{"student@example.com"},
		Subject: "Payment received",
		Text:    "Thanks",
	})
	require.NoError(t, err)

	sent := mock.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "noreply@example.com", sent[0].From)
}

func TestMockClientFailNext(t *testing.T) {
	mock := NewMockClient(&Config{DefaultFrom: "noreply@example.com"}, testLogger{})
	boom := errors.New("smtp timeout")
	mock.FailNext(boom)

	msg := &Message{To: []string{"a@example.com"}, Subject: "s", Text: "t"}
	err := mock.Send(context.Background(), msg)
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsPermanent(err))

	assert.NoError(t, mock.Send(context.Background(), msg))
	assert.Len(t, mock.Sent(), 1)
}

func TestInvalidMessagesArePermanent(t *testing.T) {
	mock := NewMockClient(&Config{DefaultFrom: "noreply@example.com"}, testLogger{})

	cases := []*Message{
		{Subject: "s", Text: "t"},
		{To: []string{"a@example.com"}, Text: "t"},
		{To: []string{"a@example.com"}, Subject: "s"},
		{To: []string{"not-an-address"}, Subject: "s", Text: "t"},
	}
	for _, msg := range cases {
		err := mock.Send(context.Background(), msg)
		require.Error(t, err)
		assert.True(t, IsPermanent(err), err.Error())
	}
}

func TestClassifyStatus(t *testing.T) {
	assert.NoError(t, classifyStatus(http.StatusAccepted, ""))
	assert.True(t, IsPermanent(classifyStatus(http.StatusBadRequest, "bad")))
	assert.True(t, IsPermanent(classifyStatus(http.StatusForbidden, "no")))

	err := classifyStatus(http.StatusTooManyRequests, "slow down")
	require.Error(t, err)
	assert.False(t, IsPermanent(err))

	err = classifyStatus(http.StatusBadGateway, "")
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestClassifySESError(t *testing.T) {
	rejected := classifySESError(&smithy.GenericAPIError{Code: "MessageRejected", Message: "Email address is not verified"})
	assert.True(t, IsPermanent(rejected))

	throttled := classifySESError(&smithy.GenericAPIError{Code: "Throttling", Message: "Maximum sending rate exceeded"})
	assert.False(t, IsPermanent(throttled))
}
