package email

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// MockClient records messages instead of sending them. It serves local runs
// and tests.
type MockClient struct {
	config *Config
	logger Logger

	mu       sync.Mutex
	sent     []*Message
	failures []error
}

func NewMockClient(config *Config, logger Logger) *MockClient {
	return &MockClient{
		config: config,
		logger: logger,
	}
}

func (m *MockClient) Send(ctx context.Context, message *Message) error {
	if err := prepare(message, m.config.DefaultFrom); err != nil {
		return NewError("send", "mock", err)
	}

	if m.config.MockDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.config.MockDelay):
		}
	}

	if err := m.nextFailure(); err != nil {
		return NewError("send", "mock", err)
	}

	m.mu.Lock()
	m.sent = append(m.sent, message)
	m.mu.Unlock()

	m.logger.Debug("Mock email sent successfully",
		"to", message.To,
		"subject", message.Subject,
	)
	return nil
}

func (m *MockClient) ValidateEmail(address string) error {
	return validateEmail(address)
}

func (m *MockClient) Close() error {
	m.logger.Info("Mock email client closed", "total_sent", len(m.Sent()))
	return nil
}

// FailNext makes the following sends fail with errs, one per call, in order.
func (m *MockClient) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// Sent returns the messages accepted so far.
func (m *MockClient) Sent() []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Message, len(m.sent))
	copy(out, m.sent)
	return out
}

func (m *MockClient) nextFailure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return err
	}
	if m.config.MockFailRate > 0 && rand.Float64() < m.config.MockFailRate {
		return fmt.Errorf("mock email send failure (simulated)")
	}
	return nil
}
