package email

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/heartbeathq/heartbeat/internal/logger"
)

// MockSender logs the email instead of delivering it. Selected when no
// provider key is configured so the creation flow never blocks on missing
// credentials.
type MockSender struct {
	log *logrus.Entry
}

func NewMockSender() *MockSender {
	return &MockSender{log: logger.Component("mock_email")}
}

func (s *MockSender) Send(_ context.Context, to, subject, html string) (string, error) {
	s.log.WithFields(logrus.Fields{
		"to":      to,
		"subject": subject,
		"bytes":   len(html),
	}).Info("mock email mode - would send email")
	return fmt.Sprintf("mock_%d", time.Now().UnixNano()), nil
}
