package analysis

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/heartbeathq/heartbeat/internal/logger"
)

// MockSummarizer returns a canned summary and logs the intended call.
// Selected when no provider key is configured.
type MockSummarizer struct {
	log *logrus.Entry
}

func NewMockSummarizer() *MockSummarizer {
	return &MockSummarizer{log: logger.Component("mock_summarizer")}
}

func (s *MockSummarizer) Summarize(_ context.Context, prompt string) (string, error) {
	s.log.WithField("prompt_bytes", len(prompt)).Info("mock summarizer mode - would call provider")
	return "<h2>Summary</h2><p>No summarization provider is configured. " +
		"Set ANTHROPIC_API_KEY or OPENAI_API_KEY to generate a real analysis.</p>", nil
}
