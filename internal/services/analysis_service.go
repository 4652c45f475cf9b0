package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/heartbeathq/heartbeat/internal/analysis"
	"github.com/heartbeathq/heartbeat/internal/logger"
	"github.com/heartbeathq/heartbeat/internal/models"
	"github.com/heartbeathq/heartbeat/internal/retry"
)

// ErrNotAllResponses is returned when analysis is requested before every
// recipient has answered.
var ErrNotAllResponses = errors.New("analysis requires a response from every recipient")

// ErrNoResponses is returned when a pulse has recipients but no stored
// responses to analyze.
var ErrNoResponses = errors.New("no responses to analyze")

// AnalysisStore abstracts the persistence operations AnalysisService needs.
type AnalysisStore interface {
	GetPulse(ctx context.Context, id string) (*models.Pulse, error)
	UpdatePulse(ctx context.Context, id string, upd models.PulseUpdate) (*models.Pulse, error)
	ListResponses(ctx context.Context, pulseID string) ([]*models.Response, error)
	DeleteResponses(ctx context.Context, pulseID string) (int, error)
	GetAnalysis(ctx context.Context, pulseID string) (*models.Analysis, error)
	UpsertAnalysis(ctx context.Context, a *models.Analysis) error
}

// AnalyzeResult is the outcome of an analysis request.
type AnalyzeResult struct {
	Analysis      *models.Analysis `json:"analysis"`
	ResponseCount int              `json:"responseCount"`
	// IsExisting is true when a stored analysis was returned instead of
	// calling the provider again.
	IsExisting bool `json:"isExisting"`
}

// AnalysisService orchestrates summarization: precondition checks, the
// provider call with rate-limit-aware retries, persistence, and the purge of
// raw responses afterwards.
type AnalysisService struct {
	store      AnalysisStore
	summarizer analysis.Summarizer
	policy     retry.Policy
	log        *logrus.Entry
	now        func() time.Time
}

func NewAnalysisService(s AnalysisStore, sum analysis.Summarizer) *AnalysisService {
	return &AnalysisService{
		store:      s,
		summarizer: sum,
		policy: retry.Policy{
			MaxAttempts: 2,
			Backoff:     retry.ExponentialBackoff(time.Second),
			MaxDelay:    10 * time.Second,
			Retryable:   retryableSummarization,
		},
		log: logger.Component("analysis"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Timeouts are terminal (retrying would just time out again) and upstream
// statuses other than 429 are terminal. Rate limits and transport failures
// get one more attempt.
func retryableSummarization(err error) bool {
	if errors.Is(err, analysis.ErrTimeout) {
		return false
	}
	var upstream *analysis.UpstreamError
	if errors.As(err, &upstream) {
		return false
	}
	return true
}

// Analyze summarizes the pulse's responses. Requesting analysis for an
// already analyzed pulse returns the stored summary and re-runs the purge in
// case an earlier one failed partway.
func (s *AnalysisService) Analyze(ctx context.Context, pulseID string) (*AnalyzeResult, error) {
	if pulseID == "" {
		return nil, ErrPulseIDRequired
	}
	p, err := s.store.GetPulse(ctx, pulseID)
	if err != nil {
		return nil, err
	}

	if p.HasAnalysis {
		existing, err := s.store.GetAnalysis(ctx, pulseID)
		if err != nil {
			// The flag survived but the row did not; fall back to the copy on
			// the pulse itself.
			existing = &models.Analysis{
				PulseID:   pulseID,
				Content:   p.AnalysisContent,
				CreatedAt: p.LastChecked,
				UpdatedAt: p.LastChecked,
			}
		}
		s.purgeResponses(ctx, pulseID)
		return &AnalyzeResult{Analysis: existing, ResponseCount: p.ResponseCount, IsExisting: true}, nil
	}

	responses, err := s.store.ListResponses(ctx, pulseID)
	if err != nil {
		return nil, err
	}
	if len(responses) == 0 {
		return nil, ErrNoResponses
	}
	if len(p.RecipientEmails) > 0 && len(responses) != len(p.RecipientEmails) {
		return nil, ErrNotAllResponses
	}

	prompt := BuildPrompt(p, responses)
	var content string
	err = s.policy.Do(ctx, func(ctx context.Context) error {
		var sumErr error
		content, sumErr = s.summarizer.Summarize(ctx, prompt)
		return sumErr
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	a := &models.Analysis{PulseID: pulseID, Content: content, CreatedAt: now, UpdatedAt: now}
	if err := s.store.UpsertAnalysis(ctx, a); err != nil {
		return nil, err
	}

	count := len(responses)
	hasAnalysis := true
	if _, err := s.store.UpdatePulse(ctx, pulseID, models.PulseUpdate{
		HasAnalysis:     &hasAnalysis,
		AnalysisContent: &content,
		ResponseCount:   &count,
		LastChecked:     &now,
	}); err != nil {
		return nil, err
	}

	s.purgeResponses(ctx, pulseID)
	return &AnalyzeResult{Analysis: a, ResponseCount: count}, nil
}

// GetAnalysis returns the stored summary for a pulse.
func (s *AnalysisService) GetAnalysis(ctx context.Context, pulseID string) (*models.Analysis, error) {
	return s.store.GetAnalysis(ctx, pulseID)
}

// purgeResponses deletes the raw response rows once a summary exists. The
// stored count on the pulse is kept so the dashboard can still show
// participation. Failures are logged, not returned: the next analyze call
// for this pulse retries the purge.
func (s *AnalysisService) purgeResponses(ctx context.Context, pulseID string) {
	n, err := s.store.DeleteResponses(ctx, pulseID)
	if err != nil {
		s.log.WithError(err).WithField("pulse_id", pulseID).Warn("response purge failed")
		return
	}
	if n > 0 {
		s.log.WithFields(logrus.Fields{"pulse_id": pulseID, "deleted": n}).Info("purged raw responses after analysis")
	}
}

// BuildPrompt renders the summarization prompt. Responses are numbered and
// quoted verbatim; the instructions ask for HTML so the output can be shown
// on the dashboard and in the PDF export without further processing.
func BuildPrompt(p *models.Pulse, responses []*models.Response) string {
	var b strings.Builder

	if len(p.CustomQuestions) > 0 {
		b.WriteString("A team ran an anonymous pulse survey with the following questions:\n")
		for _, q := range p.CustomQuestions {
			fmt.Fprintf(&b, "- %s\n", q)
		}
		b.WriteString("\n")
	} else {
		fmt.Fprintf(&b, "A team ran an anonymous pulse survey asking: %q\n\n", DefaultQuestion)
	}

	fmt.Fprintf(&b, "Here are all %d responses:\n\n", len(responses))
	for i, r := range responses {
		fmt.Fprintf(&b, "%d. \"%s\"\n", i+1, r.Text)
	}

	b.WriteString(`
Summarize the overall team sentiment and the recurring themes in these
responses. Be honest about negative signals; do not soften them.

The responses are anonymous and must stay that way. Never attribute
anything to an individual, never quote a response in a way that could
identify its author, never reference tenure, role, seniority, gender, or
any other demographic detail, and never speculate about who wrote what.
Present every finding as an observation about the group as a whole.

Format the summary as clean HTML using only <h2>, <h3>, <p>, <ul>, <li>
and <div> tags. Start with a short overall sentiment paragraph, then group
the themes under headings. Wrap anything that needs immediate leadership
attention in <div class="warning">...</div>. Do not wrap the output in
markdown code fences.`)

	return b.String()
}
