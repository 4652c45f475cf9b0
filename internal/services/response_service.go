package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/heartbeathq/heartbeat/internal/logger"
	"github.com/heartbeathq/heartbeat/internal/models"
	"github.com/heartbeathq/heartbeat/internal/store"
)

// DefaultQuestion is asked when a pulse carries no custom questions.
const DefaultQuestion = "How have you been feeling lately?"

const anonymousRespondent = "anonymous"

var (
	ErrPulseIDRequired = errors.New("pulseId is required")
	ErrEmptyResponse   = errors.New("response text is required")
	// ErrPulseClosed is returned once every recipient has answered or the
	// pulse has been analyzed.
	ErrPulseClosed = errors.New("pulse is no longer accepting responses")
)

// ResponseStore abstracts the persistence operations ResponseService needs.
type ResponseStore interface {
	CreatePulse(ctx context.Context, p *models.Pulse) error
	GetPulse(ctx context.Context, id string) (*models.Pulse, error)
	UpdatePulse(ctx context.Context, id string, upd models.PulseUpdate) (*models.Pulse, error)
	AddResponse(ctx context.Context, r *models.Response) error
	ListResponses(ctx context.Context, pulseID string) ([]*models.Response, error)
	CountResponses(ctx context.Context, pulseID string) (int, error)
}

// ResponseService accepts anonymous survey submissions and keeps each
// pulse's response count current.
type ResponseService struct {
	store       ResponseStore
	log         *logrus.Entry
	now         func() time.Time
	idGenerator func() string
}

func NewResponseService(s ResponseStore) *ResponseService {
	return &ResponseService{
		store:       s,
		log:         logger.Component("responses"),
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: NewID,
	}
}

// ComposeResponseText flattens answered questions into one stored text. The
// questions keep their submission order so the analysis prompt can show
// which question each answer belongs to.
func ComposeResponseText(questions, answers []string) string {
	if len(questions) == 0 {
		questions = []string{DefaultQuestion}
	}
	var b strings.Builder
	for i, q := range questions {
		a := ""
		if i < len(answers) {
			a = strings.TrimSpace(answers[i])
		}
		if a == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Q: %s\nA: %s", q, a)
	}
	return b.String()
}

// Submit stores a single free-text answer against the pulse.
func (s *ResponseService) Submit(ctx context.Context, pulseID, respondentID, text string) (*models.Response, error) {
	return s.record(ctx, pulseID, respondentID, strings.TrimSpace(text))
}

// SubmitAnswers stores a multi-question submission as one response, with
// each answer paired to its question.
func (s *ResponseService) SubmitAnswers(ctx context.Context, pulseID, respondentID string, questions, answers []string) (*models.Response, error) {
	return s.record(ctx, pulseID, respondentID, ComposeResponseText(questions, answers))
}

func (s *ResponseService) record(ctx context.Context, pulseID, respondentID, text string) (*models.Response, error) {
	if pulseID == "" {
		return nil, ErrPulseIDRequired
	}
	if text == "" {
		return nil, ErrEmptyResponse
	}
	if respondentID == "" {
		respondentID = anonymousRespondent
	}

	p, err := s.store.GetPulse(ctx, pulseID)
	if errors.Is(err, store.ErrPulseNotFound) {
		// A survey link can outlive its pulse row when the primary store was
		// degraded at creation time. Accept the response anyway.
		p, err = s.ensurePulse(ctx, pulseID)
	}
	if err != nil {
		return nil, err
	}

	if p.HasAnalysis {
		return nil, ErrPulseClosed
	}
	if len(p.RecipientEmails) > 0 && p.ResponseCount >= len(p.RecipientEmails) {
		return nil, ErrPulseClosed
	}

	r := &models.Response{
		ID:           s.idGenerator(),
		PulseID:      pulseID,
		RespondentID: respondentID,
		Text:         text,
		CreatedAt:    s.now(),
	}
	if err := s.store.AddResponse(ctx, r); err != nil {
		return nil, err
	}

	if err := s.recount(ctx, pulseID); err != nil {
		s.log.WithError(err).WithField("pulse_id", pulseID).Warn("response count refresh failed")
	}
	return r, nil
}

// List returns a pulse's raw responses. Once the pulse is analyzed the rows
// are purged, so this is empty for analyzed pulses.
func (s *ResponseService) List(ctx context.Context, pulseID string) ([]*models.Response, error) {
	if pulseID == "" {
		return nil, ErrPulseIDRequired
	}
	return s.store.ListResponses(ctx, pulseID)
}

// recount derives the stored count from the response rows instead of
// incrementing, so replays and concurrent submissions converge.
func (s *ResponseService) recount(ctx context.Context, pulseID string) error {
	count, err := s.store.CountResponses(ctx, pulseID)
	if err != nil {
		return err
	}
	now := s.now()
	_, err = s.store.UpdatePulse(ctx, pulseID, models.PulseUpdate{
		ResponseCount: &count,
		LastChecked:   &now,
	})
	return err
}

func (s *ResponseService) ensurePulse(ctx context.Context, pulseID string) (*models.Pulse, error) {
	now := s.now()
	p := &models.Pulse{
		ID:              pulseID,
		OwnerID:         DefaultOwnerID,
		CreatedAt:       now,
		RecipientEmails: []string{},
		SentEmails:      []string{},
		PendingEmails:   []string{},
		LastChecked:     now,
	}
	if err := s.store.CreatePulse(ctx, p); err != nil {
		return nil, err
	}
	s.log.WithField("pulse_id", pulseID).Warn("created placeholder pulse for orphaned response")
	return p, nil
}
