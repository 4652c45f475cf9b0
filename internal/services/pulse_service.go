package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heartbeathq/heartbeat/internal/models"
	"github.com/heartbeathq/heartbeat/internal/store"
)

// DefaultOwnerID stands in for a real operator identity when auth is
// disabled.
const DefaultOwnerID = "1"

var (
	// ErrNoRecipients is returned when a pulse is created without any
	// recipient address.
	ErrNoRecipients = errors.New("at least one recipient email is required")
	// ErrInvalidEmail is returned when a recipient address fails parsing.
	ErrInvalidEmail = errors.New("invalid recipient email")
)

// PulseStore abstracts the persistence operations PulseService needs.
type PulseStore interface {
	CreatePulse(ctx context.Context, p *models.Pulse) error
	GetPulse(ctx context.Context, id string) (*models.Pulse, error)
	ListPulses(ctx context.Context, ownerID string) ([]*models.Pulse, error)
	DeletePulse(ctx context.Context, id string) error
}

// PulseService owns pulse creation and the dashboard operations.
type PulseService struct {
	store       PulseStore
	now         func() time.Time
	idGenerator func() string
}

func NewPulseService(s PulseStore) *PulseService {
	return &PulseService{
		store:       s,
		now:         func() time.Time { return time.Now().UTC() },
		idGenerator: NewID,
	}
}

// NewID returns a short opaque identifier.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Create validates the recipient list and stores a new pulse with every
// recipient pending. The recipient set is fixed at creation.
func (s *PulseService) Create(ctx context.Context, ownerID, name string, emails, customQuestions []string) (*models.Pulse, error) {
	cleaned := make([]string, 0, len(emails))
	for _, e := range emails {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, err := mail.ParseAddress(e); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, e)
		}
		cleaned = append(cleaned, e)
	}
	if len(cleaned) == 0 {
		return nil, ErrNoRecipients
	}
	if ownerID == "" {
		ownerID = DefaultOwnerID
	}

	now := s.now()
	p := &models.Pulse{
		ID:              s.idGenerator(),
		OwnerID:         ownerID,
		Name:            strings.TrimSpace(name),
		CreatedAt:       now,
		RecipientEmails: cleaned,
		SentEmails:      []string{},
		PendingEmails:   append([]string(nil), cleaned...),
		CustomQuestions: customQuestions,
		LastChecked:     now,
	}
	if err := s.store.CreatePulse(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PulseService) Get(ctx context.Context, id string) (*models.Pulse, error) {
	return s.store.GetPulse(ctx, id)
}

// List returns the owner's pulses newest-first.
func (s *PulseService) List(ctx context.Context, ownerID string) ([]*models.Pulse, error) {
	return s.store.ListPulses(ctx, ownerID)
}

// Delete cascades the pulse, its analysis and any remaining responses.
func (s *PulseService) Delete(ctx context.Context, id string) error {
	return s.store.DeletePulse(ctx, id)
}

var _ PulseStore = (store.Store)(nil)
