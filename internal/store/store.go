package store

import (
	"context"
	"errors"

	"github.com/heartbeathq/heartbeat/internal/models"
)

var (
	// ErrPulseNotFound is returned when a pulse id has no row.
	ErrPulseNotFound = errors.New("pulse not found")
	// ErrAnalysisNotFound is returned when a pulse has no stored analysis.
	ErrAnalysisNotFound = errors.New("analysis not found")
)

// Store is the persistence contract for pulses, responses and analyses.
// Implementations are selected at startup; business logic never branches on
// which one is active.
type Store interface {
	CreatePulse(ctx context.Context, p *models.Pulse) error
	GetPulse(ctx context.Context, id string) (*models.Pulse, error)
	// ListPulses returns the owner's pulses newest-first. An empty ownerID
	// lists every pulse.
	ListPulses(ctx context.Context, ownerID string) ([]*models.Pulse, error)
	UpdatePulse(ctx context.Context, id string, upd models.PulseUpdate) (*models.Pulse, error)
	// DeletePulse cascades: analysis rows, then response rows, then the
	// pulse row, in that order.
	DeletePulse(ctx context.Context, id string) error

	AddResponse(ctx context.Context, r *models.Response) error
	ListResponses(ctx context.Context, pulseID string) ([]*models.Response, error)
	CountResponses(ctx context.Context, pulseID string) (int, error)
	DeleteResponses(ctx context.Context, pulseID string) (int, error)

	GetAnalysis(ctx context.Context, pulseID string) (*models.Analysis, error)
	UpsertAnalysis(ctx context.Context, a *models.Analysis) error
}
