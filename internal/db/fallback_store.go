package db

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/heartbeathq/heartbeat/internal/logger"
	"github.com/heartbeathq/heartbeat/internal/models"
	"github.com/heartbeathq/heartbeat/internal/store"
)

// FallbackStore routes every operation to the primary store and degrades to
// the local fallback when the primary fails. Degraded operations succeed
// with a warning flag instead of surfacing an error; the exception is
// DeletePulse, whose primary failure is reported to the caller so a pulse is
// never "deleted" while its hosted row survives.
type FallbackStore struct {
	primary  store.Store
	fallback store.Store
	degraded atomic.Bool
	log      *logrus.Entry
}

func NewFallbackStore(primary, fallback store.Store) *FallbackStore {
	return &FallbackStore{
		primary:  primary,
		fallback: fallback,
		log:      logger.Component("fallback_store"),
	}
}

var _ store.Store = (*FallbackStore)(nil)

// Degraded reports whether any operation has fallen back since startup.
func (s *FallbackStore) Degraded() bool { return s.degraded.Load() }

// definitive reports whether the primary error is an answer rather than an
// outage. Not-found sentinels must not trigger the fallback path: the
// primary store was reachable and simply has no such row.
func definitive(err error) bool {
	return errors.Is(err, store.ErrPulseNotFound) || errors.Is(err, store.ErrAnalysisNotFound)
}

func (s *FallbackStore) degrade(op string, err error) {
	s.degraded.Store(true)
	s.log.WithError(err).WithField("op", op).Warn("primary store failed, using fallback")
}

func (s *FallbackStore) CreatePulse(ctx context.Context, p *models.Pulse) error {
	if err := s.primary.CreatePulse(ctx, p); err != nil {
		s.degrade("create_pulse", err)
		return s.fallback.CreatePulse(ctx, p)
	}
	return nil
}

func (s *FallbackStore) GetPulse(ctx context.Context, id string) (*models.Pulse, error) {
	p, err := s.primary.GetPulse(ctx, id)
	if err != nil && !definitive(err) {
		s.degrade("get_pulse", err)
		return s.fallback.GetPulse(ctx, id)
	}
	return p, err
}

func (s *FallbackStore) ListPulses(ctx context.Context, ownerID string) ([]*models.Pulse, error) {
	ps, err := s.primary.ListPulses(ctx, ownerID)
	if err != nil {
		s.degrade("list_pulses", err)
		return s.fallback.ListPulses(ctx, ownerID)
	}
	return ps, nil
}

func (s *FallbackStore) UpdatePulse(ctx context.Context, id string, upd models.PulseUpdate) (*models.Pulse, error) {
	p, err := s.primary.UpdatePulse(ctx, id, upd)
	if err != nil && !definitive(err) {
		s.degrade("update_pulse", err)
		return s.fallback.UpdatePulse(ctx, id, upd)
	}
	return p, err
}

func (s *FallbackStore) DeletePulse(ctx context.Context, id string) error {
	return s.primary.DeletePulse(ctx, id)
}

func (s *FallbackStore) AddResponse(ctx context.Context, r *models.Response) error {
	if err := s.primary.AddResponse(ctx, r); err != nil {
		s.degrade("add_response", err)
		return s.fallback.AddResponse(ctx, r)
	}
	return nil
}

func (s *FallbackStore) ListResponses(ctx context.Context, pulseID string) ([]*models.Response, error) {
	rs, err := s.primary.ListResponses(ctx, pulseID)
	if err != nil {
		s.degrade("list_responses", err)
		return s.fallback.ListResponses(ctx, pulseID)
	}
	return rs, nil
}

func (s *FallbackStore) CountResponses(ctx context.Context, pulseID string) (int, error) {
	n, err := s.primary.CountResponses(ctx, pulseID)
	if err != nil {
		s.degrade("count_responses", err)
		return s.fallback.CountResponses(ctx, pulseID)
	}
	return n, nil
}

func (s *FallbackStore) DeleteResponses(ctx context.Context, pulseID string) (int, error) {
	n, err := s.primary.DeleteResponses(ctx, pulseID)
	if err != nil {
		s.degrade("delete_responses", err)
		return s.fallback.DeleteResponses(ctx, pulseID)
	}
	return n, nil
}

func (s *FallbackStore) GetAnalysis(ctx context.Context, pulseID string) (*models.Analysis, error) {
	a, err := s.primary.GetAnalysis(ctx, pulseID)
	if err != nil && !definitive(err) {
		s.degrade("get_analysis", err)
		return s.fallback.GetAnalysis(ctx, pulseID)
	}
	return a, err
}

func (s *FallbackStore) UpsertAnalysis(ctx context.Context, a *models.Analysis) error {
	if err := s.primary.UpsertAnalysis(ctx, a); err != nil {
		s.degrade("upsert_analysis", err)
		return s.fallback.UpsertAnalysis(ctx, a)
	}
	return nil
}
