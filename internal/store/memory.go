package store

import (
	"context"
	"sort"
	"sync"

	"github.com/heartbeathq/heartbeat/internal/models"
)

// MemoryStore keeps everything in process memory. It backs the local
// fallback path when no durable store is configured and is lost on restart
// by design.
type MemoryStore struct {
	mu        sync.RWMutex
	pulses    map[string]*models.Pulse
	responses []*models.Response
	analyses  map[string]*models.Analysis
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pulses:   map[string]*models.Pulse{},
		analyses: map[string]*models.Analysis{},
	}
}

var _ Store = (*MemoryStore)(nil)

func clonePulse(p *models.Pulse) *models.Pulse {
	cp := *p
	cp.RecipientEmails = append([]string(nil), p.RecipientEmails...)
	cp.SentEmails = append([]string(nil), p.SentEmails...)
	cp.PendingEmails = append([]string(nil), p.PendingEmails...)
	cp.CustomQuestions = append([]string(nil), p.CustomQuestions...)
	return &cp
}

func (s *MemoryStore) CreatePulse(_ context.Context, p *models.Pulse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulses[p.ID] = clonePulse(p)
	return nil
}

func (s *MemoryStore) GetPulse(_ context.Context, id string) (*models.Pulse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pulses[id]
	if !ok {
		return nil, ErrPulseNotFound
	}
	return clonePulse(p), nil
}

func (s *MemoryStore) ListPulses(_ context.Context, ownerID string) ([]*models.Pulse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Pulse, 0, len(s.pulses))
	for _, p := range s.pulses {
		if ownerID != "" && p.OwnerID != ownerID {
			continue
		}
		out = append(out, clonePulse(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdatePulse(_ context.Context, id string, upd models.PulseUpdate) (*models.Pulse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pulses[id]
	if !ok {
		return nil, ErrPulseNotFound
	}
	upd.Apply(p)
	return clonePulse(p), nil
}

func (s *MemoryStore) DeletePulse(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pulses[id]; !ok {
		return ErrPulseNotFound
	}
	delete(s.analyses, id)
	nr := make([]*models.Response, 0, len(s.responses))
	for _, r := range s.responses {
		if r.PulseID != id {
			nr = append(nr, r)
		}
	}
	s.responses = nr
	delete(s.pulses, id)
	return nil
}

func (s *MemoryStore) AddResponse(_ context.Context, r *models.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *r
	s.responses = append(s.responses, &cp)
	return nil
}

func (s *MemoryStore) ListResponses(_ context.Context, pulseID string) ([]*models.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Response{}
	for _, r := range s.responses {
		if r.PulseID == pulseID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) CountResponses(_ context.Context, pulseID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.responses {
		if r.PulseID == pulseID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteResponses(_ context.Context, pulseID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	nr := make([]*models.Response, 0, len(s.responses))
	for _, r := range s.responses {
		if r.PulseID == pulseID {
			removed++
			continue
		}
		nr = append(nr, r)
	}
	s.responses = nr
	return removed, nil
}

func (s *MemoryStore) GetAnalysis(_ context.Context, pulseID string) (*models.Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.analyses[pulseID]
	if !ok {
		return nil, ErrAnalysisNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) UpsertAnalysis(_ context.Context, a *models.Analysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.analyses[a.PulseID]; ok {
		existing.Content = a.Content
		existing.UpdatedAt = a.UpdatedAt
		return nil
	}
	cp := *a
	s.analyses[a.PulseID] = &cp
	return nil
}
