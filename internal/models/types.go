package models

import "time"

// PulseState is the derived lifecycle position of a pulse. It is computed
// from the stored fields, never persisted.
type PulseState string

const (
	StateCreated           PulseState = "created"
	StateSending           PulseState = "sending"
	StateAwaitingResponses PulseState = "awaiting_responses"
	StateReadyForAnalysis  PulseState = "ready_for_analysis"
	StateAnalyzed          PulseState = "analyzed"
)

// Pulse is one survey campaign sent to a fixed recipient list.
type Pulse struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"ownerId"`
	Name            string    `json:"name,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	RecipientEmails []string  `json:"emails"`
	SentEmails      []string  `json:"sentEmails"`
	PendingEmails   []string  `json:"pendingEmails"`
	CustomQuestions []string  `json:"customQuestions,omitempty"`
	ResponseCount   int       `json:"responseCount"`
	HasAnalysis     bool      `json:"hasAnalysis"`
	AnalysisContent string    `json:"analysisContent,omitempty"`
	LastChecked     time.Time `json:"lastChecked"`
}

// State derives the lifecycle position from the stored fields.
func (p *Pulse) State() PulseState {
	switch {
	case p.HasAnalysis:
		return StateAnalyzed
	case len(p.PendingEmails) > 0:
		return StateSending
	case len(p.RecipientEmails) > 0 && p.ResponseCount >= len(p.RecipientEmails):
		return StateReadyForAnalysis
	case len(p.SentEmails) > 0:
		return StateAwaitingResponses
	default:
		return StateCreated
	}
}

// Responded reports whether every recipient answered. After analysis the raw
// response rows are gone, so this is inferred from the stored count alone;
// it cannot distinguish a partial set whose rows were deleted early.
func (p *Pulse) Responded() bool {
	return len(p.RecipientEmails) > 0 && p.ResponseCount >= len(p.RecipientEmails)
}

// Response is a single anonymous free-text submission for a pulse. The
// respondent id identifies which invitee replied for server-side matching
// only and never serializes.
type Response struct {
	ID           string    `json:"id"`
	PulseID      string    `json:"pulseId"`
	RespondentID string    `json:"-"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"timestamp"`
}

// Analysis is the generated HTML summary of a pulse's responses. At most one
// exists per pulse.
type Analysis struct {
	PulseID   string    `json:"pulseId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PulseUpdate carries a partial mutation of a pulse. Nil pointer fields and
// nil slices are left untouched.
type PulseUpdate struct {
	Name            *string
	RecipientEmails []string
	SentEmails      []string
	PendingEmails   []string
	ResponseCount   *int
	HasAnalysis     *bool
	AnalysisContent *string
	LastChecked     *time.Time
}

// Apply merges the update into the pulse in place.
func (u PulseUpdate) Apply(p *Pulse) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.RecipientEmails != nil {
		p.RecipientEmails = u.RecipientEmails
	}
	if u.SentEmails != nil {
		p.SentEmails = u.SentEmails
	}
	if u.PendingEmails != nil {
		p.PendingEmails = u.PendingEmails
	}
	if u.ResponseCount != nil {
		p.ResponseCount = *u.ResponseCount
	}
	if u.HasAnalysis != nil {
		p.HasAnalysis = *u.HasAnalysis
	}
	if u.AnalysisContent != nil {
		p.AnalysisContent = *u.AnalysisContent
	}
	if u.LastChecked != nil {
		p.LastChecked = *u.LastChecked
	}
}
