package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/heartbeathq/heartbeat/internal/logger"
	"github.com/heartbeathq/heartbeat/internal/models"
	"github.com/heartbeathq/heartbeat/internal/store"
)

// PostgresStore is the hosted primary store.
type PostgresStore struct {
	db  *sql.DB
	log *logrus.Entry
}

func NewPostgresStore(conn *sql.DB) *PostgresStore {
	return &PostgresStore{db: conn, log: logger.Component("postgres_store")}
}

var _ store.Store = (*PostgresStore)(nil)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS pulses (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL DEFAULT '1',
	name TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	recipient_emails TEXT,
	sent_emails TEXT,
	pending_emails TEXT,
	custom_questions TEXT,
	response_count INTEGER NOT NULL DEFAULT 0,
	has_analysis BOOLEAN NOT NULL DEFAULT FALSE,
	analysis_content TEXT,
	last_checked TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS responses (
	id TEXT PRIMARY KEY,
	pulse_id TEXT NOT NULL,
	respondent_id TEXT,
	response TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS responses_pulse_id_idx ON responses (pulse_id);
CREATE TABLE IF NOT EXISTS analyses (
	pulse_id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`

// EnsureSchema creates the tables when they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure postgres schema: %w", err)
	}
	return nil
}

const pulseColumns = `id, owner_id, name, created_at, recipient_emails, sent_emails,
	pending_emails, custom_questions, response_count, has_analysis, analysis_content, last_checked`

func (s *PostgresStore) CreatePulse(ctx context.Context, p *models.Pulse) error {
	query := `INSERT INTO pulses (` + pulseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.OwnerID, toNullString(p.Name), p.CreatedAt,
		encodeStrings(p.RecipientEmails), encodeStrings(p.SentEmails),
		encodeStrings(p.PendingEmails), encodeStrings(p.CustomQuestions),
		p.ResponseCount, p.HasAnalysis, toNullString(p.AnalysisContent), p.LastChecked)
	if err == nil {
		return nil
	}
	if !isUndefinedColumn(err) {
		return fmt.Errorf("error creating pulse: %w", err)
	}

	// The deployed schema predates the optional columns. Retry with the
	// core field set so the pulse is not lost; name and the pending/sent
	// partition are dropped but id, owner, timestamps, recipient list and
	// counters survive.
	s.log.WithField("pulse_id", p.ID).Warn("schema missing optional columns, inserting core fields only")
	reduced := `INSERT INTO pulses (id, owner_id, created_at, recipient_emails, response_count, has_analysis)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, rerr := s.db.ExecContext(ctx, reduced,
		p.ID, p.OwnerID, p.CreatedAt, encodeStrings(p.RecipientEmails),
		p.ResponseCount, p.HasAnalysis); rerr != nil {
		return fmt.Errorf("error creating pulse with core fields: %w", rerr)
	}
	return nil
}

func isUndefinedColumn(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "42703"
}

func (s *PostgresStore) scanPulse(row *sql.Row) (*models.Pulse, error) {
	p := &models.Pulse{}
	var name, recipients, sent, pending, questions, content sql.NullString
	var lastChecked sql.NullTime
	err := row.Scan(&p.ID, &p.OwnerID, &name, &p.CreatedAt, &recipients, &sent,
		&pending, &questions, &p.ResponseCount, &p.HasAnalysis, &content, &lastChecked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrPulseNotFound
		}
		return nil, fmt.Errorf("error scanning pulse: %w", err)
	}
	p.Name = name.String
	p.RecipientEmails = decodeStrings(recipients, s.log)
	p.SentEmails = decodeStrings(sent, s.log)
	p.PendingEmails = decodeStrings(pending, s.log)
	p.CustomQuestions = decodeStrings(questions, s.log)
	p.AnalysisContent = content.String
	if lastChecked.Valid {
		p.LastChecked = lastChecked.Time
	}
	return p, nil
}

func (s *PostgresStore) GetPulse(ctx context.Context, id string) (*models.Pulse, error) {
	query := `SELECT ` + pulseColumns + ` FROM pulses WHERE id = $1`
	return s.scanPulse(s.db.QueryRowContext(ctx, query, id))
}

func (s *PostgresStore) ListPulses(ctx context.Context, ownerID string) ([]*models.Pulse, error) {
	query := `SELECT ` + pulseColumns + ` FROM pulses`
	args := []any{}
	if ownerID != "" {
		query += ` WHERE owner_id = $1`
		args = append(args, ownerID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing pulses: %w", err)
	}
	defer rows.Close()

	out := []*models.Pulse{}
	for rows.Next() {
		p := &models.Pulse{}
		var name, recipients, sent, pending, questions, content sql.NullString
		var lastChecked sql.NullTime
		if err := rows.Scan(&p.ID, &p.OwnerID, &name, &p.CreatedAt, &recipients, &sent,
			&pending, &questions, &p.ResponseCount, &p.HasAnalysis, &content, &lastChecked); err != nil {
			return nil, fmt.Errorf("error scanning pulse row: %w", err)
		}
		p.Name = name.String
		p.RecipientEmails = decodeStrings(recipients, s.log)
		p.SentEmails = decodeStrings(sent, s.log)
		p.PendingEmails = decodeStrings(pending, s.log)
		p.CustomQuestions = decodeStrings(questions, s.log)
		p.AnalysisContent = content.String
		if lastChecked.Valid {
			p.LastChecked = lastChecked.Time
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePulse reads, merges and writes back the row. Concurrent updates are
// last-write-wins at row granularity.
func (s *PostgresStore) UpdatePulse(ctx context.Context, id string, upd models.PulseUpdate) (*models.Pulse, error) {
	p, err := s.GetPulse(ctx, id)
	if err != nil {
		return nil, err
	}
	upd.Apply(p)

	query := `UPDATE pulses SET name = $1, recipient_emails = $2, sent_emails = $3, pending_emails = $4,
		response_count = $5, has_analysis = $6, analysis_content = $7, last_checked = $8
		WHERE id = $9`
	if _, err := s.db.ExecContext(ctx, query,
		toNullString(p.Name), encodeStrings(p.RecipientEmails), encodeStrings(p.SentEmails), encodeStrings(p.PendingEmails),
		p.ResponseCount, p.HasAnalysis, toNullString(p.AnalysisContent), p.LastChecked, id); err != nil {
		return nil, fmt.Errorf("error updating pulse: %w", err)
	}
	return p, nil
}

// DeletePulse cascades as three sequential deletes: analyses, responses,
// then the pulse row. Failures on the first two are logged and do not block
// the rest; the final delete decides the outcome.
func (s *PostgresStore) DeletePulse(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE pulse_id = $1`, id); err != nil {
		s.log.WithError(err).WithField("pulse_id", id).Error("deleting analyses during cascade")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM responses WHERE pulse_id = $1`, id); err != nil {
		s.log.WithError(err).WithField("pulse_id", id).Error("deleting responses during cascade")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM pulses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("error deleting pulse: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrPulseNotFound
	}
	return nil
}

func (s *PostgresStore) AddResponse(ctx context.Context, r *models.Response) error {
	query := `INSERT INTO responses (id, pulse_id, respondent_id, response, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.ExecContext(ctx, query, r.ID, r.PulseID, r.RespondentID, r.Text, r.CreatedAt); err != nil {
		return fmt.Errorf("error adding response: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListResponses(ctx context.Context, pulseID string) ([]*models.Response, error) {
	query := `SELECT id, pulse_id, respondent_id, response, created_at
		FROM responses WHERE pulse_id = $1 ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, pulseID)
	if err != nil {
		return nil, fmt.Errorf("error listing responses: %w", err)
	}
	defer rows.Close()

	out := []*models.Response{}
	for rows.Next() {
		r := &models.Response{}
		var respondent sql.NullString
		if err := rows.Scan(&r.ID, &r.PulseID, &respondent, &r.Text, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning response row: %w", err)
		}
		r.RespondentID = respondent.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountResponses(ctx context.Context, pulseID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM responses WHERE pulse_id = $1`, pulseID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("error counting responses: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) DeleteResponses(ctx context.Context, pulseID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM responses WHERE pulse_id = $1`, pulseID)
	if err != nil {
		return 0, fmt.Errorf("error deleting responses: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, pulseID string) (*models.Analysis, error) {
	a := &models.Analysis{}
	query := `SELECT pulse_id, content, created_at, updated_at FROM analyses WHERE pulse_id = $1`
	err := s.db.QueryRowContext(ctx, query, pulseID).Scan(&a.PulseID, &a.Content, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("error getting analysis: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) UpsertAnalysis(ctx context.Context, a *models.Analysis) error {
	query := `INSERT INTO analyses (pulse_id, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pulse_id) DO UPDATE SET content = EXCLUDED.content, updated_at = EXCLUDED.updated_at`
	if _, err := s.db.ExecContext(ctx, query, a.PulseID, a.Content, a.CreatedAt, a.UpdatedAt); err != nil {
		return fmt.Errorf("error upserting analysis: %w", err)
	}
	return nil
}
