package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/heartbeathq/heartbeat/internal/logger"
	"github.com/heartbeathq/heartbeat/internal/models"
	"github.com/heartbeathq/heartbeat/internal/store"
)

// SQLiteStore is the durable local fallback: a per-deployment file that
// stands in for the hosted store when none is configured. It makes no
// multi-client consistency promises.
type SQLiteStore struct {
	db  *sql.DB
	log *logrus.Entry
}

func NewSQLiteStore(conn *sql.DB) (*SQLiteStore, error) {
	if conn == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := conn.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: conn, log: logger.Component("sqlite_store")}, nil
}

var _ store.Store = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS pulses (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL DEFAULT '1',
	name TEXT,
	created_at TIMESTAMP NOT NULL,
	recipient_emails TEXT,
	sent_emails TEXT,
	pending_emails TEXT,
	custom_questions TEXT,
	response_count INTEGER NOT NULL DEFAULT 0,
	has_analysis INTEGER NOT NULL DEFAULT 0,
	analysis_content TEXT,
	last_checked TIMESTAMP
);
CREATE TABLE IF NOT EXISTS responses (
	id TEXT PRIMARY KEY,
	pulse_id TEXT NOT NULL,
	respondent_id TEXT,
	response TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS responses_pulse_id_idx ON responses (pulse_id);
CREATE TABLE IF NOT EXISTS analyses (
	pulse_id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`

// EnsureSchema creates the tables when they do not exist yet.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("ensure sqlite schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreatePulse(ctx context.Context, p *models.Pulse) error {
	query := `INSERT INTO pulses (` + pulseColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.OwnerID, toNullString(p.Name), p.CreatedAt,
		encodeStrings(p.RecipientEmails), encodeStrings(p.SentEmails),
		encodeStrings(p.PendingEmails), encodeStrings(p.CustomQuestions),
		p.ResponseCount, p.HasAnalysis, toNullString(p.AnalysisContent), p.LastChecked)
	if err != nil {
		return fmt.Errorf("error creating pulse: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanPulse(scan func(dest ...any) error) (*models.Pulse, error) {
	p := &models.Pulse{}
	var name, recipients, sent, pending, questions, content sql.NullString
	var lastChecked sql.NullTime
	if err := scan(&p.ID, &p.OwnerID, &name, &p.CreatedAt, &recipients, &sent,
		&pending, &questions, &p.ResponseCount, &p.HasAnalysis, &content, &lastChecked); err != nil {
		return nil, err
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

func (s *SQLiteStore) GetPulse(ctx context.Context, id string) (*models.Pulse, error) {
	query := `SELECT ` + pulseColumns + ` FROM pulses WHERE id = ?`
	p, err := s.scanPulse(s.db.QueryRowContext(ctx, query, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrPulseNotFound
		}
		return nil, fmt.Errorf("error getting pulse: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) ListPulses(ctx context.Context, ownerID string) ([]*models.Pulse, error) {
	query := `SELECT ` + pulseColumns + ` FROM pulses`
	args := []any{}
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
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
		p, err := s.scanPulse(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("error scanning pulse row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdatePulse(ctx context.Context, id string, upd models.PulseUpdate) (*models.Pulse, error) {
	p, err := s.GetPulse(ctx, id)
	if err != nil {
		return nil, err
	}
	upd.Apply(p)

	query := `UPDATE pulses SET name = ?, recipient_emails = ?, sent_emails = ?, pending_emails = ?,
		response_count = ?, has_analysis = ?, analysis_content = ?, last_checked = ?
		WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query,
		toNullString(p.Name), encodeStrings(p.RecipientEmails), encodeStrings(p.SentEmails), encodeStrings(p.PendingEmails),
		p.ResponseCount, p.HasAnalysis, toNullString(p.AnalysisContent), p.LastChecked, id); err != nil {
		return nil, fmt.Errorf("error updating pulse: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) DeletePulse(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE pulse_id = ?`, id); err != nil {
		s.log.WithError(err).WithField("pulse_id", id).Error("deleting analyses during cascade")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM responses WHERE pulse_id = ?`, id); err != nil {
		s.log.WithError(err).WithField("pulse_id", id).Error("deleting responses during cascade")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM pulses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("error deleting pulse: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrPulseNotFound
	}
	return nil
}

func (s *SQLiteStore) AddResponse(ctx context.Context, r *models.Response) error {
	query := `INSERT INTO responses (id, pulse_id, respondent_id, response, created_at)
		VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, r.ID, r.PulseID, r.RespondentID, r.Text, r.CreatedAt); err != nil {
		return fmt.Errorf("error adding response: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListResponses(ctx context.Context, pulseID string) ([]*models.Response, error) {
	query := `SELECT id, pulse_id, respondent_id, response, created_at
		FROM responses WHERE pulse_id = ? ORDER BY created_at`
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

func (s *SQLiteStore) CountResponses(ctx context.Context, pulseID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM responses WHERE pulse_id = ?`, pulseID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("error counting responses: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) DeleteResponses(ctx context.Context, pulseID string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM responses WHERE pulse_id = ?`, pulseID)
	if err != nil {
		return 0, fmt.Errorf("error deleting responses: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) GetAnalysis(ctx context.Context, pulseID string) (*models.Analysis, error) {
	a := &models.Analysis{}
	query := `SELECT pulse_id, content, created_at, updated_at FROM analyses WHERE pulse_id = ?`
	err := s.db.QueryRowContext(ctx, query, pulseID).Scan(&a.PulseID, &a.Content, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("error getting analysis: %w", err)
	}
	return a, nil
}

func (s *SQLiteStore) UpsertAnalysis(ctx context.Context, a *models.Analysis) error {
	query := `INSERT INTO analyses (pulse_id, content, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (pulse_id) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, a.PulseID, a.Content, a.CreatedAt, a.UpdatedAt); err != nil {
		return fmt.Errorf("error upserting analysis: %w", err)
	}
	return nil
}
