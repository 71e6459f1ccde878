package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/callcore-ai/callcore/pkg/ports"
)

// PostgresCallRepository implements ports.CallRepository.
type PostgresCallRepository struct {
	db DB
}

func NewPostgresCallRepository(db DB) *PostgresCallRepository {
	return &PostgresCallRepository{db: db}
}

var _ ports.CallRepository = (*PostgresCallRepository)(nil)

func (r *PostgresCallRepository) CreateCall(ctx context.Context, rec ports.CallRecord) (string, error) {
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	extracted, err := json.Marshal(emptyMap(rec.ExtractedData))
	if err != nil {
		return "", fmt.Errorf("repository: marshal extracted_data: %w", err)
	}

	const query = `
		INSERT INTO calls (id, session_id, client_type, start_time, status, extracted_data)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.Exec(ctx, query, id, rec.SessionID, rec.ClientType, rec.StartTime, "active", extracted); err != nil {
		return "", fmt.Errorf("repository: create call: %w", err)
	}
	return id, nil
}

func (r *PostgresCallRepository) EndCall(ctx context.Context, id string, status string, extracted map[string]any) error {
	data, err := json.Marshal(emptyMap(extracted))
	if err != nil {
		return fmt.Errorf("repository: marshal extracted_data: %w", err)
	}
	const query = `
		UPDATE calls SET status = $2, end_time = $3, extracted_data = $4
		WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, id, status, time.Now(), data); err != nil {
		return fmt.Errorf("repository: end call %q: %w", id, err)
	}
	return nil
}

// PostgresTranscriptRepository implements ports.TranscriptRepository.
type PostgresTranscriptRepository struct {
	db DB
}

func NewPostgresTranscriptRepository(db DB) *PostgresTranscriptRepository {
	return &PostgresTranscriptRepository{db: db}
}

var _ ports.TranscriptRepository = (*PostgresTranscriptRepository)(nil)

func (r *PostgresTranscriptRepository) Append(ctx context.Context, entry ports.TranscriptEntry) error {
	const query = `
		INSERT INTO transcripts (call_id, role, content, ts)
		VALUES ($1, $2, $3, $4)`
	if _, err := r.db.Exec(ctx, query, entry.CallID, string(entry.Role), entry.Content, entry.Timestamp); err != nil {
		return fmt.Errorf("repository: append transcript: %w", err)
	}
	return nil
}

// PostgresConfigRepository implements ports.ConfigRepository.
type PostgresConfigRepository struct {
	db DB
}

func NewPostgresConfigRepository(db DB) *PostgresConfigRepository {
	return &PostgresConfigRepository{db: db}
}

var _ ports.ConfigRepository = (*PostgresConfigRepository)(nil)

func (r *PostgresConfigRepository) Get(ctx context.Context, agentID string) ([]byte, error) {
	const query = `SELECT body FROM agent_configs WHERE agent_id = $1`
	var body []byte
	err := r.db.QueryRow(ctx, query, agentID).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("repository: no config for agent %q", agentID)
		}
		return nil, fmt.Errorf("repository: get config %q: %w", agentID, err)
	}
	return body, nil
}

// PostgresCRMRepository implements ports.CRMRepository.
type PostgresCRMRepository struct {
	db DB
}

func NewPostgresCRMRepository(db DB) *PostgresCRMRepository {
	return &PostgresCRMRepository{db: db}
}

var _ ports.CRMRepository = (*PostgresCRMRepository)(nil)

func (r *PostgresCRMRepository) Lookup(ctx context.Context, phoneNumber string) (ports.CRMContext, error) {
	const query = `SELECT notes FROM crm_contexts WHERE phone_number = $1`
	var notes string
	err := r.db.QueryRow(ctx, query, phoneNumber).Scan(&notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return ports.CRMContext{PhoneNumber: phoneNumber, Found: false}, nil
	}
	if err != nil {
		return ports.CRMContext{}, fmt.Errorf("repository: crm lookup %q: %w", phoneNumber, err)
	}
	return ports.CRMContext{PhoneNumber: phoneNumber, Notes: notes, Found: true}, nil
}

func (r *PostgresCRMRepository) UpdateStatus(ctx context.Context, phoneNumber, status string) error {
	const query = `
		INSERT INTO crm_contexts (phone_number, status, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (phone_number) DO UPDATE SET status = EXCLUDED.status, updated_at = now()`
	if _, err := r.db.Exec(ctx, query, phoneNumber, status); err != nil {
		return fmt.Errorf("repository: update crm status %q: %w", phoneNumber, err)
	}
	return nil
}

func emptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
