package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"furnace-optimizer/backend/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS submissions (
	id             UUID PRIMARY KEY,
	session_id     TEXT NOT NULL,
	parameters     JSONB NOT NULL,
	outcome        TEXT NOT NULL,
	error_kind     TEXT NOT NULL DEFAULT '',
	message        TEXT NOT NULL DEFAULT '',
	prediction     JSONB,
	solution_count INT NOT NULL DEFAULT 0,
	started_at     TIMESTAMPTZ NOT NULL,
	completed_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS submissions_session_idx ON submissions (session_id, completed_at DESC);
`

const selectColumns = `id, session_id, parameters, outcome, error_kind, message, prediction, solution_count, started_at, completed_at`

// PostgresSubmissionStore is a PostgreSQL implementation of the SubmissionStore interface.
type PostgresSubmissionStore struct {
	db *pgxpool.Pool
}

// NewPostgresSubmissionStore creates a new PostgresSubmissionStore.
func NewPostgresSubmissionStore(db *pgxpool.Pool) *PostgresSubmissionStore {
	return &PostgresSubmissionStore{db: db}
}

// EnsureSchema creates the submissions table if it does not exist.
func (s *PostgresSubmissionStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create submissions schema: %w", err)
	}
	return nil
}

// Save saves a submission to the store.
func (s *PostgresSubmissionStore) Save(ctx context.Context, sub *models.Submission) error {
	parameters, err := json.Marshal(sub.Parameters)
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}
	var prediction []byte
	if sub.Prediction != nil {
		if prediction, err = json.Marshal(sub.Prediction); err != nil {
			return fmt.Errorf("failed to marshal prediction: %w", err)
		}
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO submissions (`+selectColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sub.ID, sub.SessionID, parameters, string(sub.Outcome), sub.ErrorKind, sub.Message,
		prediction, sub.SolutionCount, sub.StartedAt, sub.CompletedAt,
	)
	return err
}

// Get retrieves a submission by its ID.
func (s *PostgresSubmissionStore) Get(ctx context.Context, id string) (*models.Submission, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM submissions WHERE id = $1`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sub, err
}

// ListBySession returns the newest submissions of a session first.
func (s *PostgresSubmissionStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.Submission, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+selectColumns+` FROM submissions WHERE session_id = $1 ORDER BY completed_at DESC LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var submissions []*models.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, sub)
	}
	return submissions, rows.Err()
}

// Ping checks the database connection.
func (s *PostgresSubmissionStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func scanSubmission(row pgx.Row) (*models.Submission, error) {
	var (
		sub        models.Submission
		outcome    string
		parameters []byte
		prediction []byte
	)
	err := row.Scan(&sub.ID, &sub.SessionID, &parameters, &outcome, &sub.ErrorKind, &sub.Message,
		&prediction, &sub.SolutionCount, &sub.StartedAt, &sub.CompletedAt)
	if err != nil {
		return nil, err
	}
	sub.Outcome = models.Outcome(outcome)
	if err := json.Unmarshal(parameters, &sub.Parameters); err != nil {
		return nil, fmt.Errorf("failed to decode parameters: %w", err)
	}
	if prediction != nil {
		if err := json.Unmarshal(prediction, &sub.Prediction); err != nil {
			return nil, fmt.Errorf("failed to decode prediction: %w", err)
		}
	}
	return &sub, nil
}
