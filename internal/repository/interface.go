package repository

import (
	"context"
	"errors"

	"furnace-optimizer/backend/pkg/models"
)

// ErrNotFound is returned when a submission does not exist.
var ErrNotFound = errors.New("submission not found")

// SubmissionStore is an interface for storing and retrieving completed
// prediction submissions.
type SubmissionStore interface {
	// Save stores a completed submission.
	Save(ctx context.Context, submission *models.Submission) error
	// Get retrieves a submission by its ID.
	Get(ctx context.Context, id string) (*models.Submission, error)
	// ListBySession returns the newest submissions of a session first.
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.Submission, error)
	// Ping checks the store is reachable.
	Ping(ctx context.Context) error
}
