package workflow

import (
	"time"

	"furnace-optimizer/backend/internal/results"
	"furnace-optimizer/backend/pkg/models"
)

// Phase is the workflow's current step.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// State is an immutable snapshot of the workflow. Exactly one phase is active;
// Result is set only when succeeded and Error only when failed.
type State struct {
	Phase        Phase                    `json:"phase"`
	SubmissionID string                   `json:"submission_id,omitempty"`
	Result       *results.DisplayResult   `json:"result,omitempty"`
	Prediction   *models.PredictionResult `json:"prediction,omitempty"`
	Error        string                   `json:"error,omitempty"`
	ErrorKind    string                   `json:"error_kind,omitempty"`
	// ReauthRequired signals the surrounding application that the operator
	// must log in again before resubmitting.
	ReauthRequired bool      `json:"reauth_required"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Err is the underlying failure, for callers that match on error type.
	Err error `json:"-"`
}
