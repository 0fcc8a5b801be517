package models

import "time"

// Credential is an opaque bearer token. Nothing in this module inspects its
// content.
type Credential string

// PredictionResult is the decoded /api/predict response.
type PredictionResult struct {
	Prediction []float64   `json:"prediction"`
	Message    string      `json:"message"`
	Variables  [][]float64 `json:"variables"`
	Solutions  [][]float64 `json:"solutions"`
}

// SolutionCount is the number of non-dominated solutions returned.
func (r *PredictionResult) SolutionCount() int {
	return len(r.Solutions)
}

// Clone returns a deep copy so callers can hand the result out without
// sharing backing arrays.
func (r *PredictionResult) Clone() *PredictionResult {
	if r == nil {
		return nil
	}
	return &PredictionResult{
		Prediction: cloneVector(r.Prediction),
		Message:    r.Message,
		Variables:  cloneMatrix(r.Variables),
		Solutions:  cloneMatrix(r.Solutions),
	}
}

func cloneVector(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

func cloneMatrix(m [][]float64) [][]float64 {
	if m == nil {
		return nil
	}
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = cloneVector(row)
	}
	return out
}

// Outcome is the terminal phase a submission ended in.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Submission is the history record of one completed request cycle.
type Submission struct {
	ID            string            `json:"id"`
	SessionID     string            `json:"session_id"`
	Parameters    ProcessParameters `json:"parameters"`
	Outcome       Outcome           `json:"outcome"`
	ErrorKind     string            `json:"error_kind,omitempty"`
	Message       string            `json:"message"`
	Prediction    []float64         `json:"prediction,omitempty"`
	SolutionCount int               `json:"solution_count"`
	StartedAt     time.Time         `json:"started_at"`
	CompletedAt   time.Time         `json:"completed_at"`
}
