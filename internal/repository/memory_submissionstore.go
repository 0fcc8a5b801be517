package repository

import (
	"context"
	"sort"
	"sync"

	"furnace-optimizer/backend/pkg/models"
)

// DefaultListLimit caps ListBySession when no limit is given.
const DefaultListLimit = 50

// MemorySubmissionStore keeps submissions in process memory. It is used when
// no database is configured.
type MemorySubmissionStore struct {
	mu          sync.RWMutex
	submissions map[string]*models.Submission
}

// NewMemorySubmissionStore creates an empty store.
func NewMemorySubmissionStore() *MemorySubmissionStore {
	return &MemorySubmissionStore{submissions: make(map[string]*models.Submission)}
}

// Save saves a copy of the submission.
func (s *MemorySubmissionStore) Save(_ context.Context, sub *models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[sub.ID] = copySubmission(sub)
	return nil
}

// Get retrieves a submission by its ID.
func (s *MemorySubmissionStore) Get(_ context.Context, id string) (*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copySubmission(sub), nil
}

// ListBySession returns the newest submissions of a session first.
func (s *MemorySubmissionStore) ListBySession(_ context.Context, sessionID string, limit int) ([]*models.Submission, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.RLock()
	var out []*models.Submission
	for _, sub := range s.submissions {
		if sub.SessionID == sessionID {
			out = append(out, copySubmission(sub))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping always succeeds.
func (s *MemorySubmissionStore) Ping(context.Context) error {
	return nil
}

func copySubmission(sub *models.Submission) *models.Submission {
	c := *sub
	if sub.Prediction != nil {
		c.Prediction = append([]float64(nil), sub.Prediction...)
	}
	return &c
}
