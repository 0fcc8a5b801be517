// Package workflow drives one operator's request cycle: validate the form,
// call the optimization service, interpret the result, and publish the
// resulting state.
package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"furnace-optimizer/backend/internal/params"
	"furnace-optimizer/backend/internal/results"
	"furnace-optimizer/backend/internal/services"
	"furnace-optimizer/backend/pkg/models"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// ErrSubmissionInFlight is returned when a submit arrives while another is
// still Submitting.
var ErrSubmissionInFlight = errors.New("a submission is already in flight")

// SessionHolder owns the operator's bearer credential.
type SessionHolder interface {
	CurrentToken() (models.Credential, bool)
	Invalidate()
}

// SubmissionRecorder persists completed request cycles.
type SubmissionRecorder interface {
	Save(ctx context.Context, submission *models.Submission) error
}

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithRecorder persists every completed cycle to r.
func WithRecorder(r SubmissionRecorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithSessionID tags recorded submissions with the owning session.
func WithSessionID(id string) Option {
	return func(c *Controller) { c.sessionID = id }
}

// Controller is the request workflow state machine. No state is terminal;
// every submit starts a fresh Submitting cycle and discards the previous
// result.
type Controller struct {
	form      *params.Form
	client    services.OptimizerClient
	session   SessionHolder
	recorder  SubmissionRecorder
	logger    Logger
	sessionID string
	now       func() time.Time

	inflight *semaphore.Weighted

	mu      sync.RWMutex
	state   State
	subs    map[int]chan State
	nextSub int
}

// NewController creates a controller in the Idle phase.
func NewController(form *params.Form, client services.OptimizerClient, session SessionHolder, opts ...Option) *Controller {
	c := &Controller{
		form:     form,
		client:   client,
		session:  session,
		logger:   nopLogger{},
		now:      time.Now,
		inflight: semaphore.NewWeighted(1),
		subs:     make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state = State{Phase: PhaseIdle, UpdatedAt: c.now()}
	return c
}

// Form returns the parameter form this controller submits.
func (c *Controller) Form() *params.Form {
	return c.form
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Subscribe returns a channel receiving every state change. A slow subscriber
// only ever sees the latest state. Call cancel to stop receiving.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

// Submit runs one request cycle and blocks until it completes. It returns
// ErrSubmissionInFlight without touching state if a cycle is already running.
func (c *Controller) Submit(ctx context.Context) (State, error) {
	return c.SubmitWith(ctx, nil)
}

// SubmitWith is Submit with values stored into the form first. The values are
// written only once the cycle owns the form, so concurrent callers never see
// each other's inputs.
func (c *Controller) SubmitWith(ctx context.Context, values map[string]string) (State, error) {
	run, err := c.begin(values)
	if err != nil {
		return c.State(), err
	}
	return run(ctx), nil
}

// Start enters Submitting and completes the cycle in the background. The
// cycle is detached from ctx cancellation so a finished HTTP request does not
// abort it.
func (c *Controller) Start(ctx context.Context) error {
	return c.StartWith(ctx, nil)
}

// StartWith is Start with values stored into the form first, as in SubmitWith.
func (c *Controller) StartWith(ctx context.Context, values map[string]string) error {
	run, err := c.begin(values)
	if err != nil {
		return err
	}
	go run(context.WithoutCancel(ctx))
	return nil
}

func (c *Controller) begin(values map[string]string) (func(context.Context) State, error) {
	if !c.inflight.TryAcquire(1) {
		return nil, ErrSubmissionInFlight
	}
	unfreeze, err := c.form.FreezeWith(values)
	if err != nil {
		c.inflight.Release(1)
		return nil, err
	}

	id := uuid.New().String()
	started := c.now()
	c.publish(State{Phase: PhaseSubmitting, SubmissionID: id, UpdatedAt: started})

	return func(ctx context.Context) State {
		defer c.inflight.Release(1)
		defer unfreeze()
		return c.run(ctx, id, started)
	}, nil
}

func (c *Controller) run(ctx context.Context, id string, started time.Time) State {
	p, err := c.form.Validate()
	if err != nil {
		c.logger.Debug("parameter validation failed", "submission_id", id, "error", err)
		return c.finish(ctx, id, started, p, nil, err)
	}

	token, ok := c.session.CurrentToken()
	if !ok {
		return c.finish(ctx, id, started, p, nil, &services.UnauthenticatedError{Reason: "no active session"})
	}

	result, err := c.client.Predict(ctx, p, token)
	if err == nil && result == nil {
		err = &services.MalformedResponseError{Reason: "empty result"}
	}
	return c.finish(ctx, id, started, p, result, err)
}

func (c *Controller) finish(ctx context.Context, id string, started time.Time, p models.ProcessParameters, result *models.PredictionResult, err error) State {
	next := State{SubmissionID: id, UpdatedAt: c.now()}
	submission := &models.Submission{
		ID:          id,
		SessionID:   c.sessionID,
		Parameters:  p,
		StartedAt:   started,
		CompletedAt: next.UpdatedAt,
	}

	if err != nil {
		next.Phase = PhaseFailed
		next.Err = err
		next.Error = FailureMessage(err)
		next.ErrorKind = failureKind(err)
		if services.IsAuthFailure(err) {
			c.session.Invalidate()
			next.ReauthRequired = true
		}
		submission.Outcome = models.OutcomeFailed
		submission.ErrorKind = next.ErrorKind
		submission.Message = next.Error
		c.logger.Info("submission failed", "submission_id", id, "kind", next.ErrorKind, "reauth_required", next.ReauthRequired)
	} else {
		display := results.Interpret(p, result)
		next.Phase = PhaseSucceeded
		next.Result = &display
		next.Prediction = result.Clone()
		submission.Outcome = models.OutcomeSucceeded
		submission.Message = result.Message
		submission.Prediction = append([]float64(nil), result.Prediction...)
		submission.SolutionCount = display.SolutionCount
		c.logger.Info("submission succeeded", "submission_id", id, "solutions", display.SolutionCount)
	}

	c.publish(next)
	c.record(ctx, submission)
	return next
}

func (c *Controller) record(ctx context.Context, s *models.Submission) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Save(context.WithoutCancel(ctx), s); err != nil {
		c.logger.Error("failed to record submission", "submission_id", s.ID, "error", err)
	}
}

func (c *Controller) publish(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
	for _, ch := range c.subs {
		select {
		case ch <- s:
		default:
			// Replace the unread state with the newer one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// FailureMessage is the single operator-facing message for err.
func FailureMessage(err error) string {
	var (
		verr     *params.ValidationError
		unauth   *services.UnauthenticatedError
		auth     *services.AuthenticationError
		rejected *services.RequestRejectedError
		down     *services.ServiceUnavailableError
		bad      *services.MalformedResponseError
	)
	switch {
	case errors.As(err, &verr):
		return verr.Error()
	case errors.As(err, &unauth):
		return "not signed in; please log in again"
	case errors.As(err, &auth):
		return "session expired or was rejected; please log in again"
	case errors.As(err, &rejected):
		return rejected.ServerMessage
	case errors.As(err, &down):
		return "optimization service is unavailable; please try again"
	case errors.As(err, &bad):
		return "optimization service returned an invalid response"
	default:
		return "an error occurred"
	}
}

func failureKind(err error) string {
	var verr *params.ValidationError
	if errors.As(err, &verr) {
		return "validation"
	}
	return services.ErrorKind(err)
}
