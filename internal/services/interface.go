package services

import (
	"context"

	"furnace-optimizer/backend/pkg/models"

	"golang.org/x/oauth2"
)

// OptimizerClient submits process parameters to the remote optimization
// service.
type OptimizerClient interface {
	// Predict makes at most one remote attempt and returns the decoded result
	// or one of the typed errors in this package.
	Predict(ctx context.Context, params models.ProcessParameters, credential models.Credential) (*models.PredictionResult, error)
}

// IdentityClient talks to the identity service that issues bearer tokens.
type IdentityClient interface {
	Login(ctx context.Context, username, password string) (*oauth2.Token, error)
	Register(ctx context.Context, username, password, email string) error
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
