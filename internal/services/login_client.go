package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	LoginPath    = "/api/login"
	RegisterPath = "/api/register"
)

// HTTPIdentityClient obtains bearer tokens from the identity service.
type HTTPIdentityClient struct {
	url        string
	tokenTTL   time.Duration
	httpClient *http.Client
	logger     Logger
	metrics    *clientMetrics
	now        func() time.Time
}

// NewHTTPIdentityClient creates a client for the identity service at baseURL.
// The service does not report token lifetimes, so tokenTTL is applied to every
// issued token; zero means the token never expires locally.
func NewHTTPIdentityClient(baseURL string, tokenTTL time.Duration, opts ...ClientOption) *HTTPIdentityClient {
	o := buildOptions(opts)
	return &HTTPIdentityClient{
		url:        strings.TrimRight(baseURL, "/"),
		tokenTTL:   tokenTTL,
		httpClient: o.httpClient,
		logger:     o.logger,
		metrics:    newClientMetrics(o.meterProvider),
		now:        time.Now,
	}
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	Username    string `json:"username"`
}

// Login exchanges username and password for a bearer token.
func (c *HTTPIdentityClient) Login(ctx context.Context, username, password string) (*oauth2.Token, error) {
	started := time.Now()
	var out loginResponse
	err := c.post(ctx, LoginPath, map[string]string{
		"username": username,
		"password": password,
	}, &out)
	if err == nil && out.AccessToken == "" {
		err = &MalformedResponseError{Reason: "missing access_token"}
	}
	c.metrics.record(ctx, LoginPath, started, err)
	if err != nil {
		c.logger.Info("login failed", "username", username, "kind", ErrorKind(err))
		return nil, err
	}

	token := &oauth2.Token{AccessToken: out.AccessToken, TokenType: "Bearer"}
	if c.tokenTTL > 0 {
		token.Expiry = c.now().Add(c.tokenTTL)
	}
	c.logger.Info("login succeeded", "username", username)
	return token, nil
}

// Register creates a new operator account.
func (c *HTTPIdentityClient) Register(ctx context.Context, username, password, email string) error {
	started := time.Now()
	err := c.post(ctx, RegisterPath, map[string]string{
		"username": username,
		"password": password,
		"email":    email,
	}, nil)
	c.metrics.record(ctx, RegisterPath, started, err)
	return err
}

func (c *HTTPIdentityClient) post(ctx context.Context, path string, payload any, out any) error {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+path, bytes.NewReader(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ServiceUnavailableError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &ServiceUnavailableError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	if err := statusError(resp.StatusCode, body); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &MalformedResponseError{Reason: "failed to decode response body", Err: err}
	}
	return nil
}
