package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"furnace-optimizer/backend/pkg/models"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
)

const (
	// PredictPath is the optimization service endpoint.
	PredictPath = "/api/predict"

	// requestTimeout bounds a single attempt, including with an injected
	// http.Client. A timeout surfaces as ServiceUnavailableError.
	requestTimeout = 2 * time.Minute

	maxResponseBytes = 32 << 20
)

// HTTPOptimizerClient is an HTTP implementation of the OptimizerClient interface.
type HTTPOptimizerClient struct {
	url        string
	httpClient *http.Client
	logger     Logger
	metrics    *clientMetrics
}

// ClientOption configures an HTTP client in this package.
type ClientOption func(*clientOptions)

type clientOptions struct {
	httpClient    *http.Client
	logger        Logger
	meterProvider metric.MeterProvider
}

// WithHTTPClient replaces the default traced HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) { o.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l Logger) ClientOption {
	return func(o *clientOptions) { o.logger = l }
}

// WithMeterProvider sets the meter provider used for request metrics.
func WithMeterProvider(mp metric.MeterProvider) ClientOption {
	return func(o *clientOptions) { o.meterProvider = mp }
}

func buildOptions(opts []ClientOption) clientOptions {
	o := clientOptions{logger: nopLogger{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{
			Timeout:   requestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return o
}

// NewHTTPOptimizerClient creates a new HTTPOptimizerClient for the service at
// baseURL.
func NewHTTPOptimizerClient(baseURL string, opts ...ClientOption) *HTTPOptimizerClient {
	o := buildOptions(opts)
	return &HTTPOptimizerClient{
		url:        strings.TrimRight(baseURL, "/"),
		httpClient: o.httpClient,
		logger:     o.logger,
		metrics:    newClientMetrics(o.meterProvider),
	}
}

// Predict posts params to /api/predict. It never retries.
func (c *HTTPOptimizerClient) Predict(ctx context.Context, params models.ProcessParameters, credential models.Credential) (*models.PredictionResult, error) {
	if reason := checkCredential(credential); reason != "" {
		return nil, &UnauthenticatedError{Reason: reason}
	}

	started := time.Now()
	result, err := c.predict(ctx, params, credential)
	c.metrics.record(ctx, PredictPath, started, err)
	if err != nil {
		c.logger.Error("prediction request failed", "kind", ErrorKind(err), "error", err)
		return nil, err
	}
	c.logger.Debug("prediction request succeeded",
		"solutions", result.SolutionCount(),
		"latency", time.Since(started),
	)
	return result, nil
}

func (c *HTTPOptimizerClient) predict(ctx context.Context, params models.ProcessParameters, credential models.Credential) (*models.PredictionResult, error) {
	requestBody, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+PredictPath, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+string(credential))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ServiceUnavailableError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &ServiceUnavailableError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if err := statusError(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return decodePrediction(body)
}

// statusError maps a non-2xx status onto the error taxonomy.
func statusError(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthenticationError{StatusCode: status, ServerMessage: serverMessage(body)}
	case status >= 400 && status < 500:
		msg := serverMessage(body)
		if msg == "" {
			msg = DefaultRejectedMessage
		}
		return &RequestRejectedError{StatusCode: status, ServerMessage: msg}
	default:
		return &ServiceUnavailableError{StatusCode: status}
	}
}

// serverMessage extracts a human-readable message from an error body. Flask
// handlers answer {"error": ...}; flask-jwt-extended answers {"msg": ...}.
func serverMessage(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"error", "message", "msg"} {
		if s, ok := payload[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func decodePrediction(body []byte) (*models.PredictionResult, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &MalformedResponseError{Reason: "body is not a JSON object", Err: err}
	}

	result := &models.PredictionResult{}
	for _, key := range []string{"prediction", "message", "variables", "solutions"} {
		if _, ok := raw[key]; !ok {
			return nil, &MalformedResponseError{Reason: fmt.Sprintf("missing field %q", key)}
		}
	}

	// A null prediction is how the service reports an empty Pareto front.
	if !isNull(raw["prediction"]) {
		if err := json.Unmarshal(raw["prediction"], &result.Prediction); err != nil {
			return nil, &MalformedResponseError{Reason: "prediction is not a numeric sequence", Err: err}
		}
	}
	if err := json.Unmarshal(raw["message"], &result.Message); err != nil || isNull(raw["message"]) {
		return nil, &MalformedResponseError{Reason: "message is not a string", Err: err}
	}
	if err := decodeMatrix(raw["variables"], &result.Variables); err != nil {
		return nil, &MalformedResponseError{Reason: "variables is not a sequence of numeric sequences", Err: err}
	}
	if err := decodeMatrix(raw["solutions"], &result.Solutions); err != nil {
		return nil, &MalformedResponseError{Reason: "solutions is not a sequence of numeric sequences", Err: err}
	}
	if len(result.Variables) != len(result.Solutions) {
		return nil, &MalformedResponseError{Reason: fmt.Sprintf(
			"variables and solutions differ in length (%d != %d)",
			len(result.Variables), len(result.Solutions),
		)}
	}
	return result, nil
}

var errNullValue = errors.New("null value")

func decodeMatrix(data json.RawMessage, dst *[][]float64) error {
	if isNull(data) {
		return errNullValue
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return err
	}
	for _, row := range *dst {
		if row == nil {
			return errNullValue
		}
	}
	if *dst == nil {
		*dst = [][]float64{}
	}
	return nil
}

func isNull(data json.RawMessage) bool {
	return string(bytes.TrimSpace(data)) == "null"
}

// checkCredential returns a reason when credential cannot be sent as a bearer
// token.
func checkCredential(credential models.Credential) string {
	if strings.TrimSpace(string(credential)) == "" {
		return "no credential"
	}
	for _, r := range string(credential) {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "credential contains whitespace or control characters"
		}
	}
	return ""
}
