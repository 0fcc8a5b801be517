package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"furnace-optimizer/backend/internal/params"
	"furnace-optimizer/backend/internal/workflow"

	"github.com/labstack/echo/v4"
	"github.com/oapi-codegen/runtime"
)

// ParameterValue is the body of PUT /api/v1/parameters/{field}. Value may be
// a JSON string or a bare number; either way it is stored as raw text.
type ParameterValue struct {
	Value json.RawMessage `json:"value"`
}

func (v ParameterValue) raw() string {
	var s string
	if err := json.Unmarshal(v.Value, &s); err == nil {
		return s
	}
	text := strings.TrimSpace(string(v.Value))
	if text == "null" {
		return ""
	}
	return text
}

// PredictRequest optionally sets fields before submitting.
type PredictRequest struct {
	Parameters map[string]string `json:"parameters"`
}

// GetParameters returns the raw form values in field order
// (GET /api/v1/parameters)
func (h *Handler) GetParameters(c echo.Context) error {
	return c.JSON(http.StatusOK, currentSession(c).Workflow.Form().Entries())
}

// PutParameter stores raw text for one field
// (PUT /api/v1/parameters/{field})
func (h *Handler) PutParameter(c echo.Context) error {
	var field string
	err := runtime.BindStyledParameterWithOptions("simple", "field", c.Param("field"), &field,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return writeError(c, http.StatusBadRequest, "Bad Request", "Invalid format for parameter field: "+err.Error())
	}

	var body ParameterValue
	if err := c.Bind(&body); err != nil || len(body.Value) == 0 {
		return writeError(c, http.StatusBadRequest, "Bad Request", "body must be {\"value\": ...}")
	}

	form := currentSession(c).Workflow.Form()
	if err := form.SetField(field, body.raw()); err != nil {
		return formError(c, err)
	}
	return c.JSON(http.StatusOK, form.Entries())
}

// Predict runs one request cycle for the session's workflow
// (POST /api/v1/predict). With ?async=true it returns 202 as soon as the
// cycle is Submitting; poll GET /api/v1/state for the outcome.
func (h *Handler) Predict(c echo.Context) error {
	s := currentSession(c)

	var req PredictRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return writeError(c, http.StatusBadRequest, "Bad Request", "Invalid request body: "+err.Error())
		}
	}

	ctx := c.Request().Context()
	if c.QueryParam("async") == "true" {
		if err := s.Workflow.StartWith(ctx, req.Parameters); err != nil {
			return submitError(c, err)
		}
		return c.JSON(http.StatusAccepted, s.Workflow.State())
	}

	state, err := s.Workflow.SubmitWith(ctx, req.Parameters)
	if err != nil {
		return submitError(c, err)
	}
	return c.JSON(stateStatus(state), state)
}

// GetState returns the session's current workflow state
// (GET /api/v1/state)
func (h *Handler) GetState(c echo.Context) error {
	return c.JSON(http.StatusOK, currentSession(c).Workflow.State())
}

// ListSubmissions returns the session's submission history, newest first
// (GET /api/v1/submissions)
func (h *Handler) ListSubmissions(c echo.Context) error {
	limit := 0
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).BindError(); err != nil {
		return writeError(c, http.StatusBadRequest, "Bad Request", "limit must be an integer")
	}

	submissions, err := h.store.ListBySession(c.Request().Context(), currentSession(c).ID, limit)
	if err != nil {
		h.logger.Error("failed to list submissions", "error", err)
		return writeError(c, http.StatusInternalServerError, "Internal Server Error", "failed to list submissions")
	}
	return c.JSON(http.StatusOK, submissions)
}

// stateStatus maps a finished state onto an HTTP status; the body is always
// the state itself.
func stateStatus(state workflow.State) int {
	if state.Phase != workflow.PhaseFailed {
		return http.StatusOK
	}
	switch state.ErrorKind {
	case "validation":
		return http.StatusUnprocessableEntity
	case "unauthenticated", "authentication":
		return http.StatusUnauthorized
	case "rejected":
		return http.StatusBadRequest
	case "unavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func formError(c echo.Context, err error) error {
	var ferr *params.InvalidFieldError
	switch {
	case errors.As(err, &ferr):
		return writeError(c, http.StatusBadRequest, "Bad Request", ferr.Error())
	case errors.Is(err, params.ErrFormFrozen):
		return writeError(c, http.StatusConflict, "Conflict", err.Error())
	default:
		return writeError(c, http.StatusInternalServerError, "Internal Server Error", err.Error())
	}
}

// submitError maps a submission that never started onto a problem response.
func submitError(c echo.Context, err error) error {
	if errors.Is(err, workflow.ErrSubmissionInFlight) {
		return writeError(c, http.StatusConflict, "Conflict", err.Error())
	}
	return formError(c, err)
}
