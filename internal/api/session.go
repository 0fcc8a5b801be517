package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"furnace-optimizer/backend/internal/services"
	"furnace-optimizer/backend/internal/session"

	"github.com/labstack/echo/v4"
)

const sessionContextKey = "session"

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// LoginResponse is returned when a session is created.
type LoginResponse struct {
	SessionID string     `json:"session_id"`
	Username  string     `json:"username"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Register creates an operator account with the identity service
// (POST /api/v1/register)
func (h *Handler) Register(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil || req.Username == "" || req.Password == "" || req.Email == "" {
		return writeError(c, http.StatusBadRequest, "Bad Request", "Missing required fields")
	}

	if err := h.identity.Register(c.Request().Context(), req.Username, req.Password, req.Email); err != nil {
		return h.identityError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"message": "User created successfully"})
}

// Login exchanges credentials for a bearer token and opens a session
// (POST /api/v1/session)
func (h *Handler) Login(c echo.Context) error {
	var req credentialsRequest
	if err := c.Bind(&req); err != nil || req.Username == "" || req.Password == "" {
		return writeError(c, http.StatusBadRequest, "Bad Request", "Missing required fields")
	}

	token, err := h.identity.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return h.identityError(c, err)
	}

	s := h.sessions.Create(req.Username, token)
	h.logger.Info("session opened", "session_id", s.ID, "username", req.Username)

	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	resp := LoginResponse{SessionID: s.ID, Username: s.Username}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		resp.ExpiresAt = &expiry
	}
	return c.JSON(http.StatusCreated, resp)
}

// Logout discards the session and its credential
// (DELETE /api/v1/session)
func (h *Handler) Logout(c echo.Context) error {
	s := currentSession(c)
	h.sessions.Delete(s.ID)
	h.logger.Info("session closed", "session_id", s.ID)

	c.SetCookie(&http.Cookie{
		Name:   SessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	return c.NoContent(http.StatusNoContent)
}

// RequireSession is middleware that resolves the caller's session from the
// X-Session-ID header or the session_id cookie.
func (h *Handler) RequireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := strings.TrimSpace(c.Request().Header.Get(SessionHeader))
		if id == "" {
			if cookie, err := c.Cookie(SessionCookie); err == nil {
				id = cookie.Value
			}
		}
		if id == "" {
			return writeProblem(c, ProblemDetails{
				Type: "about:blank", Title: "Unauthorized", Status: http.StatusUnauthorized,
				Detail: "no session", ReauthRequired: true,
			})
		}

		s, ok := h.sessions.Get(id)
		if !ok {
			return writeProblem(c, ProblemDetails{
				Type: "about:blank", Title: "Unauthorized", Status: http.StatusUnauthorized,
				Detail: "session expired or unknown", ReauthRequired: true,
			})
		}
		c.Set(sessionContextKey, s)
		return next(c)
	}
}

func currentSession(c echo.Context) *session.Session {
	s, _ := c.Get(sessionContextKey).(*session.Session)
	return s
}

func (h *Handler) identityError(c echo.Context, err error) error {
	var (
		auth     *services.AuthenticationError
		rejected *services.RequestRejectedError
	)
	switch {
	case errors.As(err, &auth):
		detail := auth.ServerMessage
		if detail == "" {
			detail = "Invalid credentials"
		}
		return writeError(c, http.StatusUnauthorized, "Unauthorized", detail)
	case errors.As(err, &rejected):
		return writeError(c, http.StatusBadRequest, "Bad Request", rejected.ServerMessage)
	default:
		h.logger.Error("identity service call failed", "error", err)
		return writeError(c, http.StatusServiceUnavailable, "Service Unavailable", "identity service is unavailable")
	}
}
