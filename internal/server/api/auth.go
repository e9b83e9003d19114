package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/noogler-aditya/Agent-Lighthouse/internal/server/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login checks dev credentials and mints a token pair.
func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "Invalid request body")
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.cfg.DevUsername)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.DevPassword)) == 1
	if !userOK || !passOK {
		return detail(c, http.StatusUnauthorized, "Invalid username or password")
	}

	pair, err := h.issuer.IssuePair(req.Username)
	if err != nil {
		return detail(c, http.StatusInternalServerError, "Failed to issue tokens")
	}
	return c.JSON(http.StatusOK, pair)
}

// Refresh exchanges a valid refresh token for a fresh pair. Refresh
// tokens rotate: the response carries a new one.
func (h *Handler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return detail(c, http.StatusBadRequest, "Missing refresh_token")
	}

	subject, err := h.issuer.Verify(req.RefreshToken, auth.TypeRefresh)
	if err != nil {
		return detail(c, http.StatusUnauthorized, "Invalid or expired refresh token")
	}

	pair, err := h.issuer.IssuePair(subject)
	if err != nil {
		return detail(c, http.StatusInternalServerError, "Failed to issue tokens")
	}
	return c.JSON(http.StatusOK, pair)
}

// Me returns the authenticated subject.
func (h *Handler) Me(c echo.Context) error {
	subject, _ := c.Get(subjectKey).(string)
	return c.JSON(http.StatusOK, map[string]string{"subject": subject})
}
