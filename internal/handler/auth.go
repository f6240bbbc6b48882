package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/reconnoiter/reconnoiter/internal/model"
	"github.com/reconnoiter/reconnoiter/internal/server/middleware"
	"github.com/reconnoiter/reconnoiter/internal/service"
	"github.com/reconnoiter/reconnoiter/internal/telemetry"
)

// AuthHandler serves the programmatic token exchange.
type AuthHandler struct {
	exchange *service.ExchangeService
	reporter telemetry.Reporter
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(exchange *service.ExchangeService, reporter telemetry.Reporter) *AuthHandler {
	return &AuthHandler{exchange: exchange, reporter: reporter}
}

type exchangeRequest struct {
	GitHubToken string `json:"github_token"`
}

// Exchange trades a GitHub access token for a session token.
// POST /api/v1/auth/exchange
func (h *AuthHandler) Exchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := readJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.GitHubToken) == "" {
		writeError(w, http.StatusBadRequest, "GitHub token required", "Missing github_token in request body")
		return
	}

	res, err := h.exchange.Exchange(r.Context(), req.GitHubToken)
	if err != nil {
		if ae, ok := service.AsAuthError(err); ok {
			writeError(w, ae.Status(), ae.Message, ae.Details...)
			return
		}
		middleware.WriteDefect(w, r, h.reporter, "token exchange failed", err)
		return
	}

	writeJSON(w, http.StatusOK, model.ExchangeResponse{
		JWT:  res.Token,
		User: model.NewUserData(res.User),
	})
}
