package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/reconnoiter/reconnoiter/internal/model"
	"github.com/reconnoiter/reconnoiter/internal/server/middleware"
	"github.com/reconnoiter/reconnoiter/internal/service"
	"github.com/reconnoiter/reconnoiter/internal/store"
	"github.com/reconnoiter/reconnoiter/internal/telemetry"
)

// UserDirectory is the read access to users the admin endpoints need.
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
}

// AdminHandler serves credential administration and platform statistics.
// Every route is mounted behind RequireUser and RequireAdmin.
type AdminHandler struct {
	creds     *service.CredentialService
	users     UserDirectory
	allowList *service.AllowListService
	reporter  telemetry.Reporter
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(creds *service.CredentialService, users UserDirectory, allowList *service.AllowListService, reporter telemetry.Reporter) *AdminHandler {
	return &AdminHandler{
		creds:     creds,
		users:     users,
		allowList: allowList,
		reporter:  reporter,
	}
}

// ---------------------------------------------------------------------------
// API Key management
// ---------------------------------------------------------------------------

// ListAPIKeys returns credentials newest first. Revoked credentials are
// included only with ?include_revoked=true.
// GET /api/v1/admin/api-keys
func (h *AdminHandler) ListAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.creds.List(r.Context(), store.CredentialFilter{
		IncludeRevoked: queryBool(r, "include_revoked"),
	})
	if err != nil {
		middleware.WriteDefect(w, r, h.reporter, "list api keys failed", err)
		return
	}
	if keys == nil {
		keys = []model.ServiceCredential{}
	}
	writeJSON(w, http.StatusOK, model.ListResponse[model.ServiceCredential]{
		Resource: keys,
		Count:    len(keys),
	})
}

type createAPIKeyRequest struct {
	Name        string `json:"name"`
	OwnerUserID *int64 `json:"owner_user_id,omitempty"`
}

// createAPIKeyResponse includes the plaintext key (shown once only).
type createAPIKeyResponse struct {
	Key        string                   `json:"api_key"`
	Credential *model.ServiceCredential `json:"credential"`
}

// CreateAPIKey issues a credential and returns the raw secret exactly once.
// POST /api/v1/admin/api-keys
func (h *AdminHandler) CreateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req createAPIKeyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if req.OwnerUserID != nil {
		if _, err := h.users.GetUser(r.Context(), *req.OwnerUserID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusBadRequest, "Owner not found",
					"No user with id "+strconv.FormatInt(*req.OwnerUserID, 10))
				return
			}
			middleware.WriteDefect(w, r, h.reporter, "load credential owner failed", err)
			return
		}
	}

	raw, cred, err := h.creds.Issue(r.Context(), req.Name, req.OwnerUserID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidArgument) {
			writeError(w, http.StatusBadRequest, "Invalid API key request", err.Error())
			return
		}
		middleware.WriteDefect(w, r, h.reporter, "issue api key failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, createAPIKeyResponse{Key: raw, Credential: cred})
}

// RevokeAPIKey revokes a credential by id.
// DELETE /api/v1/admin/api-keys/{id}
func (h *AdminHandler) RevokeAPIKey(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid API key id")
		return
	}

	revoked, err := h.creds.Revoke(r.Context(), id)
	if err != nil {
		middleware.WriteDefect(w, r, h.reporter, "revoke api key failed", err)
		return
	}
	if !revoked {
		writeError(w, http.StatusNotFound, "API key not found or already revoked")
		return
	}

	writeJSON(w, http.StatusOK, model.MessageResponse{Message: "API key revoked"})
}

// ---------------------------------------------------------------------------
// Statistics
// ---------------------------------------------------------------------------

type statsResponse struct {
	TotalAPIKeys   int64 `json:"total_api_keys"`
	ActiveAPIKeys  int64 `json:"active_api_keys"`
	RevokedAPIKeys int64 `json:"revoked_api_keys"`
	Users          int   `json:"users"`
	Admins         int   `json:"admins"`
	AllowListed    int   `json:"allow_listed"`
}

// Stats summarizes credentials, users and the allow-list.
// GET /api/v1/admin/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cs, err := h.creds.Stats(ctx)
	if err != nil {
		middleware.WriteDefect(w, r, h.reporter, "credential stats failed", err)
		return
	}
	users, err := h.users.ListUsers(ctx)
	if err != nil {
		middleware.WriteDefect(w, r, h.reporter, "list users failed", err)
		return
	}
	entries, err := h.allowList.List(ctx)
	if err != nil {
		middleware.WriteDefect(w, r, h.reporter, "list allow-list failed", err)
		return
	}

	resp := statsResponse{
		TotalAPIKeys:   cs.Total,
		ActiveAPIKeys:  cs.Active,
		RevokedAPIKeys: cs.Revoked,
		Users:          len(users),
		AllowListed:    len(entries),
	}
	for _, u := range users {
		if u.Admin {
			resp.Admins++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
