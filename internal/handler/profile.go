package handler

import (
	"net/http"

	"github.com/reconnoiter/reconnoiter/internal/model"
	"github.com/reconnoiter/reconnoiter/internal/server/middleware"
)

// Profile returns the session user. Mounted behind RequireUser.
// GET /api/v1/profile
func Profile(w http.ResponseWriter, r *http.Request) {
	u := middleware.GetUser(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "Please provide a valid user token")
		return
	}
	writeJSON(w, http.StatusOK, model.NewUserData(u))
}
