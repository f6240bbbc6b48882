package handler

import (
	"net/http"
)

type endpointInfo struct {
	URL            string   `json:"url"`
	Methods        []string `json:"methods"`
	Description    string   `json:"description"`
	Authentication string   `json:"authentication"`
}

type authMethodInfo struct {
	Header      string `json:"header"`
	Format      string `json:"format"`
	Description string `json:"description"`
}

type rootResponse struct {
	Message        string                  `json:"message"`
	Version        string                  `json:"version"`
	Note           string                  `json:"note"`
	Endpoints      map[string]endpointInfo `json:"endpoints"`
	Documentation  map[string]string       `json:"documentation"`
	Authentication struct {
		Note      string         `json:"note"`
		APIKey    authMethodInfo `json:"apiKey"`
		UserToken authMethodInfo `json:"userToken"`
	} `json:"authentication"`
}

// Root returns a public discovery document. sessionHeader is the configured
// session token header.
// GET /
func Root(sessionHeader string) http.HandlerFunc {
	resp := rootResponse{
		Message: "Welcome to the Reconnoiter API v1",
		Version: "v1",
		Note:    "This endpoint is public and does not require authentication",
		Endpoints: map[string]endpointInfo{
			"exchange": {
				URL:            "/api/v1/auth/exchange",
				Methods:        []string{"POST"},
				Description:    "Exchange a GitHub access token for a user token",
				Authentication: "Required (API Key)",
			},
			"profile": {
				URL:            "/api/v1/profile",
				Methods:        []string{"GET"},
				Description:    "Get current user profile",
				Authentication: "Required (API Key + User Token)",
			},
			"admin": {
				URL:            "/api/v1/admin",
				Methods:        []string{"GET", "POST", "DELETE"},
				Description:    "API key administration and statistics",
				Authentication: "Required (API Key + admin User Token)",
			},
		},
		Documentation: map[string]string{
			"openapiJson": "/openapi.json",
			"openapiYaml": "/openapi.yml",
		},
	}
	resp.Authentication.Note = "Most endpoints require authentication. This root endpoint does not."
	resp.Authentication.APIKey = authMethodInfo{
		Header:      "Authorization",
		Format:      "Bearer YOUR_API_KEY",
		Description: "Required for all endpoints except root, health and documentation",
	}
	resp.Authentication.UserToken = authMethodInfo{
		Header:      sessionHeader,
		Format:      "YOUR_JWT_TOKEN",
		Description: "Required for user-specific endpoints, only accepted together with an API key",
	}

	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, resp)
	}
}
