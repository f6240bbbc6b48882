package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/reconnoiter/reconnoiter/internal/model"
)

func TestExchange_Success(t *testing.T) {
	env := newTestEnv(t)
	env.allow(t, 42, "octocat")

	rr := env.do(t, "POST", "/api/v1/auth/exchange", toJSON(t, map[string]string{"github_token": tokenOctocat}))
	assertStatus(t, rr, http.StatusOK)

	var resp model.ExchangeResponse
	decodeJSON(t, rr, &resp)
	if resp.JWT == "" {
		t.Fatal("expected a jwt")
	}
	if resp.User == nil || resp.User.Email != "octocat@example.com" {
		t.Fatalf("user = %+v", resp.User)
	}
	if resp.User.Admin {
		t.Error("new users must not be admins")
	}
	if resp.User.GitHubUsername == nil || *resp.User.GitHubUsername != "octocat" {
		t.Errorf("github_username = %v", resp.User.GitHubUsername)
	}

	res := env.codec.Verify(resp.JWT)
	if !res.OK() {
		t.Fatalf("issued token does not verify: %v", res.Failure)
	}
	if res.Claims.UserID != resp.User.ID {
		t.Errorf("token user_id = %d, want %d", res.Claims.UserID, resp.User.ID)
	}
}

func TestExchange_MissingToken(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"blank token", `{"github_token":"   "}`},
		{"no body", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, "POST", "/api/v1/auth/exchange", strings.NewReader(tt.body))
			assertStatus(t, rr, http.StatusBadRequest)

			var resp model.MessageResponse
			decodeJSON(t, rr, &resp)
			if resp.Message != "GitHub token required" {
				t.Errorf("message = %q", resp.Message)
			}
			if len(resp.Errors) != 1 || resp.Errors[0] != "Missing github_token in request body" {
				t.Errorf("errors = %v", resp.Errors)
			}
		})
	}
}

func TestExchange_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "POST", "/api/v1/auth/exchange", strings.NewReader(`{not json`))
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestExchange_RejectedByGitHub(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/v1/auth/exchange", toJSON(t, map[string]string{"github_token": "gho_revoked"}))
	assertStatus(t, rr, http.StatusUnauthorized)

	var resp model.MessageResponse
	decodeJSON(t, rr, &resp)
	if resp.Message != "Invalid GitHub token" {
		t.Errorf("message = %q", resp.Message)
	}
	if len(resp.Errors) == 0 {
		t.Error("expected error details")
	}
}

func TestExchange_NotAllowListed(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/v1/auth/exchange", toJSON(t, map[string]string{"github_token": tokenStranger}))
	assertStatus(t, rr, http.StatusForbidden)

	var resp model.MessageResponse
	decodeJSON(t, rr, &resp)
	if resp.Message != "Access denied" {
		t.Errorf("message = %q", resp.Message)
	}
	if len(resp.Errors) != 1 || resp.Errors[0] != "Your GitHub account is not whitelisted for access" {
		t.Errorf("errors = %v", resp.Errors)
	}

	users, err := env.store.ListUsers(t.Context())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("denied exchange created %d users", len(users))
	}
}

func TestExchange_GitHubOutageIsGeneric500(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/api/v1/auth/exchange", toJSON(t, map[string]string{"github_token": tokenBroken}))
	assertStatus(t, rr, http.StatusInternalServerError)

	if strings.Contains(rr.Body.String(), "502") || strings.Contains(rr.Body.String(), "github") {
		t.Errorf("defect details leaked: %s", rr.Body.String())
	}
	if env.reporter.count() != 1 {
		t.Errorf("reported events = %d, want 1", env.reporter.count())
	}
}

func TestExchange_ReturningUserKeepsID(t *testing.T) {
	env := newTestEnv(t)
	env.allow(t, 42, "octocat")

	var first, second model.ExchangeResponse
	rr := env.do(t, "POST", "/api/v1/auth/exchange", toJSON(t, map[string]string{"github_token": tokenOctocat}))
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &first)

	rr = env.do(t, "POST", "/api/v1/auth/exchange", toJSON(t, map[string]string{"github_token": tokenOctocat}))
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &second)

	if first.User.ID != second.User.ID {
		t.Errorf("user id changed: %d then %d", first.User.ID, second.User.ID)
	}
}
