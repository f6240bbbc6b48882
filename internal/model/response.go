package model

import "time"

// AuthErrorResponse is the body written when the authentication chain
// rejects a request.
type AuthErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
	Timestamp string `json:"timestamp"`
}

// NewAuthErrorResponse builds a rejection body stamped with t in RFC 3339.
func NewAuthErrorResponse(status int, code, message string, t time.Time) AuthErrorResponse {
	return AuthErrorResponse{
		Error:     StatusReason(status),
		Message:   message,
		ErrorCode: code,
		Timestamp: t.UTC().Format(time.RFC3339),
	}
}

// StatusReason returns the short reason phrase used in the "error" field.
func StatusReason(status int) string {
	switch status {
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 429:
		return "Too Many Requests"
	default:
		return "Internal Server Error"
	}
}

// MessageResponse is the body of non-chain API failures, such as a rejected
// token exchange.
type MessageResponse struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

// ExchangeResponse is returned by a successful token exchange.
type ExchangeResponse struct {
	JWT  string    `json:"jwt"`
	User *UserData `json:"user"`
}

// UserData is the public view of a user returned to clients.
type UserData struct {
	ID             int64   `json:"id"`
	GitHubID       *int64  `json:"github_id,omitempty"`
	GitHubUsername *string `json:"github_username,omitempty"`
	Email          string  `json:"email"`
	AvatarURL      *string `json:"avatar_url,omitempty"`
	Name           *string `json:"name,omitempty"`
	Admin          bool    `json:"admin"`
}

// NewUserData projects u into its public view.
func NewUserData(u *User) *UserData {
	return &UserData{
		ID:             u.ID,
		GitHubID:       u.ProviderID,
		GitHubUsername: u.ProviderLogin,
		Email:          u.Email,
		AvatarURL:      u.ProviderAvatarURL,
		Name:           u.ProviderName,
		Admin:          u.Admin,
	}
}

// ListResponse wraps list results with a count.
type ListResponse[T any] struct {
	Resource []T `json:"resource"`
	Count    int `json:"count"`
}
