package api

import (
	"wisher-api/domain"
)

// Authenticator is implemented by types able to extract user IDs from
// Authorization headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Request body size cap for JSON payloads.
const maxBodySize = 64 * 1024 // 64 KiB

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type sessionResponse struct {
	User  domain.User `json:"user"`
	Token string      `json:"token,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
