package github

import (
	"errors"
	"net/http"

	"github.com/google/go-github/v73/github"
)

// StatusCode extracts the HTTP status of a GitHub API error, or 0.
func StatusCode(err error) int {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode
	}
	return 0
}

// IsNotFoundOrForbidden reports whether err is a 403 or 404 from GitHub. The
// pipeline treats those as "no access" and keeps going with placeholders.
func IsNotFoundOrForbidden(err error) bool {
	switch StatusCode(err) {
	case http.StatusForbidden, http.StatusNotFound:
		return true
	default:
		return false
	}
}

func newErrorResponse(status int, method, message string) *github.ErrorResponse {
	req, _ := http.NewRequest(method, "https://api.github.com/", nil)
	return &github.ErrorResponse{
		Response: &http.Response{StatusCode: status, Request: req},
		Message:  message,
	}
}
