// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors handlers wrap to select a problem status.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("conflict")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrTooLarge           = errors.New("request too large")
	ErrUnavailable        = errors.New("service unavailable")
)

// RespondError maps wrapped sentinel errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	WriteProblem(w, ProblemFor(err))
}

// ProblemFor selects the problem matching the sentinel err wraps. Unknown errors
// become a 500 without detail.
func ProblemFor(err error) ProblemDetail {
	switch {
	case errors.Is(err, ErrNotFound):
		return ProblemDetail{Title: "Not Found", Status: http.StatusNotFound, Detail: err.Error()}
	case errors.Is(err, ErrValidation):
		return ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: err.Error()}
	case errors.Is(err, ErrConflict):
		return ProblemDetail{Title: "Conflict", Status: http.StatusConflict, Detail: err.Error()}
	case errors.Is(err, ErrPreconditionFailed):
		return ProblemDetail{Title: "Precondition Failed", Status: http.StatusPreconditionFailed, Detail: err.Error()}
	case errors.Is(err, ErrTooLarge):
		return ProblemDetail{Title: "Request Too Large", Status: http.StatusRequestEntityTooLarge, Detail: err.Error()}
	case errors.Is(err, ErrUnavailable):
		return ProblemDetail{Title: "Service Unavailable", Status: http.StatusServiceUnavailable, Detail: err.Error()}
	default:
		return ProblemDetail{Title: "Internal Error", Status: http.StatusInternalServerError}
	}
}
