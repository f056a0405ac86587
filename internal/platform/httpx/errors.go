package httpx

import (
	"errors"
	"net/http"

	"github.com/careportal/careportal/internal/shared"
)

// ErrValidation marks malformed request input.
var ErrValidation = errors.New("validation failed")

// Problem types. API clients branch on these instead of parsing titles.
const (
	ProblemValidation     = "/problems/validation"
	ProblemSessionExpired = "/problems/session-expired"
	ProblemUnauthorized   = "/problems/unauthorized"
	ProblemForbidden      = "/problems/forbidden"
	ProblemNotFound       = "/problems/not-found"
	ProblemInternal       = "/problems/internal"
)

// RespondError maps domain errors to problem responses. Unknown errors never
// leak their message.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, ProblemValidation, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrSessionExpired):
		Problem(w, http.StatusUnauthorized, ProblemSessionExpired, "Session Expired", "session expired")
	case shared.IsUnauthenticated(err), errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, ProblemUnauthorized, "Unauthorized", "authentication required")
	case errors.Is(err, shared.ErrForbidden),
		errors.Is(err, shared.ErrCSRFTokenMissing),
		errors.Is(err, shared.ErrCSRFTokenMismatch):
		Problem(w, http.StatusForbidden, ProblemForbidden, "Forbidden", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, ProblemNotFound, "Not Found", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, ProblemInternal, "Internal Error", "")
	}
}
