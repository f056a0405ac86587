package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated indicates that no credential accompanied the request.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrMalformedCredential indicates a credential that failed to decode or verify.
	ErrMalformedCredential = errors.New("malformed credential")
	// ErrCredentialExpired indicates a well-formed credential past its expiry.
	ErrCredentialExpired = errors.New("credential expired")
	// ErrSessionExpired indicates the idle budget elapsed since the last activity.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionRevoked indicates the server-side session was logged out.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrForbidden indicates an authenticated principal outside its scope.
	ErrForbidden = errors.New("forbidden")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// IsUnauthenticated reports whether err should be resolved by sending the
// caller back to the login page. Malformed and revoked credentials are
// treated exactly like a missing one.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrMalformedCredential) ||
		errors.Is(err, ErrCredentialExpired) ||
		errors.Is(err, ErrSessionRevoked)
}
