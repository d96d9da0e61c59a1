package sorel

import "errors"

var (
	// ErrInvalidCredentials is returned when the portal answers a login without a session key.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrServiceUnavailable is returned for transport failures and non-200 responses.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrMalformedValue is returned when a fixed-shape value does not match its format.
	ErrMalformedValue = errors.New("malformed value")
)
