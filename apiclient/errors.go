package apiclient

import "errors"

// ErrSessionExpired is returned by callers that detect an expired
// session via IsActive and choose to surface it as a typed error
// rather than retrying indefinitely.
var ErrSessionExpired = errors.New("apiclient: session is no longer active")

// ErrNotAuthenticated indicates an operation that requires a session
// was attempted before any login call succeeded.
var ErrNotAuthenticated = errors.New("apiclient: no active session")
