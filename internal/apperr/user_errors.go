package apperr

var (
	ErrInvalidEmail     = InvalidArg("Please provide a valid email address")
	ErrWeakPassword     = InvalidArg("Password should be at least 6 characters long")
	ErrEmptyUsername    = InvalidArg("Username cannot be empty")
	ErrUsernameTaken    = New(CodeAlreadyExists, "username is already taken")
	ErrEmptyName        = InvalidArg("Name cannot be empty")
	ErrSelfConversation = InvalidArg("cannot start a conversation with yourself")
	ErrNotSignedIn      = New(CodeUnauthenticated, "not signed in")
	ErrNoConversation   = FailedPrecondition("no conversation selected")
)

// ErrAuth wraps an auth provider failure with its human-readable reason.
func ErrAuth(reason string, cause error) error {
	return Wrap(CodeUnauthenticated, reason, cause)
}

// ErrBackend wraps an unexpected document/blob store failure.
func ErrBackend(op string, cause error) error {
	return Wrap(CodeInternal, op+" failed", cause)
}
