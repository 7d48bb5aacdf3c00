package auth

import (
	"context"
	"strings"
	"time"
)

// Symbolic auth error codes.
const (
	CodeEmailInUse    = "auth/email-already-in-use"
	CodeUserNotFound  = "auth/user-not-found"
	CodeWrongPassword = "auth/wrong-password"
	CodeInvalidEmail  = "auth/invalid-email"
	CodeWeakPassword  = "auth/weak-password"
	CodeInvalidToken  = "auth/invalid-token"
	CodeInternal      = "auth/internal-error"
)

// Credential is the proof of a signed-in principal.
type Credential struct {
	UID       string
	Email     string
	Token     string
	ExpiresAt time.Time
}

// Provider manages email/password credentials. ObserveAuthState emits the
// current credential first and then every change; nil means signed out.
type Provider interface {
	CreateAccount(ctx context.Context, email, password string) (*Credential, error)
	SignIn(ctx context.Context, email, password string) (*Credential, error)
	SignOut(ctx context.Context) error
	ObserveAuthState(ctx context.Context) (<-chan *Credential, func())
	Current() *Credential
}

// Error is an auth failure with a symbolic code such as "auth/wrong-password".
type Error struct {
	Code  string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Code + ": " + e.Cause.Error()
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Cause }

// Reason turns the code into readable text: "auth/wrong-password" becomes
// "wrong password".
func (e *Error) Reason() string {
	reason := e.Code
	if _, after, ok := strings.Cut(e.Code, "/"); ok {
		reason = after
	}
	return strings.ReplaceAll(reason, "-", " ")
}
