package authclient

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies provider failures so callers never have to parse provider prose.
type Kind string

const (
	KindInvalidCredentials Kind = "invalid_credentials"
	KindEmailExists        Kind = "email_exists"
	KindWeakPassword       Kind = "weak_password"
	KindTooManyAttempts    Kind = "too_many_attempts"
	KindUserDisabled       Kind = "user_disabled"
	KindTokenExpired       Kind = "token_expired"
	KindUnavailable        Kind = "unavailable"
	KindUnknown            Kind = "unknown"
)

// Error is a failure reported by the provider (or by the transport to it).
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Status  int
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code == "" {
		return fmt.Sprintf("authclient: %s", msg)
	}
	return fmt.Sprintf("authclient: %s (%s)", msg, e.Code)
}

// Unwrap returns the transport error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var authErr *Error
	if errors.As(err, &authErr) && authErr.Kind != "" {
		return authErr.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var authErr *Error
	return errors.As(err, &authErr) && authErr.Kind == kind
}

// kindForCode maps Identity Toolkit error codes.
func kindForCode(code string) Kind {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "EMAIL_NOT_FOUND", "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "INVALID_EMAIL", "MISSING_PASSWORD", "MISSING_EMAIL":
		return KindInvalidCredentials
	case "EMAIL_EXISTS":
		return KindEmailExists
	case "WEAK_PASSWORD":
		return KindWeakPassword
	case "TOO_MANY_ATTEMPTS_TRY_LATER":
		return KindTooManyAttempts
	case "USER_DISABLED":
		return KindUserDisabled
	case "TOKEN_EXPIRED", "INVALID_REFRESH_TOKEN", "USER_NOT_FOUND":
		return KindTokenExpired
	default:
		return KindUnknown
	}
}

// parseProviderMessage splits "CODE : detail" as sent by Identity Toolkit.
func parseProviderMessage(raw string) (code, detail string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}
	parts := strings.SplitN(raw, " : ", 2)
	code = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		detail = strings.TrimSpace(parts[1])
	}
	return code, detail
}
