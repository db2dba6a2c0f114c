package authform

import (
	"fmt"
	"strings"
)

// Mode selects which provider operation a form submits to.
type Mode int

const (
	// SignIn submits to the provider's login operation.
	SignIn Mode = iota
	// SignUp submits to the provider's register operation.
	SignUp
)

// String returns the mode name as shown in headings ("Sign In" / "Sign Up").
func (m Mode) String() string {
	switch m {
	case SignIn:
		return "Sign In"
	case SignUp:
		return "Sign Up"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Label is the submit button text.
func (m Mode) Label() string {
	if m == SignUp {
		return "Sign up"
	}
	return "Sign in"
}

// Slug is the URL segment for the mode.
func (m Mode) Slug() string {
	if m == SignUp {
		return "signup"
	}
	return "signin"
}

// ParseMode accepts the display name or the slug in any case.
func ParseMode(raw string) (Mode, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(normalized)
	switch normalized {
	case "signin", "login":
		return SignIn, nil
	case "signup", "register":
		return SignUp, nil
	default:
		return SignIn, fmt.Errorf("authform: unknown mode %q", raw)
	}
}
