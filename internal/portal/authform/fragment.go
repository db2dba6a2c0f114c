package authform

import (
	"errors"
	"strings"

	"finitefield.org/hanko-portal/internal/portal/authclient"
)

// Fragment extracts the single word shown for a provider failure. Structured
// provider errors render their code as a slug ("INVALID_PASSWORD" becomes
// "invalid-password"). Anything else is read as "<label> <word> <detail...>"
// and yields the word after the label, so "Error: invalid credentials now"
// shows "invalid". Messages with fewer than three tokens show nothing.
func Fragment(err error) string {
	if err == nil {
		return ""
	}
	var authErr *authclient.Error
	if errors.As(err, &authErr) && authErr.Code != "" {
		return strings.ToLower(strings.ReplaceAll(authErr.Code, "_", "-"))
	}
	tokens := strings.Split(err.Error(), " ")
	if len(tokens) < 3 {
		return ""
	}
	return tokens[1]
}
