package auth

import (
	"finitefield.org/hanko-portal/internal/portal/templates/banner"
)

// FormData encapsulates rendering state for the sign-in / sign-up form.
type FormData struct {
	Mode    string
	Heading string
	Label   string
	Message string

	Action    string
	StatusURL string
	ToggleURL string
	SwitchURL string
	SwitchTo  string

	Email           string
	Password        string
	EmailError      string
	PasswordError   string
	ErrorFragment   string
	Submitting      bool
	Failed          bool
	PasswordVisible bool
	Remember        bool

	Next      string
	CSRFToken string
}

// Invalid reports whether any field error is present.
func (d FormData) Invalid() bool {
	return d.EmailError != "" || d.PasswordError != ""
}

// PageData is the full auth page: banner plus form.
type PageData struct {
	Title  string
	Banner banner.Data
	Form   FormData
}
