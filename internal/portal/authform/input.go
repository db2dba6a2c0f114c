package authform

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Field names as posted by the form.
const (
	FieldEmail    = "email"
	FieldPassword = "password"
)

// MaxPasswordLength is the upper bound enforced on the password field.
// TODO: confirm with product whether this was meant to be a minimum length.
const MaxPasswordLength = 8

const (
	MessageEmailRequired    = "email must not empty"
	MessagePasswordRequired = "password must not empty"
	MessagePasswordTooLong  = "password must be at most 8 characters"
)

// Input is the raw email/password pair entered by the user. Remember is the
// "keep me signed in" choice, applied only once the submission succeeds.
type Input struct {
	Email    string
	Password string
	Remember bool
}

// Validate checks the input locally. A nil result means the form may be submitted.
// A missing email or password flags both fields, matching how the form has always
// reported presence errors.
func Validate(in Input) validation.Errors {
	emailErr := validation.Validate(in.Email, validation.Required)
	passwordErr := validation.Validate(in.Password, validation.Required)
	if emailErr != nil || passwordErr != nil {
		return validation.Errors{
			FieldEmail:    errors.New(MessageEmailRequired),
			FieldPassword: errors.New(MessagePasswordRequired),
		}
	}

	if err := validation.Validate(in.Password, validation.RuneLength(0, MaxPasswordLength).Error(MessagePasswordTooLong)); err != nil {
		return validation.Errors{FieldPassword: err}
	}
	return nil
}
