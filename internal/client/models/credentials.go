package models

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/dmitrijs2005/gophadmin/internal/common"
)

// Credentials are submitted once on login and never persisted.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate checks the form before any network call is made.
func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required.Error("Invalid email address"), is.Email.Error("Invalid email address")),
		validation.Field(&c.Password, validation.Required.Error("Invalid password")),
	)
}

// ValidateCode checks that a one-time code has exactly common.CodeLength
// characters.
func ValidateCode(code string) error {
	return validation.Validate(code,
		validation.Required,
		validation.RuneLength(common.CodeLength, common.CodeLength),
	)
}
