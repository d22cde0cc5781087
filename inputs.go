package identity

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// Operation inputs are statically shaped and validated before they reach the
// service; emails are lowercased and trimmed, phone numbers normalized to
// E.164.

// SignupInput is the payload for account creation.
type SignupInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
}

// Validate runs validation rules.
func (r SignupInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 256)),
	)
}

// Normalize lowercases the email and formats the phone number. region is the
// default phone region used when the number has no country prefix.
func (r *SignupInput) Normalize(region string) error {
	r.Email = normalizeEmail(r.Email)

	if r.Phone == "" {
		return nil
	}

	num, err := phonenumbers.Parse(r.Phone, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return errors.New("invalid phone number", errors.CategoryValidation).
			WithTextCode("INVALID_PHONE")
	}

	r.Phone = phonenumbers.Format(num, phonenumbers.E164)
	return nil
}

// ConfirmSignupInput is the payload for consuming a confirmation code.
type ConfirmSignupInput struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// Validate runs validation rules.
func (r ConfirmSignupInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Code, validation.Required),
	)
}

// Normalize lowercases the email and trims the code.
func (r *ConfirmSignupInput) Normalize() {
	r.Email = normalizeEmail(r.Email)
	r.Code = strings.TrimSpace(r.Code)
}

// EmailOnlyInput is shared by resend and forgot-password operations.
type EmailOnlyInput struct {
	Email string `json:"email"`
}

// Validate runs validation rules.
func (r EmailOnlyInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// Normalize lowercases the email.
func (r *EmailOnlyInput) Normalize() {
	r.Email = normalizeEmail(r.Email)
}

// LoginInput is the payload for authentication.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate runs validation rules.
func (r LoginInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

// Normalize lowercases the email.
func (r *LoginInput) Normalize() {
	r.Email = normalizeEmail(r.Email)
}

// ResetPasswordInput is the payload for completing a password reset.
type ResetPasswordInput struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

// Validate runs validation rules.
func (r ResetPasswordInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Code, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 256)),
	)
}

// Normalize lowercases the email and trims the code.
func (r *ResetPasswordInput) Normalize() {
	r.Email = normalizeEmail(r.Email)
	r.Code = strings.TrimSpace(r.Code)
}

// ChangePasswordInput is the payload for replacing a known password.
// AccessToken is only consulted by managed provider backends.
type ChangePasswordInput struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"-"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// Validate runs validation rules.
func (r ChangePasswordInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.OldPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 256)),
	)
}

// RefreshInput is the payload for token refresh.
type RefreshInput struct {
	RefreshToken string `json:"refresh_token"`
}

// Validate runs validation rules.
func (r RefreshInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}
