package services

import (
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"coursework/portal/access"
	"coursework/portal/auth"
	"coursework/portal/schema"
	"coursework/utils"
)

var errInvalidSignup = errors.New("invalid signup")

const minPasswordLength = 8

func validateSignup(username, email, password string) error {
	v := access.NewValidator()
	v.RequiredString("username", username, 50)
	if v.Required("email", email) {
		v.MaxLength("email", email, 254)
		if _, err := mail.ParseAddress(email); err != nil {
			v.Fail("email", "Enter a valid email address.")
		}
	}
	if len(password) < minPasswordLength {
		v.Fail("password", fmt.Sprintf("This password is too short. It must contain at least %d characters.", minPasswordLength))
	}

	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %w", errInvalidSignup, err)
	}
	return nil
}

// caller returns the authenticated user of the request, or a 401 coded error.
func caller(r *http.Request) (schema.User, error) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		return schema.User{}, utils.CodedError(err, http.StatusUnauthorized)
	}
	return user, nil
}

// safeRedirect only follows local paths, so the next parameter of the login
// form cannot send a user to another site.
func safeRedirect(target, fallback string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	return target
}
