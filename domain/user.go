package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	maxEmailLength    = 254
	maxPasswordLength = 1000
)

// Credentials are exchanged with the identity provider and never stored.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is the identity provider's answer to a sign-up or sign-in.
type Session struct {
	UserID      string `json:"userId"`
	BearerToken string `json:"bearerToken"`
}

// Validate checks presence first, then the email shape and length limits.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Email) == "" {
		return E(KindValidation, "Email is required and cannot be empty")
	}
	if strings.TrimSpace(c.Password) == "" {
		return E(KindValidation, "Password is required and cannot be empty")
	}
	if utf8.RuneCountInString(c.Email) > maxEmailLength {
		return E(KindValidation, "Email too long")
	}
	if utf8.RuneCountInString(c.Password) > maxPasswordLength {
		return E(KindValidation, "Password too long")
	}
	local, host, ok := strings.Cut(c.Email, "@")
	if !ok || strings.Contains(host, "@") || local == "" || host == "" || !strings.Contains(host, ".") {
		return E(KindValidation, "Invalid email format")
	}
	return nil
}
