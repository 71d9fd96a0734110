package auth

import (
	"errors"
	"strings"
)

var (
	ErrNotConfigured = errors.New("authentication not configured")
	ErrInvalidToken  = errors.New("invalid or expired token")
)

// Identity is the authenticated caller
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// Authenticator resolves bearer tokens. Issuer tokens are tried first,
// then HMAC tokens signed with the shared secret.
type Authenticator struct {
	verifier TokenVerifier
	secret   string
}

// NewAuthenticator accepts a nil verifier and an empty secret; with
// neither, every token is rejected with ErrNotConfigured.
func NewAuthenticator(verifier TokenVerifier, secret string) *Authenticator {
	return &Authenticator{verifier: verifier, secret: secret}
}

func (a *Authenticator) Configured() bool {
	return a.verifier != nil || a.secret != ""
}

// Authenticate returns the identity carried by token
func (a *Authenticator) Authenticate(token string) (*Identity, error) {
	if !a.Configured() {
		return nil, ErrNotConfigured
	}

	if a.verifier != nil {
		if claims, err := a.verifier.Validate(token); err == nil {
			return &Identity{UserID: claims.UserID, Email: claims.Email, Name: claims.Name}, nil
		}
	}

	if a.secret != "" {
		if claims, err := ValidateLegacyToken(token, a.secret); err == nil {
			return &Identity{UserID: claims.UserID, Email: claims.Email}, nil
		}
	}

	return nil, ErrInvalidToken
}

// BearerToken extracts the token of an "Authorization: Bearer" header
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
