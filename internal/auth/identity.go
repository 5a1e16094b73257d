package auth

import (
	"errors"
	"strings"
)

var (
	ErrMissingToken   = errors.New("missing authorization header")
	ErrMalformedToken = errors.New("invalid authorization header format")
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrNotConfigured  = errors.New("authentication not configured")
)

// Identity is the authenticated owner of a request
type Identity struct {
	UserID string
	Email  string
	Name   string
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", ErrMalformedToken
	}
	return parts[1], nil
}

// Authenticator resolves tokens against the identity provider first and the
// legacy HMAC secret second
type Authenticator struct {
	verifier     TokenVerifier
	legacySecret string
}

func NewAuthenticator(verifier TokenVerifier, legacySecret string) *Authenticator {
	return &Authenticator{verifier: verifier, legacySecret: legacySecret}
}

// Resolve validates tokenString and returns the identity it carries
func (a *Authenticator) Resolve(tokenString string) (*Identity, error) {
	if a.verifier == nil && a.legacySecret == "" {
		return nil, ErrNotConfigured
	}

	if a.verifier != nil {
		claims, err := a.verifier.Validate(tokenString)
		if err == nil {
			return &Identity{UserID: claims.UserID, Email: claims.Email, Name: claims.Name}, nil
		}
		if a.legacySecret == "" {
			return nil, ErrInvalidToken
		}
	}

	claims, err := ValidateLegacyToken(tokenString, a.legacySecret)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Identity{UserID: claims.UserID, Email: claims.Email}, nil
}
