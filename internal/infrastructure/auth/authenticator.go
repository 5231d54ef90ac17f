package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var ErrInvalidCredential = errors.New("invalid credential")

// Authenticator resolves a credential to a principal id.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (string, error)
}

// StaticAuthenticator checks credentials against a fixed token table.
type StaticAuthenticator struct {
	tokens map[string]string
}

var _ Authenticator = (*StaticAuthenticator)(nil)

// NewStaticAuthenticator copies tokens (credential -> principal).
func NewStaticAuthenticator(tokens map[string]string) *StaticAuthenticator {
	t := make(map[string]string, len(tokens))
	for k, v := range tokens {
		if k != "" && v != "" {
			t[k] = v
		}
	}
	return &StaticAuthenticator{tokens: t}
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, credential string) (string, error) {
	if credential == "" {
		return "", ErrInvalidCredential
	}
	principal, ok := a.tokens[credential]
	if !ok {
		return "", ErrInvalidCredential
	}
	return principal, nil
}

// Resolve returns the principal for credential, or "" (anonymous) on any
// failure or when a is nil.
func Resolve(ctx context.Context, a Authenticator, credential string) string {
	if a == nil || credential == "" {
		return ""
	}
	principal, err := a.Authenticate(ctx, credential)
	if err != nil {
		return ""
	}
	return principal
}

// CredentialFromRequest reads a bearer token from the Authorization header,
// falling back to the "token" query parameter (EventSource cannot set headers).
func CredentialFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}
