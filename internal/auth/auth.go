package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/grvbrk/vidcatalog_server/internal/models"
)

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// Resolver validates a bearer credential against the identity provider and
// returns who it belongs to. Nothing is cached; every call reaches the provider.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (*models.Identity, error)
}

// BearerToken extracts the credential from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
