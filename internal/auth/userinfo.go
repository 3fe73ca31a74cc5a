package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/grvbrk/vidcatalog_server/internal/models"
	"golang.org/x/oauth2"
)

// UserInfoResolver validates a token by calling an OpenID Connect userinfo
// endpoint with it.
type UserInfoResolver struct {
	userInfoURL string
	httpClient  *http.Client
}

var _ Resolver = (*UserInfoResolver)(nil)

// NewUserInfoResolver uses http.DefaultClient for transport unless base is set.
func NewUserInfoResolver(userInfoURL string, base *http.Client) *UserInfoResolver {
	return &UserInfoResolver{
		userInfoURL: userInfoURL,
		httpClient:  base,
	}
}

type userInfo struct {
	Subject           string `json:"sub"`
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
}

func (u *UserInfoResolver) Resolve(ctx context.Context, credential string) (*models.Identity, error) {
	if credential == "" {
		return nil, fmt.Errorf("%w: missing access token", ErrUnauthorized)
	}

	if u.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, u.httpClient)
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: credential,
		TokenType:   "Bearer",
	}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: provider returned %s", ErrUnauthorized, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: provider returned %s", ErrProviderUnavailable, resp.Status)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decoding userinfo: %v", ErrProviderUnavailable, err)
	}

	name := info.PreferredUsername
	if name == "" {
		name = info.Name
	}
	if name == "" {
		return nil, fmt.Errorf("%w: userinfo has no display name", ErrUnauthorized)
	}

	subject := info.Subject
	if subject == "" {
		subject = name
	}

	return &models.Identity{
		Subject:     subject,
		DisplayName: name,
	}, nil
}
