// Package client provides OAuth2 client setup for Google APIs.
//
// Tokens are acquired by the browser; the server only ever receives a bearer
// access token and wraps it for outgoing calls.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// ErrMissingToken is returned when an empty access token is supplied.
var ErrMissingToken = errors.New("access token is required")

// TokenSource wraps a bearer access token in a static oauth2 token source.
func TokenSource(accessToken string) (oauth2.TokenSource, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, ErrMissingToken
	}
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}), nil
}

// New returns an HTTP client that authenticates every request with accessToken.
func New(ctx context.Context, accessToken string) (*http.Client, error) {
	ts, err := TokenSource(accessToken)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, ts), nil
}

// Profile is the identity reported by Google's userinfo endpoint.
type Profile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name,omitempty"`
	FamilyName    string `json:"family_name,omitempty"`
	Picture       string `json:"picture,omitempty"`
	VerifiedEmail bool   `json:"verified_email"`
}

// ProfileFetcher looks up the profile behind an access token.
type ProfileFetcher struct {
	opts   []option.ClientOption
	logger *slog.Logger
}

// NewProfileFetcher creates a ProfileFetcher. Extra options are appended to
// every service construction (tests use option.WithEndpoint).
func NewProfileFetcher(logger *slog.Logger, opts ...option.ClientOption) *ProfileFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileFetcher{opts: opts, logger: logger}
}

// Fetch calls userinfo with the caller's token.
func (f *ProfileFetcher) Fetch(ctx context.Context, accessToken string) (*Profile, error) {
	httpClient, err := New(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	opts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, f.opts...)
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating oauth2 service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetching userinfo: %w", err)
	}
	if info.Email == "" {
		return nil, errors.New("userinfo response has no email")
	}

	f.logger.Debug("fetched user profile", "email", info.Email)

	p := &Profile{
		ID:         info.Id,
		Email:      info.Email,
		Name:       info.Name,
		GivenName:  info.GivenName,
		FamilyName: info.FamilyName,
		Picture:    info.Picture,
	}
	if info.VerifiedEmail != nil {
		p.VerifiedEmail = *info.VerifiedEmail
	}
	return p, nil
}
