package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"

	"github.com/go-api-accounts/internal/config"
	"github.com/go-api-accounts/internal/domain"
)

const defaultUserinfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

// Identity holds the verified profile of a Google account.
type Identity struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	FirstName     string `json:"given_name"`
	LastName      string `json:"family_name"`
}

// Client exchanges authorization codes and verifies ID tokens for one OAuth client.
type Client struct {
	oauth       *oauth2.Config
	clientID    string
	userinfoURL string
	validate    func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURI,
			Endpoint:     googleoauth.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		clientID:    cfg.GoogleClientID,
		userinfoURL: defaultUserinfoURL,
		validate:    idtoken.Validate,
	}
}

// Configured reports whether OAuth credentials are present.
func (c *Client) Configured() bool {
	return c.clientID != ""
}

// VerifyIDToken validates a Google ID token issued to this client.
// Returns a domain.ErrUnauthorized-wrapped error if the token is invalid.
func (c *Client) VerifyIDToken(ctx context.Context, token string) (*Identity, error) {
	p, err := c.validate(ctx, token, c.clientID)
	if err != nil {
		return nil, fmt.Errorf("invalid google token: %w", domain.ErrUnauthorized)
	}
	email, _ := p.Claims["email"].(string)
	emailVerified, _ := p.Claims["email_verified"].(bool)
	firstName, _ := p.Claims["given_name"].(string)
	lastName, _ := p.Claims["family_name"].(string)
	return &Identity{
		Sub:           p.Subject,
		Email:         email,
		EmailVerified: emailVerified,
		FirstName:     firstName,
		LastName:      lastName,
	}, nil
}

// Exchange trades an authorization code for tokens and resolves the identity,
// from the returned ID token when present and from the userinfo endpoint otherwise.
func (c *Client) Exchange(ctx context.Context, code string) (*Identity, error) {
	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google code exchange failed: %w", domain.ErrUnauthorized)
	}
	if idt, ok := tok.Extra("id_token").(string); ok && idt != "" {
		return c.VerifyIDToken(ctx, idt)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userinfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("google userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google userinfo status %d: %w", resp.StatusCode, domain.ErrUnauthorized)
	}
	var id Identity
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return nil, fmt.Errorf("decode google userinfo: %w", err)
	}
	return &id, nil
}
