package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrIdentity wraps every failure to turn a presented credential into a principal.
var ErrIdentity = errors.New("identity verification failed")

// FailurePolicy selects what happens when a presented credential cannot be verified.
type FailurePolicy string

const (
	// FailOpen continues the request anonymously.
	FailOpen FailurePolicy = "fail_open"
	// FailClosed rejects the request with 401.
	FailClosed FailurePolicy = "fail_closed"
)

// ParseFailurePolicy accepts "fail_open", "fail_closed" or empty (fail_open).
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FailOpen:
		return FailOpen, nil
	case FailClosed:
		return FailClosed, nil
	}
	return "", fmt.Errorf("unknown auth failure policy %q", s)
}

// IdentityProvider fetches the profile that belongs to a bearer token.
type IdentityProvider interface {
	UserInfo(ctx context.Context, token string) (map[string]any, error)
}

// UserInfoClient calls an OpenID Connect userinfo endpoint.
type UserInfoClient struct {
	URL        string
	HTTPClient *http.Client
}

// NewUserInfoClient creates a client for the given userinfo URL.
func NewUserInfoClient(url string, timeout time.Duration) *UserInfoClient {
	return &UserInfoClient{URL: url, HTTPClient: &http.Client{Timeout: timeout}}
}

// UserInfoURL derives the userinfo endpoint of a Keycloak-style issuer.
func UserInfoURL(issuer string) string {
	return strings.TrimSuffix(issuer, "/") + "/protocol/openid-connect/userinfo"
}

// UserInfo returns the decoded profile for token.
func (c *UserInfoClient) UserInfo(ctx context.Context, token string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var profile map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode userinfo: %w", err)
	}
	return profile, nil
}

// Resolver turns the bearer credential of a request into a Principal.
type Resolver struct {
	Enabled  bool
	ClientID string
	Provider IdentityProvider
	OnError  FailurePolicy
}

// FailOpen reports whether verification failures degrade to anonymous access.
func (r *Resolver) FailOpen() bool {
	return r.OnError != FailClosed
}

// Resolve returns the request's principal. It returns nil without error when
// authorization is disabled or no bearer credential is present. Any failure
// to verify a presented credential is reported as ErrIdentity.
func (r *Resolver) Resolve(req *http.Request) (*Principal, error) {
	if r == nil || !r.Enabled {
		return nil, nil
	}

	token, ok := BearerToken(req.Header.Get("Authorization"))
	if !ok {
		return nil, nil
	}

	if r.Provider == nil {
		return nil, fmt.Errorf("%w: no identity provider configured", ErrIdentity)
	}
	profile, err := r.Provider.UserInfo(req.Context(), token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentity, err)
	}

	roles, err := ClientRoles(token, r.ClientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentity, err)
	}

	p := &Principal{
		Subject:  stringClaim(profile, "sub"),
		Username: stringClaim(profile, "preferred_username"),
		Email:    stringClaim(profile, "email"),
		Profile:  profile,
		Roles:    make(map[string]struct{}, len(roles)),
	}
	for _, role := range roles {
		p.Roles[role] = struct{}{}
	}
	return p, nil
}

// BearerToken extracts the credential of an "Authorization: Bearer" header.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", false
	}
	return token, true
}

// ClientRoles decodes the token's claims without verifying its signature and
// returns resource_access.<clientID>.roles. The signature is vouched for by
// the userinfo call that precedes it.
func ClientRoles(token, clientID string) ([]string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decode token claims: %w", err)
	}

	access, ok := claims["resource_access"].(map[string]any)
	if !ok {
		return nil, nil
	}
	client, ok := access[clientID].(map[string]any)
	if !ok {
		return nil, nil
	}
	raw, ok := client["roles"].([]any)
	if !ok {
		return nil, nil
	}

	roles := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok && s != "" {
			roles = append(roles, s)
		}
	}
	return roles, nil
}

func stringClaim(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
