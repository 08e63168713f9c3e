package clients

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"whybuy-dashboard/models"
)

// TokenResponse is the auth provider's grant response.
type TokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int      `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	User         AuthUser `json:"user"`
}

// Expiry returns the absolute access-token expiry.
func (t TokenResponse) Expiry(now time.Time) time.Time {
	if t.ExpiresAt > 0 {
		return time.Unix(t.ExpiresAt, 0)
	}
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}

type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// AuthClient talks to the hosted auth provider (token grants) and its REST
// data API (brands and the per-user allow-list).
type AuthClient struct {
	rest    restClient
	authURL string
	anonKey string
}

func NewAuthClient(authURL, anonKey string, timeout time.Duration) *AuthClient {
	return &AuthClient{
		rest:    newRESTClient(authURL, timeout),
		authURL: authURL,
		anonKey: anonKey,
	}
}

func (a *AuthClient) headers(token string) http.Header {
	h := bearer(token)
	h.Set("apikey", a.anonKey)
	if token == "" {
		h.Set("Authorization", "Bearer "+a.anonKey)
	}
	return h
}

func (a *AuthClient) grant(ctx context.Context, grantType string, body interface{}) (*TokenResponse, error) {
	var res TokenResponse
	q := url.Values{"grant_type": {grantType}}
	if err := a.rest.call(ctx, http.MethodPost, "/auth/v1/token", q, a.headers(""), body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (*TokenResponse, error) {
	return a.grant(ctx, "password", map[string]string{"email": email, "password": password})
}

func (a *AuthClient) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	return a.grant(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

// ExchangeCode completes the PKCE flow started by AuthorizeURL.
func (a *AuthClient) ExchangeCode(ctx context.Context, code, verifier string) (*TokenResponse, error) {
	return a.grant(ctx, "pkce", map[string]string{"auth_code": code, "code_verifier": verifier})
}

// AuthorizeURL is where the browser goes to sign in with provider.
func (a *AuthClient) AuthorizeURL(provider, redirectTo, challenge string) string {
	q := url.Values{}
	q.Set("provider", provider)
	q.Set("redirect_to", redirectTo)
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "s256")
	return a.authURL + "/auth/v1/authorize?" + q.Encode()
}

// SignOut revokes the session behind token.
func (a *AuthClient) SignOut(ctx context.Context, token string) error {
	return a.rest.call(ctx, http.MethodPost, "/auth/v1/logout", nil, a.headers(token), nil, nil)
}

func (a *AuthClient) ListBrands(ctx context.Context, token string) ([]models.Brand, error) {
	var brands []models.Brand
	q := url.Values{"select": {"*"}, "order": {"name.asc"}}
	if err := a.rest.call(ctx, http.MethodGet, "/rest/v1/brands", q, a.headers(token), nil, &brands); err != nil {
		return nil, err
	}
	return brands, nil
}

// UserAccess returns the allow-list row for userID, or nil when the user has
// no row.
func (a *AuthClient) UserAccess(ctx context.Context, token, userID string) (*models.UserAccess, error) {
	var rows []models.UserAccess
	q := url.Values{"select": {"allowed_brands"}, "id": {"eq." + userID}}
	if err := a.rest.call(ctx, http.MethodGet, "/rest/v1/users", q, a.headers(token), nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
