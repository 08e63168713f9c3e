package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"whybuy-dashboard/clients"
	apperrors "whybuy-dashboard/errors"
	"whybuy-dashboard/logger"
	"whybuy-dashboard/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// RefreshWindow is how close to expiry an access token gets refreshed.
const RefreshWindow = 60 * time.Second

// AuthAPI is the identity provider the sessions are backed by.
type AuthAPI interface {
	SignInWithPassword(ctx context.Context, email, password string) (*clients.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*clients.TokenResponse, error)
	ExchangeCode(ctx context.Context, code, verifier string) (*clients.TokenResponse, error)
	AuthorizeURL(provider, redirectTo, challenge string) string
	SignOut(ctx context.Context, token string) error
}

// Identity is the signed-in user attached to a request.
type Identity struct {
	SessionID string
	UserID    string
	Email     string
}

// Provider owns the session lifecycle: sign-in, token refresh and sign-out.
type Provider struct {
	store     Store
	auth      AuthAPI
	jwtSecret []byte
	log       *zap.Logger
	refresh   singleflight.Group
	now       func() time.Time
}

func NewProvider(store Store, auth AuthAPI, jwtSecret string, log *zap.Logger) *Provider {
	return &Provider{
		store:     store,
		auth:      auth,
		jwtSecret: []byte(jwtSecret),
		log:       log,
		now:       time.Now,
	}
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	tok, err := p.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return p.create(ctx, tok)
}

// BeginOAuth returns the provider authorize URL and the PKCE verifier the
// callback must present.
func (p *Provider) BeginOAuth(provider, redirectTo string) (string, string, error) {
	verifier, err := NewVerifier()
	if err != nil {
		return "", "", err
	}
	return p.auth.AuthorizeURL(provider, redirectTo, Challenge(verifier)), verifier, nil
}

func (p *Provider) CompleteOAuth(ctx context.Context, code, verifier string) (*models.Session, error) {
	if code == "" || verifier == "" {
		return nil, apperrors.BadRequest("missing authorization code")
	}
	tok, err := p.auth.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, err
	}
	return p.create(ctx, tok)
}

func (p *Provider) create(ctx context.Context, tok *clients.TokenResponse) (*models.Session, error) {
	claims, err := ParseClaims(tok.AccessToken, p.jwtSecret)
	if err != nil {
		return nil, apperrors.New(http.StatusUnauthorized, "sign-in rejected", err)
	}

	now := p.now()
	sess := &models.Session{
		ID:           uuid.NewString(),
		UserID:       tok.User.ID,
		Email:        tok.User.Email,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry(now),
		CreatedAt:    now,
	}
	if sess.UserID == "" {
		sess.UserID = claims.Subject
	}
	if sess.Email == "" {
		sess.Email = claims.Email
	}

	if err := p.store.Save(ctx, sess); err != nil {
		return nil, err
	}
	logger.For(ctx, p.log).Info("session created", zap.String("user_id", sess.UserID))
	return sess, nil
}

// Load returns the session for sid, mapping a missing record to 401.
func (p *Provider) Load(ctx context.Context, sid string) (*models.Session, error) {
	if sid == "" {
		return nil, apperrors.Unauthorized("not signed in")
	}
	sess, err := p.store.Get(ctx, sid)
	if errors.Is(err, ErrNotFound) {
		return nil, apperrors.Unauthorized("session expired")
	}
	return sess, err
}

// Update applies fn to the stored session under an optimistic transaction,
// so a request only overwrites the fields fn touches. A session signed out
// meanwhile stays deleted.
func (p *Provider) Update(ctx context.Context, sid string, fn func(*models.Session)) error {
	err := p.store.Update(ctx, sid, func(s *models.Session) error {
		fn(s)
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// AccessToken returns a bearer token for sid that is valid for at least
// RefreshWindow. Concurrent refreshes of one session share a single grant.
func (p *Provider) AccessToken(ctx context.Context, sid string) (string, error) {
	sess, err := p.Load(ctx, sid)
	if err != nil {
		return "", err
	}
	if !sess.ExpiresWithin(p.now(), RefreshWindow) {
		return sess.AccessToken, nil
	}

	v, err, _ := p.refresh.Do(sid, func() (interface{}, error) {
		return p.refreshSession(context.WithoutCancel(ctx), sid)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *Provider) refreshSession(ctx context.Context, sid string) (string, error) {
	// another caller may have refreshed between Load and Do
	sess, err := p.Load(ctx, sid)
	if err != nil {
		return "", err
	}
	if !sess.ExpiresWithin(p.now(), RefreshWindow) {
		return sess.AccessToken, nil
	}

	tok, err := p.auth.Refresh(ctx, sess.RefreshToken)
	if err != nil {
		logger.For(ctx, p.log).Warn("token refresh failed", zap.String("user_id", sess.UserID), zap.Error(err))
		return "", apperrors.New(http.StatusUnauthorized, "session expired", err)
	}

	expires := tok.Expiry(p.now())
	err = p.store.Update(ctx, sid, func(cur *models.Session) error {
		cur.AccessToken = tok.AccessToken
		if tok.RefreshToken != "" {
			cur.RefreshToken = tok.RefreshToken
		}
		cur.ExpiresAt = expires
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return "", apperrors.Unauthorized("session expired")
	}
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// SignOut revokes the provider session (best effort) and deletes the record,
// which drops all brand state with it.
func (p *Provider) SignOut(ctx context.Context, sid string) error {
	sess, err := p.store.Get(ctx, sid)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := p.auth.SignOut(ctx, sess.AccessToken); err != nil {
		logger.For(ctx, p.log).Warn("provider sign-out failed", zap.Error(err))
	}
	sess.ClearBrands()
	return p.store.Delete(ctx, sid)
}

// Lock and Unlock expose the store's short-lived locks to handlers.
func (p *Provider) Lock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return p.store.Lock(ctx, key, ttl)
}

func (p *Provider) Unlock(ctx context.Context, key string) error {
	return p.store.Unlock(ctx, key)
}
