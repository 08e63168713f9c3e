package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	apperrors "whybuy-dashboard/errors"
	"whybuy-dashboard/logger"
	"whybuy-dashboard/middleware"
	"whybuy-dashboard/models"
	"whybuy-dashboard/poller"
	"whybuy-dashboard/sequence"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	pkceCookie = "pkce_verifier"
	nextCookie = "auth_next"
	pkceTTL    = 10 * time.Minute
)

// Authenticator is the sign-in side of the session provider.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*models.Session, error)
	BeginOAuth(provider, redirectTo string) (string, string, error)
	CompleteOAuth(ctx context.Context, code, verifier string) (*models.Session, error)
	SignOut(ctx context.Context, sid string) error
}

// CookieSettings controls how the session cookie is issued.
type CookieSettings struct {
	Secure bool
	MaxAge time.Duration
}

type AuthController struct {
	auth      Authenticator
	polls     *poller.Scheduler
	seq       *sequence.Tracker
	cookies   CookieSettings
	publicURL string
	log       *zap.Logger
}

func NewAuthController(auth Authenticator, polls *poller.Scheduler, seq *sequence.Tracker, cookies CookieSettings, publicURL string, log *zap.Logger) *AuthController {
	return &AuthController{
		auth:      auth,
		polls:     polls,
		seq:       seq,
		cookies:   cookies,
		publicURL: strings.TrimRight(publicURL, "/"),
		log:       log,
	}
}

// safeNext keeps redirects on this site.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}

func (ac *AuthController) setCookie(c *gin.Context, name, value string, maxAge time.Duration) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, int(maxAge.Seconds()), "/", "", ac.cookies.Secure, true)
}

func (ac *AuthController) clearCookie(c *gin.Context, name string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, "", -1, "/", "", ac.cookies.Secure, true)
}

func (ac *AuthController) renderLogin(c *gin.Context, status int, email, next, errMsg string) {
	c.HTML(status, "login.html", gin.H{
		"Title": "Sign in",
		"Email": email,
		"Next":  next,
		"Error": errMsg,
		"Flash": middleware.PopFlash(c),
	})
}

// LoginPage handles GET /login
func (ac *AuthController) LoginPage(c *gin.Context) {
	ac.renderLogin(c, http.StatusOK, "", safeNext(c.Query("next")), c.Query("error"))
}

// Login handles POST /login
func (ac *AuthController) Login(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")
	next := safeNext(c.PostForm("next"))
	if email == "" || password == "" {
		ac.renderLogin(c, http.StatusBadRequest, email, next, "Email and password are required")
		return
	}

	sess, err := ac.auth.SignIn(c.Request.Context(), email, password)
	if err != nil {
		appErr := apperrors.As(err)
		logger.For(c, ac.log).Warn("sign-in failed", zap.Int("status", appErr.Code))
		status := appErr.Code
		if status < http.StatusInternalServerError {
			status = http.StatusUnauthorized
		}
		ac.renderLogin(c, status, email, next, appErr.Message)
		return
	}

	ac.setCookie(c, middleware.SessionCookie, sess.ID, ac.cookies.MaxAge)
	c.Redirect(http.StatusFound, next)
}

// Throttled renders the login form after too many attempts.
func (ac *AuthController) Throttled(c *gin.Context) {
	ac.renderLogin(c, http.StatusTooManyRequests, c.PostForm("email"), safeNext(c.PostForm("next")),
		"Too many sign-in attempts. Try again in a minute.")
}

func (ac *AuthController) callbackURL(c *gin.Context) string {
	if ac.publicURL != "" {
		return ac.publicURL + "/auth/callback"
	}
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + "/auth/callback"
}

// Google handles GET /auth/google
func (ac *AuthController) Google(c *gin.Context) {
	authURL, verifier, err := ac.auth.BeginOAuth("google", ac.callbackURL(c))
	if err != nil {
		logger.For(c, ac.log).Error("failed to start oauth", zap.Error(err))
		ac.renderLogin(c, http.StatusInternalServerError, "", "/", apperrors.GenericMessage)
		return
	}
	ac.setCookie(c, pkceCookie, verifier, pkceTTL)
	ac.setCookie(c, nextCookie, safeNext(c.Query("next")), pkceTTL)
	c.Redirect(http.StatusFound, authURL)
}

// Callback handles GET /auth/callback?code=
func (ac *AuthController) Callback(c *gin.Context) {
	if msg := c.Query("error_description"); msg != "" {
		ac.renderLogin(c, http.StatusUnauthorized, "", "/", msg)
		return
	}
	verifier, _ := c.Cookie(pkceCookie)
	next, _ := c.Cookie(nextCookie)
	ac.clearCookie(c, pkceCookie)
	ac.clearCookie(c, nextCookie)

	sess, err := ac.auth.CompleteOAuth(c.Request.Context(), c.Query("code"), verifier)
	if err != nil {
		appErr := apperrors.As(err)
		logger.For(c, ac.log).Warn("oauth callback failed", zap.Int("status", appErr.Code), zap.Error(err))
		ac.renderLogin(c, http.StatusUnauthorized, "", "/", appErr.Message)
		return
	}

	ac.setCookie(c, middleware.SessionCookie, sess.ID, ac.cookies.MaxAge)
	c.Redirect(http.StatusFound, safeNext(next))
}

// Logout handles POST /logout. Pollers and in-flight list requests of the
// session are torn down with it.
func (ac *AuthController) Logout(c *gin.Context) {
	sid, _ := c.Cookie(middleware.SessionCookie)
	if sid != "" {
		ac.polls.StopSession(sid)
		ac.seq.Forget(sid + ":")
		if err := ac.auth.SignOut(c.Request.Context(), sid); err != nil {
			logger.For(c, ac.log).Error("failed to delete session", zap.Error(err))
		}
	}
	ac.clearCookie(c, middleware.SessionCookie)
	c.Redirect(http.StatusFound, "/login")
}
