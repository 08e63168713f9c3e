package controllers_test

import (
	"context"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"whybuy-dashboard/controllers"
	apperrors "whybuy-dashboard/errors"
	"whybuy-dashboard/middleware"
	"whybuy-dashboard/models"
	"whybuy-dashboard/poller"
	"whybuy-dashboard/sequence"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAuth struct {
	mu         sync.Mutex
	signedOut  []string
	redirectTo string
	code       string
	verifier   string
}

func (f *fakeAuth) SignIn(_ context.Context, email, password string) (*models.Session, error) {
	if password != "secret" {
		return nil, apperrors.Unauthorized("Invalid login credentials")
	}
	return &models.Session{ID: "sid-1", Email: email}, nil
}

func (f *fakeAuth) BeginOAuth(provider, redirectTo string) (string, string, error) {
	f.mu.Lock()
	f.redirectTo = redirectTo
	f.mu.Unlock()
	return "https://auth.test/authorize?provider=" + provider, "verifier-1", nil
}

func (f *fakeAuth) CompleteOAuth(_ context.Context, code, verifier string) (*models.Session, error) {
	f.mu.Lock()
	f.code, f.verifier = code, verifier
	f.mu.Unlock()
	return &models.Session{ID: "sid-2"}, nil
}

func (f *fakeAuth) SignOut(_ context.Context, sid string) error {
	f.mu.Lock()
	f.signedOut = append(f.signedOut, sid)
	f.mu.Unlock()
	return nil
}

func setupAuthRouter(auth *fakeAuth, polls *poller.Scheduler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	ac := controllers.NewAuthController(auth, polls, sequence.NewTracker(),
		controllers.CookieSettings{MaxAge: time.Hour}, "https://dash.test/", zap.NewNop())
	home := controllers.NewHomeController(controllers.PublicEnv{AuthURL: "https://auth.test", AuthAnonKey: "anon", AppEnv: "staging"})

	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.New("").Parse(testTemplates)))
	r.GET("/health", home.Health)
	r.GET("/env.js", home.EnvJS)
	r.GET("/login", ac.LoginPage)
	r.POST("/login", ac.Login)
	r.GET("/auth/google", ac.Google)
	r.GET("/auth/callback", ac.Callback)
	r.POST("/logout", ac.Logout)
	return r
}

func postForm(r *gin.Engine, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func cookieNamed(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestLogin(t *testing.T) {
	r := setupAuthRouter(&fakeAuth{}, poller.New(zap.NewNop()))

	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
		wantTo     string
		wantBody   string
	}{
		{"success", url.Values{"email": {"ops@acme.test"}, "password": {"secret"}, "next": {"/acme/products"}}, http.StatusFound, "/acme/products", ""},
		{"offsite next", url.Values{"email": {"ops@acme.test"}, "password": {"secret"}, "next": {"//evil.test"}}, http.StatusFound, "/", ""},
		{"missing fields", url.Values{"email": {"ops@acme.test"}}, http.StatusBadRequest, "", "login Email and password are required"},
		{"bad password", url.Values{"email": {"ops@acme.test"}, "password": {"wrong"}}, http.StatusUnauthorized, "", "login Invalid login credentials"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postForm(r, "/login", tt.form)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantTo != "" {
				assert.Equal(t, tt.wantTo, w.Header().Get("Location"))
				sid := cookieNamed(w, middleware.SessionCookie)
				require.NotNil(t, sid)
				assert.Equal(t, "sid-1", sid.Value)
				assert.True(t, sid.HttpOnly)
				assert.Equal(t, 3600, sid.MaxAge)
			} else {
				assert.Equal(t, tt.wantBody, w.Body.String())
				assert.Nil(t, cookieNamed(w, middleware.SessionCookie))
			}
		})
	}
}

func TestGoogleOAuthRoundTrip(t *testing.T) {
	auth := &fakeAuth{}
	r := setupAuthRouter(auth, poller.New(zap.NewNop()))

	req, _ := http.NewRequest(http.MethodGet, "/auth/google?next=/acme/config", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://auth.test/authorize?provider=google", w.Header().Get("Location"))
	assert.Equal(t, "https://dash.test/auth/callback", auth.redirectTo)
	verifier := cookieNamed(w, "pkce_verifier")
	next := cookieNamed(w, "auth_next")
	require.NotNil(t, verifier)
	require.NotNil(t, next)

	req, _ = http.NewRequest(http.MethodGet, "/auth/callback?code=abc", nil)
	req.AddCookie(verifier)
	req.AddCookie(next)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/acme/config", w.Header().Get("Location"))
	assert.Equal(t, "abc", auth.code)
	assert.Equal(t, "verifier-1", auth.verifier)
	assert.Equal(t, "sid-2", cookieNamed(w, middleware.SessionCookie).Value)
}

func TestCallbackProviderError(t *testing.T) {
	r := setupAuthRouter(&fakeAuth{}, poller.New(zap.NewNop()))

	req, _ := http.NewRequest(http.MethodGet, "/auth/callback?error_description=Access+denied", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "login Access denied", w.Body.String())
}

func TestLogoutStopsSessionPollers(t *testing.T) {
	auth := &fakeAuth{}
	polls := poller.New(zap.NewNop())
	r := setupAuthRouter(auth, polls)

	polls.Start(context.Background(), poller.Key{Session: "sid-1", View: "products:b1", Purpose: "jobs"}, time.Hour, func(context.Context) {})
	polls.Start(context.Background(), poller.Key{Session: "other", View: "products:b1", Purpose: "jobs"}, time.Hour, func(context.Context) {})
	defer polls.Shutdown()

	w := postForm(r, "/logout", nil, &http.Cookie{Name: middleware.SessionCookie, Value: "sid-1"})

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
	assert.Equal(t, []string{"sid-1"}, auth.signedOut)
	assert.Equal(t, -1, cookieNamed(w, middleware.SessionCookie).MaxAge)
	assert.Eventually(t, func() bool { return polls.Len() == 1 }, time.Second, 10*time.Millisecond)
}

func TestEnvJSAndHealth(t *testing.T) {
	r := setupAuthRouter(&fakeAuth{}, poller.New(zap.NewNop()))

	req, _ := http.NewRequest(http.MethodGet, "/env.js", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Contains(t, w.Header().Get("Content-Type"), "application/javascript")
	assert.Equal(t, `window.env = {"AUTH_URL":"https://auth.test","AUTH_ANON_KEY":"anon","APP_ENV":"staging"};`+"\n", w.Body.String())

	req, _ = http.NewRequest(http.MethodGet, "/health", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
