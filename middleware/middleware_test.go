package middleware

import (
	"context"
	"html/template"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	apperrors "whybuy-dashboard/errors"
	"whybuy-dashboard/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSessions struct {
	mu        sync.Mutex
	sessions  map[string]*models.Session
	saved     int
	afterLoad func(stored *models.Session)
}

func newFakeSessions(s ...*models.Session) *fakeSessions {
	f := &fakeSessions{sessions: map[string]*models.Session{}}
	for _, sess := range s {
		f.sessions[sess.ID] = sess
	}
	return f
}

func (f *fakeSessions) Load(_ context.Context, sid string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sid]
	if !ok {
		return nil, apperrors.Unauthorized("session expired")
	}
	cp := *s
	if f.afterLoad != nil {
		f.afterLoad(s)
	}
	return &cp, nil
}

func (f *fakeSessions) AccessToken(_ context.Context, sid string) (string, error) {
	return "tok-" + sid, nil
}

func (f *fakeSessions) Update(_ context.Context, sid string, fn func(*models.Session)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sid]; ok {
		fn(s)
		f.saved++
	}
	return nil
}

type fakeBrands struct {
	calls     int
	brands    []models.Brand
	listErr   error
	access    *models.UserAccess
	accessErr error
}

func (f *fakeBrands) ListBrands(context.Context, string) ([]models.Brand, error) {
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.brands, nil
}

func (f *fakeBrands) UserAccess(context.Context, string, string) (*models.UserAccess, error) {
	return f.access, f.accessErr
}

const testTemplates = `{{define "error.html"}}error: {{.Message}}{{end}}{{define "brand_missing.html"}}missing: {{.Code}}{{end}}`

func setupRouter(sessions *fakeSessions, src *fakeBrands) *gin.Engine {
	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.New("").Parse(testTemplates)))

	authed := r.Group("/", RequireSession(sessions))
	authed.GET("/", BrandList(sessions, src, zap.NewNop()), func(c *gin.Context) {
		s, _ := CurrentSession(c)
		c.JSON(http.StatusOK, gin.H{"brands": len(s.Brands), "flash": PopFlash(c)})
	})
	scoped := authed.Group("/:brandCode", BrandContext(sessions, src, zap.NewNop()))
	scoped.GET("/products", func(c *gin.Context) {
		b, _ := CurrentBrand(c)
		id, _ := CurrentIdentity(c)
		c.String(http.StatusOK, b.Code+" "+id.UserID)
	})
	scoped.GET("/actions/products", func(c *gin.Context) {
		b, _ := CurrentBrand(c)
		c.JSON(http.StatusOK, gin.H{"brand": b.Code})
	})
	return r
}

func get(r http.Handler, path, sid string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if sid != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookie, Value: sid})
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

var (
	acme   = models.Brand{ID: "b1", Code: "acme"}
	globex = models.Brand{ID: "b2", Code: "globex"}
)

func TestRequireSession(t *testing.T) {
	r := setupRouter(newFakeSessions(), &fakeBrands{})

	w := get(r, "/acme/products", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?next=%2Facme%2Fproducts", w.Header().Get("Location"))

	w = get(r, "/acme/actions/products", "gone")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"session expired"}`, w.Body.String())
}

func TestBrandContextResolvesAndCachesBrands(t *testing.T) {
	sessions := newFakeSessions(&models.Session{ID: "s1", UserID: "u1"})
	src := &fakeBrands{brands: []models.Brand{acme, globex}, access: &models.UserAccess{AllowedBrands: []string{"acme"}}}
	r := setupRouter(sessions, src)

	w := get(r, "/acme/products", "s1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "acme u1", w.Body.String())
	assert.Equal(t, "b1", sessions.sessions["s1"].ActiveBrandID)

	w = get(r, "/acme/actions/products", "s1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, src.calls, "brands load once per session")

	// globex exists but is not in the allow-list; acme stays active
	w = get(r, "/globex/products", "s1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "acme u1", w.Body.String())
	assert.Equal(t, "b1", sessions.sessions["s1"].ActiveBrandID)
}

func TestBrandContextUnknownWithoutActiveBrand(t *testing.T) {
	sessions := newFakeSessions(&models.Session{ID: "s1", UserID: "u1"})
	r := setupRouter(sessions, &fakeBrands{brands: []models.Brand{acme}})

	w := get(r, "/initech/products", "s1")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "missing: initech", w.Body.String())

	w = get(r, "/initech/actions/products", "s1")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"brand not available"}`, w.Body.String())
}

func TestBrandListClearsActiveBrand(t *testing.T) {
	sessions := newFakeSessions(&models.Session{ID: "s1", UserID: "u1", ActiveBrandID: "b1", Brands: []models.Brand{acme}, BrandsLoaded: true})
	r := setupRouter(sessions, &fakeBrands{})

	w := get(r, "/", "s1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"brands":1,"flash":""}`, w.Body.String())
	assert.Empty(t, sessions.sessions["s1"].ActiveBrandID)
}

func TestBrandLoadFailureRedirectsPages(t *testing.T) {
	sessions := newFakeSessions(&models.Session{ID: "s1", UserID: "u1"})
	src := &fakeBrands{listErr: apperrors.New(http.StatusBadGateway, "brand service unavailable", nil)}
	r := setupRouter(sessions, src)

	w := get(r, "/acme/products", "s1")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.Contains(t, w.Header().Get("Set-Cookie"), "flash=Could+not+load+your+brands")

	w = get(r, "/acme/actions/products", "s1")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"error":"brand service unavailable"}`, w.Body.String())

	// the picker is the redirect target, so it renders with the message
	w = get(r, "/", "s1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"brands":0,"flash":"Could not load your brands. Please try again."}`, w.Body.String())
	assert.False(t, sessions.sessions["s1"].BrandsLoaded, "a failed load is retried next time")
}

func TestBrandAccessFailureShowsAllBrands(t *testing.T) {
	sessions := newFakeSessions(&models.Session{ID: "s1", UserID: "u1"})
	src := &fakeBrands{brands: []models.Brand{acme, globex}, accessErr: apperrors.New(http.StatusBadGateway, "access lookup failed", nil)}
	r := setupRouter(sessions, src)

	w := get(r, "/globex/products", "s1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "globex u1", w.Body.String())
	assert.Len(t, sessions.sessions["s1"].Brands, 2)
}

func TestBrandUpdateKeepsOtherFields(t *testing.T) {
	sessions := newFakeSessions(&models.Session{ID: "s1", UserID: "u1"})
	// another request caches prompts right after this one loads the session
	sessions.afterLoad = func(stored *models.Session) {
		stored.Prompts = map[string][]models.Prompt{"b1": {{Name: "title"}}}
	}
	r := setupRouter(sessions, &fakeBrands{brands: []models.Brand{acme}})

	w := get(r, "/acme/products", "s1")

	require.Equal(t, http.StatusOK, w.Code)
	stored := sessions.sessions["s1"]
	assert.Equal(t, "b1", stored.ActiveBrandID)
	assert.True(t, stored.BrandsLoaded)
	assert.Len(t, stored.Prompts["b1"], 1, "brand write leaves the prompt cache alone")
}

func TestRequestIDIsEchoed(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), RequestLogger(zap.NewNop()))
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := get(r, "/health", "")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
}

func TestRateLimiterPerIP(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Minute), 2, time.Hour)
	assert.True(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("2.2.2.2"))

	r := gin.New()
	r.POST("/login", LoginThrottle(NewRateLimiter(rate.Every(time.Minute), 1, time.Hour), func(c *gin.Context) {
		c.String(http.StatusTooManyRequests, "slow down")
	}), func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "9.9.9.9:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, "attempt %d", i)
	}
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
	done   chan struct{}
}

func (r *countingRecorder) RecordCount(_ context.Context, name string, dims map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name+" "+dims["Path"]]++
	if name == "HTTP4xxErrors" {
		close(r.done)
	}
	return nil
}

func (r *countingRecorder) RecordLatency(context.Context, string, time.Duration, map[string]string) error {
	return nil
}

func TestMetricsMiddlewareUsesRouteTemplate(t *testing.T) {
	rec := &countingRecorder{counts: map[string]int{}, done: make(chan struct{})}
	r := gin.New()
	r.Use(MetricsMiddleware(rec, "dashboard"))
	r.GET("/:brandCode/products/:productId", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	get(r, "/acme/products/42", "")
	select {
	case <-rec.done:
	case <-time.After(time.Second):
		t.Fatal("metrics not recorded")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.counts["HTTPRequests /:brandCode/products/:productId"])
	assert.Equal(t, 1, rec.counts["HTTPErrors /:brandCode/products/:productId"])
}

func TestStatusCodeToRange(t *testing.T) {
	assert.Equal(t, "2xx", statusCodeToRange(204))
	assert.Equal(t, "3xx", statusCodeToRange(302))
	assert.Equal(t, "4xx", statusCodeToRange(409))
	assert.Equal(t, "5xx", statusCodeToRange(502))
	assert.Equal(t, "unknown", statusCodeToRange(100))
}
