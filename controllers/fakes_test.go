package controllers_test

import (
	"context"
	"html/template"
	"sync"
	"time"

	"whybuy-dashboard/clients"
	"whybuy-dashboard/controllers"
	apperrors "whybuy-dashboard/errors"
	"whybuy-dashboard/middleware"
	"whybuy-dashboard/models"
	"whybuy-dashboard/poller"
	"whybuy-dashboard/sequence"
	"whybuy-dashboard/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ---- mock backend ----

type fakeBackend struct {
	mu    sync.Mutex
	calls map[string]int

	listProducts func(ctx context.Context, q clients.ProductQuery) (*models.ProductPage, error)
	getProduct   func(id string) (*models.Product, error)
	flag         func(rowID string, req models.FlagImageRequest) (*models.FlagImageResult, error)
	push         func(ctx context.Context, req models.PushRequest) (*models.PushResult, error)
	syncOne      func(req models.SyncProductRequest) (*models.SyncProductResult, error)
	syncBatch    func(req models.BatchSyncRequest) (*models.BatchImportResult, error)
	jobs         []models.PipelineJob
	jobsErr      error
	status       bool
	stats        *models.DashboardStats
	statsErr     error
	prompts      []models.Prompt

	runs    []models.RunPipelineRequest
	updated []models.UpdatePromptRequest
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{calls: map[string]int{}}
}

func (f *fakeBackend) hit(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) ListProducts(ctx context.Context, _, _ string, q clients.ProductQuery) (*models.ProductPage, error) {
	f.hit("list")
	if f.listProducts != nil {
		return f.listProducts(ctx, q)
	}
	return &models.ProductPage{Page: q.Page, Limit: q.Limit}, nil
}

func (f *fakeBackend) GetProduct(_ context.Context, _, _, id string) (*models.Product, error) {
	f.hit("get")
	if f.getProduct != nil {
		return f.getProduct(id)
	}
	return nil, apperrors.NotFound("Product not found")
}

func (f *fakeBackend) FlagImage(_ context.Context, _, _, rowID string, req models.FlagImageRequest) (*models.FlagImageResult, error) {
	f.hit("flag")
	return f.flag(rowID, req)
}

func (f *fakeBackend) PushProduct(ctx context.Context, _ string, req models.PushRequest) (*models.PushResult, error) {
	f.hit("push")
	if f.push != nil {
		return f.push(ctx, req)
	}
	return &models.PushResult{Success: true}, nil
}

func (f *fakeBackend) SyncProduct(_ context.Context, _ string, req models.SyncProductRequest) (*models.SyncProductResult, error) {
	f.hit("sync")
	return f.syncOne(req)
}

func (f *fakeBackend) SyncBatch(_ context.Context, _ string, req models.BatchSyncRequest) (*models.BatchImportResult, error) {
	f.hit("batch")
	return f.syncBatch(req)
}

func (f *fakeBackend) RefreshProduct(context.Context, string, string, string) (*models.SyncProductResult, error) {
	f.hit("refresh")
	return &models.SyncProductResult{Success: true}, nil
}

func (f *fakeBackend) PushMetafield(_ context.Context, _ string, req models.MetafieldRequest) (*models.MetafieldResult, error) {
	f.hit("metafield_push")
	return &models.MetafieldResult{Success: true, Message: "pushed " + req.ProductID}, nil
}

func (f *fakeBackend) PullMetafield(_ context.Context, _ string, req models.MetafieldRequest) (*models.MetafieldResult, error) {
	f.hit("metafield_pull")
	return &models.MetafieldResult{Success: true, Message: "pulled " + req.ProductID}, nil
}

func (f *fakeBackend) RunPipeline(_ context.Context, _ string, req models.RunPipelineRequest) (*models.RunPipelineResult, error) {
	f.hit("run")
	f.mu.Lock()
	f.runs = append(f.runs, req)
	f.mu.Unlock()
	return &models.RunPipelineResult{Success: true, JobID: "job-1"}, nil
}

func (f *fakeBackend) ListJobs(context.Context, string, string) ([]models.PipelineJob, error) {
	f.hit("jobs")
	if f.jobsErr != nil {
		return nil, f.jobsErr
	}
	return f.jobs, nil
}

func (f *fakeBackend) ProductStatus(context.Context, string, string, string) (*models.ProductStatus, error) {
	f.hit("status")
	return &models.ProductStatus{IsProcessing: f.status}, nil
}

func (f *fakeBackend) ListPrompts(context.Context, string, string) ([]models.Prompt, error) {
	f.hit("prompts")
	return f.prompts, nil
}

func (f *fakeBackend) UpdatePrompt(_ context.Context, _ string, req models.UpdatePromptRequest) error {
	f.hit("update_prompt")
	f.mu.Lock()
	f.updated = append(f.updated, req)
	f.mu.Unlock()
	return nil
}

func (f *fakeBackend) DashboardStats(context.Context, string, string) (*models.DashboardStats, error) {
	f.hit("stats")
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	if f.stats == nil {
		return &models.DashboardStats{}, nil
	}
	return f.stats, nil
}

// ---- mock sessions ----

type fakeSessions struct {
	mu      sync.Mutex
	stored  *models.Session
	updates int
	locks   map[string]bool
}

func newFakeSessions(stored *models.Session) *fakeSessions {
	return &fakeSessions{stored: stored, locks: map[string]bool{}}
}

func (f *fakeSessions) AccessToken(_ context.Context, sid string) (string, error) {
	return "tok-" + sid, nil
}

func (f *fakeSessions) Update(_ context.Context, _ string, fn func(*models.Session)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.stored)
	f.updates++
	return nil
}

// snapshot returns a copy of the stored record, as a store read would.
func (f *fakeSessions) snapshot() *models.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.stored
	if f.stored.ListState != nil {
		cp.ListState = make(map[string]models.ListState, len(f.stored.ListState))
		for k, v := range f.stored.ListState {
			cp.ListState[k] = v
		}
	}
	if f.stored.Prompts != nil {
		cp.Prompts = make(map[string][]models.Prompt, len(f.stored.Prompts))
		for k, v := range f.stored.Prompts {
			cp.Prompts[k] = v
		}
	}
	return &cp
}

// lastSaved is the stored record after the latest update, nil before any.
func (f *fakeSessions) lastSaved() *models.Session {
	f.mu.Lock()
	n := f.updates
	f.mu.Unlock()
	if n == 0 {
		return nil
	}
	return f.snapshot()
}

func (f *fakeSessions) Lock(_ context.Context, key string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks[key] {
		return false, nil
	}
	f.locks[key] = true
	return true, nil
}

func (f *fakeSessions) Unlock(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locks, key)
	return nil
}

// ---- helpers ----

var acme = models.Brand{ID: "b1", Code: "acme", Name: "Acme"}

const testTemplates = `{{define "products.html"}}products {{.State.Page}}{{end}}` +
	`{{define "product.html"}}product {{.Detail.Product.Title}} {{.Detail.ActiveTab}} {{.Detail.Processing}}{{end}}` +
	`{{define "dashboard.html"}}dashboard {{.Stats.TotalProducts}} {{len .Chart}}{{with .Error}} error:{{.}}{{end}}{{with .JobsError}} jobs:{{.}}{{end}}{{end}}` +
	`{{define "config.html"}}config {{.Selected.Name}}{{end}}` +
	`{{define "login.html"}}login {{.Error}}{{end}}` +
	`{{define "home.html"}}home {{len .Brands}}{{end}}` +
	`{{define "error.html"}}error {{.Message}}{{end}}`

type testEnv struct {
	backend  *fakeBackend
	sessions *fakeSessions
	polls    *poller.Scheduler
	seq      *sequence.Tracker
	sess     *models.Session
	router   *gin.Engine
}

func newTestEnv() *testEnv {
	gin.SetMode(gin.TestMode)
	env := &testEnv{
		backend: newFakeBackend(),
		polls:   poller.New(zap.NewNop()),
		seq:     sequence.NewTracker(),
		sess:    &models.Session{ID: "s1", UserID: "u1", Email: "ops@acme.test", ActiveBrandID: acme.ID, Brands: []models.Brand{acme}, BrandsLoaded: true},
	}
	env.sessions = newFakeSessions(env.sess)
	deps := controllers.Deps{
		Backend:      env.backend,
		Sessions:     env.sessions,
		Polls:        env.polls,
		Sequence:     env.seq,
		PollInterval: 20 * time.Millisecond,
		Log:          zap.NewNop(),
		Now:          func() time.Time { return time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC) },
	}

	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.New("").Parse(testTemplates)))
	scoped := r.Group("/:brandCode", func(c *gin.Context) {
		cp := env.sessions.snapshot()
		c.Set(middleware.SessionContextKey, cp)
		c.Set(middleware.IdentityContextKey, session.Identity{SessionID: cp.ID, UserID: cp.UserID, Email: cp.Email})
		c.Set(middleware.BrandContextKey, acme)
		c.Next()
	})

	list := controllers.NewProductListController(deps)
	detail := controllers.NewProductDetailController(deps)
	dash := controllers.NewDashboardController(deps)
	prompts := controllers.NewPromptController(deps)

	scoped.GET("/products", list.Page)
	scoped.GET("/products/:productId", detail.Page)
	scoped.GET("/dashboard", dash.Page)
	scoped.GET("/config", prompts.Page)
	actions := scoped.Group("/actions")
	actions.GET("/products", list.List)
	actions.POST("/import", list.Import)
	actions.POST("/pipeline/run", list.Run)
	actions.GET("/pipeline/jobs", list.Jobs)
	actions.GET("/pipeline/jobs/stream", list.JobsStream)
	actions.GET("/products/:productId/status/stream", detail.StatusStream)
	actions.POST("/products/:productId/run", detail.Run)
	actions.POST("/products/:productId/flag", detail.Flag)
	actions.POST("/products/:productId/push", detail.Push)
	actions.POST("/products/:productId/refresh", detail.Refresh)
	actions.POST("/products/:productId/metafield/push", detail.MetafieldPush)
	actions.POST("/products/:productId/metafield/pull", detail.MetafieldPull)
	actions.POST("/prompts/:name", prompts.Save)

	env.router = r
	return env
}
