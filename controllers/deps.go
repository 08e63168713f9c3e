package controllers

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"whybuy-dashboard/activity"
	"whybuy-dashboard/clients"
	apperrors "whybuy-dashboard/errors"
	"whybuy-dashboard/logger"
	"whybuy-dashboard/middleware"
	"whybuy-dashboard/models"
	awspkg "whybuy-dashboard/pkg/aws"
	"whybuy-dashboard/poller"
	"whybuy-dashboard/sequence"
	"whybuy-dashboard/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Backend is the part of the API service the controllers call.
type Backend interface {
	ListProducts(ctx context.Context, token, brandID string, q clients.ProductQuery) (*models.ProductPage, error)
	GetProduct(ctx context.Context, token, brandID, productID string) (*models.Product, error)
	FlagImage(ctx context.Context, token, brandID, rowID string, req models.FlagImageRequest) (*models.FlagImageResult, error)
	PushProduct(ctx context.Context, token string, req models.PushRequest) (*models.PushResult, error)
	SyncProduct(ctx context.Context, token string, req models.SyncProductRequest) (*models.SyncProductResult, error)
	SyncBatch(ctx context.Context, token string, req models.BatchSyncRequest) (*models.BatchImportResult, error)
	RefreshProduct(ctx context.Context, token, brandID, rowID string) (*models.SyncProductResult, error)
	PushMetafield(ctx context.Context, token string, req models.MetafieldRequest) (*models.MetafieldResult, error)
	PullMetafield(ctx context.Context, token string, req models.MetafieldRequest) (*models.MetafieldResult, error)
	RunPipeline(ctx context.Context, token string, req models.RunPipelineRequest) (*models.RunPipelineResult, error)
	ListJobs(ctx context.Context, token, brandID string) ([]models.PipelineJob, error)
	ProductStatus(ctx context.Context, token, brandID, productID string) (*models.ProductStatus, error)
	ListPrompts(ctx context.Context, token, brandID string) ([]models.Prompt, error)
	UpdatePrompt(ctx context.Context, token string, req models.UpdatePromptRequest) error
	DashboardStats(ctx context.Context, token, brandID string) (*models.DashboardStats, error)
}

// Sessions is the session provider as seen by brand-scoped controllers.
type Sessions interface {
	AccessToken(ctx context.Context, sid string) (string, error)
	Update(ctx context.Context, sid string, fn func(*models.Session)) error
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Deps is shared by every brand-scoped controller.
type Deps struct {
	Backend      Backend
	Sessions     Sessions
	Polls        *poller.Scheduler
	Sequence     *sequence.Tracker
	Activity     activity.Recorder
	Metrics      awspkg.Recorder
	PollInterval time.Duration
	Log          *zap.Logger
	Now          func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) metrics() awspkg.Recorder {
	if d.Metrics == nil {
		return awspkg.NopRecorder{}
	}
	return d.Metrics
}

func (d Deps) interval() time.Duration {
	if d.PollInterval <= 0 {
		return 5 * time.Second
	}
	return d.PollInterval
}

// scope is the per-request state of a brand-scoped handler.
type scope struct {
	id    session.Identity
	sess  *models.Session
	brand models.Brand
	view  string
	log   *zap.Logger
}

func (d Deps) scope(c *gin.Context) (scope, bool) {
	id, ok := middleware.CurrentIdentity(c)
	if !ok {
		middleware.Fail(c, http.StatusUnauthorized, "not signed in")
		return scope{}, false
	}
	b, ok := middleware.CurrentBrand(c)
	if !ok {
		middleware.Fail(c, http.StatusNotFound, "brand not available")
		return scope{}, false
	}
	sess, _ := middleware.CurrentSession(c)
	return scope{
		id:    id,
		sess:  sess,
		brand: b,
		view:  viewID(c),
		log: logger.For(c, d.Log).With(
			zap.String("user_id", id.UserID),
			zap.String("brand_id", b.ID)),
	}, true
}

const defaultView = "default"

// viewID is the page instance a stream or list request comes from. Requests
// without a usable one share defaultView.
func viewID(c *gin.Context) string {
	v := c.Query("view")
	if v == "" || len(v) > 64 {
		return defaultView
	}
	for _, r := range v {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return defaultView
		}
	}
	return v
}

func (d Deps) token(ctx context.Context, s scope) (string, error) {
	return d.Sessions.AccessToken(ctx, s.id.SessionID)
}

// count records a business counter off the request path.
func (d Deps) count(name string, s scope, n int) {
	rec := d.metrics()
	dims := map[string]string{"BrandID": s.brand.ID}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := 0; i < n; i++ {
			_ = rec.RecordCount(ctx, name, dims)
		}
	}()
}

func (d Deps) record(ctx context.Context, s scope, ev activity.Event) {
	if d.Activity == nil {
		return
	}
	ev.BrandID = s.brand.ID
	ev.UserID = s.id.UserID
	ev.At = d.now().UTC()
	d.Activity.Record(ctx, ev)
}

// actionError answers an action with the error's status and message.
func actionError(c *gin.Context, log *zap.Logger, msg string, err error) {
	appErr := apperrors.As(err)
	if appErr.Code >= http.StatusInternalServerError {
		log.Error(msg, zap.Error(err))
	} else {
		log.Warn(msg, zap.Int("status", appErr.Code), zap.String("error", appErr.Message))
	}
	apperrors.Respond(c, appErr)
}

// page renders a brand-scoped page with the layout fields filled in.
func page(c *gin.Context, s scope, name, title string, data gin.H) {
	data["Title"] = title
	data["Brand"] = s.brand
	data["Email"] = s.id.Email
	data["Flash"] = middleware.PopFlash(c)
	if s.sess != nil {
		data["Brands"] = s.sess.Brands
	}
	c.HTML(http.StatusOK, name, data)
}

func brandPath(b models.Brand, suffix string) string {
	return "/" + url.PathEscape(b.Code) + suffix
}
