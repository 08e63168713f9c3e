package controllers

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"whybuy-dashboard/activity"
	apperrors "whybuy-dashboard/errors"
	"whybuy-dashboard/models"
	awspkg "whybuy-dashboard/pkg/aws"
	"whybuy-dashboard/poller"
	"whybuy-dashboard/views"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ProductListController serves the product list, pipeline runs, job history
// and the add-product modal.
type ProductListController struct {
	Deps
}

func NewProductListController(d Deps) *ProductListController {
	return &ProductListController{Deps: d}
}

// jobView is a job as the history panel draws it.
type jobView struct {
	models.PipelineJob
	Percent  int  `json:"percent"`
	Terminal bool `json:"terminal"`
}

func jobViews(jobs []models.PipelineJob) []jobView {
	out := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobView{PipelineJob: j, Percent: j.Percent(), Terminal: j.Terminal()})
	}
	return out
}

func listStateKey(s scope) string {
	return s.id.SessionID + ":" + s.brand.ID + ":products:" + s.view
}

func jobsKey(s scope) poller.Key {
	return poller.Key{Session: s.id.SessionID, View: "products:" + s.brand.ID, Purpose: "jobs", Tab: s.view}
}

// Page handles GET /:brandCode/products
func (pc *ProductListController) Page(c *gin.Context) {
	s, ok := pc.scope(c)
	if !ok {
		return
	}
	state := s.sess.ListState[s.brand.ID]
	if state.Page < 1 {
		state.Page = 1
	}
	page(c, s, "products.html", "Products", gin.H{
		"State":    state,
		"Modes":    views.Modes,
		"PageSize": views.PageSize,
	})
}

// List handles GET /:brandCode/actions/products
func (pc *ProductListController) List(c *gin.Context) {
	s, ok := pc.scope(c)
	if !ok {
		return
	}

	pageNum, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	prev := s.sess.ListState[s.brand.ID]
	state := views.Apply(prev, views.Filters{
		Search:     c.Query("search"),
		Processed:  c.Query("processed"),
		PushStatus: c.Query("push_status"),
	}, pageNum)

	ctx, ticket := pc.Sequence.Begin(c.Request.Context(), listStateKey(s))
	defer ticket.Done()

	seq := ticket.Seq
	if v, err := strconv.ParseUint(c.Query("seq"), 10, 64); err == nil {
		seq = v
	}

	token, err := pc.token(ctx, s)
	if err != nil {
		actionError(c, s.log, "failed to get access token", err)
		return
	}
	res, err := pc.Backend.ListProducts(ctx, token, s.brand.ID, views.Query(state))
	if !ticket.Current() {
		c.JSON(http.StatusConflict, gin.H{"superseded": true, "seq": seq})
		return
	}
	if err != nil {
		actionError(c, s.log, "failed to list products", err)
		return
	}

	if state != prev {
		brandID := s.brand.ID
		err := pc.Sessions.Update(c.Request.Context(), s.id.SessionID, func(cur *models.Session) {
			cur.SetListState(brandID, state)
		})
		if err != nil {
			s.log.Warn("failed to save list state", zap.Error(err))
		}
	}

	products := res.Products
	if products == nil {
		products = []models.Product{}
	}
	c.JSON(http.StatusOK, gin.H{
		"products": products,
		"total":    res.Total,
		"page":     state.Page,
		"limit":    views.PageSize,
		"has_next": views.HasNext(len(res.Products)),
		"has_prev": views.HasPrev(state),
		"state":    state,
		"seq":      seq,
	})
}

type runRequest struct {
	ProductIDs []string `json:"product_ids"`
	Modes      []string `json:"modes"`
}

// Run handles POST /:brandCode/actions/pipeline/run
func (pc *ProductListController) Run(c *gin.Context) {
	s, ok := pc.scope(c)
	if !ok {
		return
	}
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, apperrors.BadRequest("invalid request body"))
		return
	}
	ids, modes, err := views.ValidateRun(req.ProductIDs, req.Modes)
	if err != nil {
		apperrors.Respond(c, apperrors.BadRequest(err.Error()))
		return
	}

	ctx := c.Request.Context()
	token, err := pc.token(ctx, s)
	if err != nil {
		actionError(c, s.log, "failed to get access token", err)
		return
	}
	res, err := pc.Backend.RunPipeline(ctx, token, models.RunPipelineRequest{
		BrandID:    s.brand.ID,
		ProductIDs: ids,
		Modes:      modes,
	})
	if err != nil {
		actionError(c, s.log, "failed to start pipeline", err)
		return
	}

	s.log.Info("pipeline started", zap.String("job_id", res.JobID), zap.Int("products", len(ids)), zap.Strings("modes", modes))
	pc.count(awspkg.MetricPipelineRunsStarted, s, 1)
	pc.record(ctx, s, activity.Event{
		Type:       activity.PipelineStarted,
		ProductIDs: ids,
		JobID:      res.JobID,
		Details:    map[string]string{"modes": strings.Join(modes, ",")},
	})
	pc.Polls.TriggerView(jobsKey(s))

	c.JSON(http.StatusOK, gin.H{"success": true, "job_id": res.JobID, "product_ids": ids, "modes": modes})
}

// Jobs handles GET /:brandCode/actions/pipeline/jobs
func (pc *ProductListController) Jobs(c *gin.Context) {
	s, ok := pc.scope(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	token, err := pc.token(ctx, s)
	if err != nil {
		actionError(c, s.log, "failed to get access token", err)
		return
	}
	jobs, err := pc.Backend.ListJobs(ctx, token, s.brand.ID)
	if err != nil {
		actionError(c, s.log, "failed to list jobs", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobViews(jobs)})
}

// JobsStream handles GET /:brandCode/actions/pipeline/jobs/stream. Jobs are
// polled on a fixed interval for as long as the panel stays open, whatever
// their state.
func (pc *ProductListController) JobsStream(c *gin.Context) {
	s, ok := pc.scope(c)
	if !ok {
		return
	}
	stream(c, pc.Polls, jobsKey(s), pc.Deps, "jobs", func(ctx context.Context) ([]jobView, bool) {
		token, err := pc.token(ctx, s)
		if err != nil {
			s.log.Warn("jobs poll: access token", zap.Error(err))
			return nil, false
		}
		jobs, err := pc.Backend.ListJobs(ctx, token, s.brand.ID)
		if err != nil {
			if !stderrors.Is(err, context.Canceled) {
				s.log.Warn("jobs poll failed", zap.Error(err))
			}
			return nil, false
		}
		return jobViews(jobs), true
	})
}

type importRequest struct {
	Identifiers string `json:"identifiers"`
	ByHandle    bool   `json:"by_handle"`
}

// Import handles POST /:brandCode/actions/import
func (pc *ProductListController) Import(c *gin.Context) {
	s, ok := pc.scope(c)
	if !ok {
		return
	}
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, apperrors.BadRequest("invalid request body"))
		return
	}
	ids := views.ParseIdentifiers(req.Identifiers)
	if len(ids) == 0 {
		apperrors.Respond(c, apperrors.BadRequest("enter at least one product id or handle"))
		return
	}

	ctx := c.Request.Context()
	token, err := pc.token(ctx, s)
	if err != nil {
		actionError(c, s.log, "failed to get access token", err)
		return
	}

	if len(ids) == 1 {
		res, err := pc.Backend.SyncProduct(ctx, token, models.SyncProductRequest{
			Identifier: ids[0],
			ByHandle:   req.ByHandle,
			BrandID:    s.brand.ID,
		})
		if err != nil {
			actionError(c, s.log, "failed to import product", err)
			return
		}
		if !res.Success {
			msg := res.Message
			if msg == "" {
				msg = "import failed"
			}
			apperrors.Respond(c, apperrors.New(http.StatusUnprocessableEntity, msg, nil))
			return
		}
		pc.imported(ctx, s, ids)
		c.JSON(http.StatusOK, gin.H{"mode": "single", "product": res.Product, "message": res.Message})
		return
	}

	res, err := pc.Backend.SyncBatch(ctx, token, models.BatchSyncRequest{
		Identifiers: ids,
		ByHandle:    req.ByHandle,
		BrandID:     s.brand.ID,
	})
	if err != nil {
		actionError(c, s.log, "failed to import products", err)
		return
	}
	var succeeded []string
	for _, row := range res.Results {
		if row.Success {
			succeeded = append(succeeded, row.Identifier)
		}
	}
	if len(succeeded) > 0 {
		pc.imported(ctx, s, succeeded)
	}
	s.log.Info("batch import finished",
		zap.Int("total", res.Summary.Total),
		zap.Int("successful", res.Summary.Successful),
		zap.Int("failed", res.Summary.Failed))
	c.JSON(http.StatusOK, gin.H{"mode": "batch", "result": res})
}

func (pc *ProductListController) imported(ctx context.Context, s scope, ids []string) {
	pc.count(awspkg.MetricProductsImported, s, len(ids))
	pc.record(ctx, s, activity.Event{Type: activity.ProductImported, ProductIDs: ids})
}
