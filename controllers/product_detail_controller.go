package controllers

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"whybuy-dashboard/activity"
	apperrors "whybuy-dashboard/errors"
	"whybuy-dashboard/middleware"
	"whybuy-dashboard/models"
	awspkg "whybuy-dashboard/pkg/aws"
	"whybuy-dashboard/poller"
	"whybuy-dashboard/views"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	pushLockTTL   = 60 * time.Second
	reloadAfter   = 2 * time.Second
	statusRecheck = 2 * time.Second
)

// ProductDetailController serves one product: tabs, processing status,
// image flags, pipeline runs and storefront sync.
type ProductDetailController struct {
	Deps
}

func NewProductDetailController(d Deps) *ProductDetailController {
	return &ProductDetailController{Deps: d}
}

func statusKey(s scope, productID string) poller.Key {
	return poller.Key{Session: s.id.SessionID, View: "product:" + s.brand.ID + ":" + productID, Purpose: "status", Tab: s.view}
}

// Page handles GET /:brandCode/products/:productId
func (pc *ProductDetailController) Page(c *gin.Context) {
	s, ok := pc.scope(c)
	if !ok {
		return
	}
	productID := c.Param("productId")
	ctx := c.Request.Context()
	listURL := brandPath(s.brand, "/products")

	token, err := pc.token(ctx, s)
	if err != nil {
		s.log.Warn("failed to get access token", zap.Error(err))
		middleware.SetFlash(c, apperrors.As(err).Message)
		c.Redirect(http.StatusFound, listURL)
		return
	}

	var (
		product *models.Product
		status  *models.ProductStatus
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := pc.Backend.GetProduct(gctx, token, s.brand.ID, productID)
		product = p
		return err
	})
	g.Go(func() error {
		st, err := pc.Backend.ProductStatus(gctx, token, s.brand.ID, productID)
		if err != nil {
			// status only drives the run button
			if !stderrors.Is(err, context.Canceled) {
				s.log.Warn("failed to load processing status", zap.String("product_id", productID), zap.Error(err))
			}
			return nil
		}
		status = st
		return nil
	})
	if err := g.Wait(); err != nil {
		msg := "Product not found"
		if !apperrors.IsNotFound(err) {
			msg = apperrors.As(err).Message
			s.log.Error("failed to load product", zap.String("product_id", productID), zap.Error(err))
		}
		middleware.SetFlash(c, msg)
		c.Redirect(http.StatusFound, listURL)
		return
	}

	processing := status != nil && status.IsProcessing
	detail := views.BuildDetail(product, c.Query("tab"), processing)
	page(c, s, "product.html", product.Title, gin.H{
		"Detail":   detail,
		"Modes":    views.Modes,
		"ListURL":  listURL,
		"ReloadMs": reloadAfter.Milliseconds(),
	})
}

// StatusStream handles GET /:brandCode/actions/products/:productId/status/stream.
// Polled independently of the job history stream.
func (pc *ProductDetailController) StatusStream(c *gin.Context) {
	s, ok := pc.scope(c)
	if !ok {
		return
	}
	productID := c.Param("productId")
	stream(c, pc.Polls, statusKey(s, productID), pc.Deps, "status", func(ctx context.Context) (gin.H, bool) {
		token, err := pc.token(ctx, s)
		if err != nil {
			s.log.Warn("status poll: access token", zap.Error(err))
			return nil, false
		}
		st, err := pc.Backend.ProductStatus(ctx, token, s.brand.ID, productID)
		if err != nil {
			if !stderrors.Is(err, context.Canceled) {
				s.log.Warn("status poll failed", zap.String("product_id", productID), zap.Error(err))
			}
			return nil, false
		}
		return gin.H{"product_id": productID, "processing": st.IsProcessing}, true
	})
}

type productRunRequest struct {
	Modes []string `json:"modes"`
}

// Run handles POST /:brandCode/actions/products/:productId/run
func (pc *ProductDetailController) Run(c *gin.Context) {
	s, ok := pc.scope(c)
	if !ok {
		return
	}
	productID := c.Param("productId")
	var req productRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, apperrors.BadRequest("invalid request body"))
		return
	}
	modes, err := views.ValidateModes(req.Modes)
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
		ProductIDs: []string{productID},
		Modes:      modes,
	})
	if err != nil {
		actionError(c, s.log, "failed to start pipeline", err)
		return
	}

	s.log.Info("pipeline started", zap.String("job_id", res.JobID), zap.String("product_id", productID), zap.Strings("modes", modes))
	pc.count(awspkg.MetricPipelineRunsStarted, s, 1)
	pc.record(ctx, s, activity.Event{
		Type:       activity.PipelineStarted,
		ProductIDs: []string{productID},
		JobID:      res.JobID,
	})
	pc.Polls.TriggerViewAfter(statusKey(s, productID), statusRecheck)

	c.JSON(http.StatusOK, gin.H{
		"processing":      true,
		"job_id":          res.JobID,
		"reload_after_ms": reloadAfter.Milliseconds(),
	})
}

// Flag handles POST /:brandCode/actions/products/:productId/flag. The
// server's product copy is returned as-is.
func (pc *ProductDetailController) Flag(c *gin.Context) {
	s, ok := pc.scope(c)
	if !ok {
		return
	}
	rowID := c.Param("productId")
	var req models.FlagImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, apperrors.BadRequest("invalid request body"))
		return
	}
	if req.ImageType != models.ImageTypeEcommerce && req.ImageType != models.ImageTypeLookbook {
		apperrors.Respond(c, apperrors.BadRequest("image_type must be ecommerce or lookbook"))
		return
	}
	if req.ImageIndex < 0 {
		apperrors.Respond(c, apperrors.BadRequest("image_index must not be negative"))
		return
	}

	ctx := c.Request.Context()
	token, err := pc.token(ctx, s)
	if err != nil {
		actionError(c, s.log, "failed to get access token", err)
		return
	}
	res, err := pc.Backend.FlagImage(ctx, token, s.brand.ID, rowID, req)
	if err != nil {
		actionError(c, s.log, "failed to flag image", err)
		return
	}

	if req.Flagged {
		pc.count(awspkg.MetricImagesFlagged, s, 1)
	}
	pc.record(ctx, s, activity.Event{
		Type:       activity.ImageFlagged,
		ProductIDs: []string{rowID},
		Details: map[string]string{
			"image_type": req.ImageType,
			"flagged":    strconv.FormatBool(req.Flagged),
		},
	})

	detail := views.BuildDetail(&res.Product, "", false)
	c.JSON(http.StatusOK, gin.H{
		"product":            res.Product,
		"has_flagged_images": res.HasFlaggedImages,
		"images":             gin.H{"ecommerce": detail.Ecommerce, "lookbook": detail.Lookbook},
		"message":            res.Message,
	})
}

type pushRequest struct {
	Confirm bool `json:"confirm"`
}

// Push handles POST /:brandCode/actions/products/:productId/push
func (pc *ProductDetailController) Push(c *gin.Context) {
	s, ok := pc.scope(c)
	if !ok {
		return
	}
	rowID := c.Param("productId")
	var req pushRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Confirm {
		apperrors.Respond(c, apperrors.BadRequest("confirm the push to the storefront"))
		return
	}

	ctx := c.Request.Context()
	lockKey := "push:" + s.id.SessionID + ":" + rowID
	locked, err := pc.Sessions.Lock(ctx, lockKey, pushLockTTL)
	if err != nil {
		actionError(c, s.log, "failed to take push lock", apperrors.Internal(err))
		return
	}
	if !locked {
		apperrors.Respond(c, apperrors.Conflict("push already in progress"))
		return
	}
	defer func() {
		if err := pc.Sessions.Unlock(context.WithoutCancel(ctx), lockKey); err != nil {
			s.log.Warn("failed to release push lock", zap.Error(err))
		}
	}()

	token, err := pc.token(ctx, s)
	if err != nil {
		actionError(c, s.log, "failed to get access token", err)
		return
	}
	res, err := pc.Backend.PushProduct(ctx, token, models.PushRequest{ProductID: rowID, BrandID: s.brand.ID})
	if err != nil {
		actionError(c, s.log, "failed to push product", err)
		return
	}

	p := models.Product{ID: rowID}
	p.MarkPushed(pc.now())
	s.log.Info("product pushed", zap.String("product_id", rowID))
	pc.count(awspkg.MetricProductsPushed, s, 1)
	pc.record(ctx, s, activity.Event{Type: activity.ProductPushed, ProductIDs: []string{rowID}})

	c.JSON(http.StatusOK, gin.H{
		"success":     res.Success,
		"push_status": p.PushStatus,
		"pushed_at":   p.PushedAt,
		"details":     res.Details,
	})
}

// Refresh handles POST /:brandCode/actions/products/:productId/refresh
func (pc *ProductDetailController) Refresh(c *gin.Context) {
	s, ok := pc.scope(c)
	if !ok {
		return
	}
	rowID := c.Param("productId")
	ctx := c.Request.Context()
	token, err := pc.token(ctx, s)
	if err != nil {
		actionError(c, s.log, "failed to get access token", err)
		return
	}
	res, err := pc.Backend.RefreshProduct(ctx, token, s.brand.ID, rowID)
	if err != nil {
		actionError(c, s.log, "failed to refresh product", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// MetafieldPush handles POST /:brandCode/actions/products/:productId/metafield/push
func (pc *ProductDetailController) MetafieldPush(c *gin.Context) {
	pc.metafield(c, "push")
}

// MetafieldPull handles POST /:brandCode/actions/products/:productId/metafield/pull
func (pc *ProductDetailController) MetafieldPull(c *gin.Context) {
	pc.metafield(c, "pull")
}

func (pc *ProductDetailController) metafield(c *gin.Context, direction string) {
	s, ok := pc.scope(c)
	if !ok {
		return
	}
	req := models.MetafieldRequest{ProductID: c.Param("productId"), BrandID: s.brand.ID}
	ctx := c.Request.Context()
	token, err := pc.token(ctx, s)
	if err != nil {
		actionError(c, s.log, "failed to get access token", err)
		return
	}

	var res *models.MetafieldResult
	if direction == "push" {
		res, err = pc.Backend.PushMetafield(ctx, token, req)
	} else {
		res, err = pc.Backend.PullMetafield(ctx, token, req)
	}
	if err != nil {
		actionError(c, s.log, "failed to "+direction+" metafield", err)
		return
	}
	c.JSON(http.StatusOK, res)
}
