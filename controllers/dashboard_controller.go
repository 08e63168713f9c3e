package controllers

import (
	apperrors "whybuy-dashboard/errors"
	"whybuy-dashboard/models"
	"whybuy-dashboard/views"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DashboardController renders the brand overview.
type DashboardController struct {
	Deps
}

func NewDashboardController(d Deps) *DashboardController {
	return &DashboardController{Deps: d}
}

// Page handles GET /:brandCode/dashboard
func (dc *DashboardController) Page(c *gin.Context) {
	s, ok := dc.scope(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var (
		stats             *models.DashboardStats
		jobs              []models.PipelineJob
		statsErr, jobsErr error
	)
	token, err := dc.token(ctx, s)
	if err != nil {
		statsErr, jobsErr = err, err
	} else {
		// each panel degrades on its own
		var g errgroup.Group
		g.Go(func() error {
			stats, statsErr = dc.Backend.DashboardStats(ctx, token, s.brand.ID)
			return nil
		})
		g.Go(func() error {
			jobs, jobsErr = dc.Backend.ListJobs(ctx, token, s.brand.ID)
			return nil
		})
		_ = g.Wait()
	}

	data := gin.H{}
	if statsErr != nil {
		s.log.Error("failed to load dashboard stats", zap.Error(statsErr))
		data["Error"] = apperrors.As(statsErr).Message
	}
	if jobsErr != nil {
		s.log.Error("failed to load dashboard jobs", zap.Error(jobsErr))
		data["JobsError"] = apperrors.As(jobsErr).Message
		jobs = nil
	}
	if statsErr != nil || stats == nil {
		stats = &models.DashboardStats{}
	}

	recent := stats.RecentJobs
	if len(recent) == 0 {
		recent = jobs
	}
	if len(recent) > 5 {
		recent = recent[:5]
	}

	data["Stats"] = stats
	data["ProcessedShare"] = stats.ProcessedShare()
	data["RecentJobs"] = jobViews(recent)
	data["Chart"] = views.ActivityChart(jobs, dc.now())
	page(c, s, "dashboard.html", "Dashboard", data)
}
