package controllers

import (
	"net/http"

	"whybuy-dashboard/activity"
	apperrors "whybuy-dashboard/errors"
	"whybuy-dashboard/models"
	awspkg "whybuy-dashboard/pkg/aws"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PromptController serves the prompt editor.
type PromptController struct {
	Deps
}

func NewPromptController(d Deps) *PromptController {
	return &PromptController{Deps: d}
}

// Page handles GET /:brandCode/config. The fetched list is cached in the
// session so saves do not re-fetch it.
func (pc *PromptController) Page(c *gin.Context) {
	s, ok := pc.scope(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	data := gin.H{}

	token, err := pc.token(ctx, s)
	var prompts []models.Prompt
	if err == nil {
		prompts, err = pc.Backend.ListPrompts(ctx, token, s.brand.ID)
	}
	if err != nil {
		s.log.Error("failed to load prompts", zap.Error(err))
		data["Error"] = apperrors.As(err).Message
		prompts = s.sess.Prompts[s.brand.ID]
	} else {
		brandID := s.brand.ID
		err := pc.Sessions.Update(ctx, s.id.SessionID, func(cur *models.Session) {
			cur.SetPrompts(brandID, prompts)
		})
		if err != nil {
			s.log.Warn("failed to cache prompts", zap.Error(err))
		}
	}

	selected, _ := models.FindPrompt(prompts, c.Query("prompt"))
	data["Prompts"] = prompts
	data["Selected"] = selected
	page(c, s, "config.html", "Config", data)
}

type savePromptRequest struct {
	Content string `json:"content"`
}

// Save handles POST /:brandCode/actions/prompts/:name
func (pc *PromptController) Save(c *gin.Context) {
	s, ok := pc.scope(c)
	if !ok {
		return
	}
	name := c.Param("name")
	var req savePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Respond(c, apperrors.BadRequest("invalid request body"))
		return
	}

	ctx := c.Request.Context()
	token, err := pc.token(ctx, s)
	if err != nil {
		actionError(c, s.log, "failed to get access token", err)
		return
	}
	if err := pc.Backend.UpdatePrompt(ctx, token, models.UpdatePromptRequest{
		BrandID: s.brand.ID,
		Name:    name,
		Content: req.Content,
	}); err != nil {
		actionError(c, s.log, "failed to save prompt", err)
		return
	}

	// apply the edit to the stored list, which another tab may have refreshed
	brandID := s.brand.ID
	var updated []models.Prompt
	err = pc.Sessions.Update(ctx, s.id.SessionID, func(cur *models.Session) {
		updated = models.WithContent(cur.Prompts[brandID], name, req.Content)
		cur.SetPrompts(brandID, updated)
	})
	if err != nil || updated == nil {
		if err != nil {
			s.log.Warn("failed to cache prompts", zap.Error(err))
		}
		updated = models.WithContent(s.sess.Prompts[brandID], name, req.Content)
	}

	s.log.Info("prompt updated", zap.String("prompt", name))
	pc.count(awspkg.MetricPromptsUpdated, s, 1)
	pc.record(ctx, s, activity.Event{Type: activity.PromptUpdated, Details: map[string]string{"name": name}})

	c.JSON(http.StatusOK, gin.H{"success": true, "prompts": updated})
}
