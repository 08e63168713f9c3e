package middleware

import (
	"context"
	"net/http"
	"net/url"

	"whybuy-dashboard/brand"
	apperrors "whybuy-dashboard/errors"
	"whybuy-dashboard/logger"
	"whybuy-dashboard/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const BrandContextKey = "brand"

// BrandSessions is the session side of brand resolution.
type BrandSessions interface {
	AccessToken(ctx context.Context, sid string) (string, error)
	Update(ctx context.Context, sid string, fn func(*models.Session)) error
}

// brandLoadFailed is shown when the brand list cannot be fetched.
const brandLoadFailed = "Could not load your brands. Please try again."

// BrandContext loads the user's brands once per session and resolves the
// active brand from the request path. Must run after RequireSession.
func BrandContext(sessions BrandSessions, src brand.Source, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := CurrentSession(c)
		if !ok {
			Fail(c, http.StatusUnauthorized, "not signed in")
			return
		}
		ctx := c.Request.Context()
		reqLog := logger.For(c, log)

		loaded, err := ensureBrands(ctx, sessions, src, sess, reqLog)
		if err != nil {
			reqLog.Error("failed to load brands", zap.Error(err))
			brandLoadFailure(c, err, false)
			return
		}

		activeChanged := false
		var current *models.Brand
		if b, ok := sess.ActiveBrand(); ok {
			current = &b
		}

		res := brand.Resolve(c.Request.URL.Path, sess.Brands, current)
		switch res.Outcome {
		case brand.Switched:
			sess.ActiveBrandID = res.Brand.ID
			activeChanged = true
		case brand.Cleared:
			if sess.ActiveBrandID != "" {
				sess.ActiveBrandID = ""
				activeChanged = true
			}
		case brand.Unknown:
			reqLog.Warn("brand not available for user",
				zap.String("brand_code", res.Code),
				zap.String("user_id", sess.UserID))
		}

		if err := persistBrands(ctx, sessions, sess, loaded, activeChanged); err != nil {
			reqLog.Error("failed to save session", zap.Error(err))
		}

		if !res.Active() {
			if WantsJSON(c) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "brand not available"})
				return
			}
			c.HTML(http.StatusNotFound, "brand_missing.html", gin.H{
				"Title":  "Brand not available",
				"Code":   res.Code,
				"Brands": sess.Brands,
				"Email":  sess.Email,
			})
			c.Abort()
			return
		}

		c.Set(BrandContextKey, *res.Brand)
		c.Next()
	}
}

// BrandList loads the user's brands for pages outside any brand (the brand
// picker) and clears the active brand.
func BrandList(sessions BrandSessions, src brand.Source, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := CurrentSession(c)
		if !ok {
			Fail(c, http.StatusUnauthorized, "not signed in")
			return
		}
		ctx := c.Request.Context()
		reqLog := logger.For(c, log)

		loaded, err := ensureBrands(ctx, sessions, src, sess, reqLog)
		if err != nil {
			reqLog.Error("failed to load brands", zap.Error(err))
			if !brandLoadFailure(c, err, true) {
				return
			}
		}
		activeChanged := sess.ActiveBrandID != ""
		sess.ActiveBrandID = ""
		if err := persistBrands(ctx, sessions, sess, loaded, activeChanged); err != nil {
			reqLog.Error("failed to save session", zap.Error(err))
		}
		c.Next()
	}
}

// ensureBrands fills sess.Brands on first use and reports whether it did.
func ensureBrands(ctx context.Context, sessions BrandSessions, src brand.Source, sess *models.Session, log *zap.Logger) (bool, error) {
	if sess.BrandsLoaded {
		return false, nil
	}
	token, err := sessions.AccessToken(ctx, sess.ID)
	if err != nil {
		return false, err
	}
	brands, err := brand.LoadAllowed(ctx, src, token, sess.UserID, log)
	if err != nil {
		return false, err
	}
	sess.Brands = brands
	sess.BrandsLoaded = true
	return true, nil
}

// persistBrands writes only the brand fields this request changed.
func persistBrands(ctx context.Context, sessions BrandSessions, sess *models.Session, loaded, activeChanged bool) error {
	if !loaded && !activeChanged {
		return nil
	}
	brands, active := sess.Brands, sess.ActiveBrandID
	return sessions.Update(ctx, sess.ID, func(cur *models.Session) {
		if loaded {
			cur.Brands = brands
			cur.BrandsLoaded = true
		}
		if activeChanged {
			cur.ActiveBrandID = active
		}
	})
}

// brandLoadFailure answers a request whose brand list could not be fetched.
// Actions get the error as JSON and expired sessions go to /login. Other
// pages go to the brand picker with a flash message, except the picker
// itself, which renders in place; only then does it report true.
func brandLoadFailure(c *gin.Context, err error, picker bool) bool {
	switch {
	case WantsJSON(c):
		failWith(c, err)
	case apperrors.StatusOf(err) == http.StatusUnauthorized:
		c.Redirect(http.StatusFound, "/login?next="+url.QueryEscape(c.Request.URL.RequestURI()))
		c.Abort()
	case picker:
		flashNow(c, brandLoadFailed)
		return true
	default:
		SetFlash(c, brandLoadFailed)
		c.Redirect(http.StatusFound, "/")
		c.Abort()
	}
	return false
}

func failWith(c *gin.Context, err error) {
	appErr := apperrors.As(err)
	Fail(c, appErr.Code, appErr.Message)
}

func CurrentBrand(c *gin.Context) (models.Brand, bool) {
	v, ok := c.Get(BrandContextKey)
	if !ok {
		return models.Brand{}, false
	}
	b, ok := v.(models.Brand)
	return b, ok
}
