package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	apperrors "whybuy-dashboard/errors"
	"whybuy-dashboard/models"
	"whybuy-dashboard/session"

	"github.com/gin-gonic/gin"
)

const (
	// SessionCookie holds the opaque session id.
	SessionCookie = "sid"

	IdentityContextKey = "identity"
	SessionContextKey  = "session"
)

// SessionLoader loads the session behind a sid cookie.
type SessionLoader interface {
	Load(ctx context.Context, sid string) (*models.Session, error)
}

// WantsJSON reports whether the caller expects a JSON answer rather than a
// page: action endpoints and fetch() calls.
func WantsJSON(c *gin.Context) bool {
	return strings.Contains(c.FullPath(), "/actions/") ||
		strings.Contains(c.GetHeader("Accept"), "application/json") ||
		c.GetHeader("Accept") == "text/event-stream"
}

// Fail aborts with status, as JSON for actions and as the error page
// otherwise.
func Fail(c *gin.Context, status int, message string) {
	if WantsJSON(c) {
		c.AbortWithStatusJSON(status, gin.H{"error": message})
		return
	}
	c.HTML(status, "error.html", gin.H{
		"Title":   http.StatusText(status),
		"Status":  status,
		"Message": message,
	})
	c.Abort()
}

// RequireSession attaches the signed-in identity. Pages without a session go
// to /login; actions answer 401.
func RequireSession(sessions SessionLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, _ := c.Cookie(SessionCookie)
		sess, err := sessions.Load(c.Request.Context(), sid)
		if err != nil {
			appErr := apperrors.As(err)
			if appErr.Code != http.StatusUnauthorized {
				Fail(c, appErr.Code, appErr.Message)
				return
			}
			if WantsJSON(c) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": appErr.Message})
				return
			}
			c.Redirect(http.StatusFound, "/login?next="+url.QueryEscape(c.Request.URL.RequestURI()))
			c.Abort()
			return
		}

		c.Set(SessionContextKey, sess)
		c.Set(IdentityContextKey, session.Identity{
			SessionID: sess.ID,
			UserID:    sess.UserID,
			Email:     sess.Email,
		})
		c.Next()
	}
}

func CurrentIdentity(c *gin.Context) (session.Identity, bool) {
	v, ok := c.Get(IdentityContextKey)
	if !ok {
		return session.Identity{}, false
	}
	id, ok := v.(session.Identity)
	return id, ok
}

func CurrentSession(c *gin.Context) (*models.Session, bool) {
	v, ok := c.Get(SessionContextKey)
	if !ok {
		return nil, false
	}
	s, ok := v.(*models.Session)
	return s, ok && s != nil
}
