package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	flashCookie     = "flash"
	flashContextKey = "flash"
)

// SetFlash leaves a one-shot message for the next page render.
func SetFlash(c *gin.Context, msg string) {
	c.SetSameSite(http.SameSiteLaxMode)
	// gin query-escapes cookie values on write and unescapes them on read
	c.SetCookie(flashCookie, msg, 60, "/", "", false, true)
}

// flashNow shows msg on the page rendered by this request.
func flashNow(c *gin.Context, msg string) {
	c.Set(flashContextKey, msg)
}

// PopFlash returns the pending message and clears it.
func PopFlash(c *gin.Context) string {
	if v := c.GetString(flashContextKey); v != "" {
		return v
	}
	v, err := c.Cookie(flashCookie)
	if err != nil || v == "" {
		return ""
	}
	c.SetCookie(flashCookie, "", -1, "/", "", false, true)
	return v
}
