package proxy

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"whybuy-dashboard/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TokenSource yields a fresh bearer token for a session id.
type TokenSource interface {
	AccessToken(ctx context.Context, sid string) (string, error)
}

var hopByHop = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"proxy-connection":    true,
	"te":                  true,
	"trailer":             true,
	"trailers":            true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

// skipHeader reports headers never copied in either direction. CORS headers
// from the API service are dropped since the dashboard sets its own.
func skipHeader(key string) bool {
	lower := strings.ToLower(key)
	return hopByHop[lower] || strings.HasPrefix(lower, "access-control-")
}

// Forwarder passes /api/* through to the API service unchanged: no retry,
// caching or transformation.
type Forwarder struct {
	target     string
	client     *http.Client
	tokens     TokenSource
	cookieName string
	log        *zap.Logger
}

func NewForwarder(target string, tokens TokenSource, cookieName string, log *zap.Logger) *Forwarder {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = 60 * time.Second
	return &Forwarder{
		target:     strings.TrimRight(target, "/"),
		client:     &http.Client{Transport: transport},
		tokens:     tokens,
		cookieName: cookieName,
		log:        log,
	}
}

// Handle forwards the request; mount as ANY /api/*path.
func (f *Forwarder) Handle(c *gin.Context) {
	targetURL := f.target + c.Request.URL.EscapedPath()
	if c.Request.URL.RawQuery != "" {
		targetURL += "?" + c.Request.URL.RawQuery
	}
	log := logger.For(c, f.log)

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, targetURL, c.Request.Body)
	if err != nil {
		log.Error("failed to create forward request", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create request"})
		return
	}
	req.ContentLength = c.Request.ContentLength

	for k, v := range c.Request.Header {
		if skipHeader(k) {
			continue
		}
		req.Header[k] = append([]string(nil), v...)
	}
	if ip, _, err := net.SplitHostPort(c.Request.RemoteAddr); err == nil {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			ip = prior + ", " + ip
		}
		req.Header.Set("X-Forwarded-For", ip)
	}
	f.injectToken(c, req, log)

	resp, err := f.client.Do(req)
	if err != nil {
		log.Error("failed to forward request", zap.String("url", targetURL), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "backend unreachable"})
		return
	}
	defer resp.Body.Close()

	for k, v := range resp.Header {
		if skipHeader(k) {
			continue
		}
		for _, vv := range v {
			c.Writer.Header().Add(k, vv)
		}
	}
	c.Status(resp.StatusCode)

	if _, err := io.Copy(flushWriter{c.Writer}, resp.Body); err != nil {
		log.Warn("failed to copy response body", zap.Error(err))
	}
}

// injectToken adds the session's bearer token when the caller sent none.
func (f *Forwarder) injectToken(c *gin.Context, req *http.Request, log *zap.Logger) {
	if req.Header.Get("Authorization") != "" || f.tokens == nil {
		return
	}
	sid, err := c.Cookie(f.cookieName)
	if err != nil || sid == "" {
		return
	}
	token, err := f.tokens.AccessToken(c.Request.Context(), sid)
	if err != nil {
		// forward unauthenticated; the API service answers 401
		log.Debug("no session token for proxied request", zap.Error(err))
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

// flushWriter flushes after every write so streamed responses reach the
// browser as they arrive.
type flushWriter struct {
	w gin.ResponseWriter
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	fw.w.Flush()
	return n, err
}
