package controllers

import (
	"encoding/json"
	"net/http"

	"whybuy-dashboard/middleware"

	"github.com/gin-gonic/gin"
)

// PublicEnv is the runtime configuration handed to the browser. It must
// never carry server secrets.
type PublicEnv struct {
	AuthURL     string `json:"AUTH_URL"`
	AuthAnonKey string `json:"AUTH_ANON_KEY"`
	AppEnv      string `json:"APP_ENV"`
}

type HomeController struct {
	env PublicEnv
}

func NewHomeController(env PublicEnv) *HomeController {
	return &HomeController{env: env}
}

func (h *HomeController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// EnvJS handles GET /env.js so one image can serve many environments.
func (h *HomeController) EnvJS(c *gin.Context) {
	body, err := json.Marshal(h.env)
	if err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", []byte("window.env = "+string(body)+";\n"))
}

// Home handles GET / : the brand picker. The active brand is cleared by
// middleware.BrandList before this runs.
func (h *HomeController) Home(c *gin.Context) {
	sess, ok := middleware.CurrentSession(c)
	if !ok {
		middleware.Fail(c, http.StatusUnauthorized, "not signed in")
		return
	}
	c.HTML(http.StatusOK, "home.html", gin.H{
		"Title":  "Select a brand",
		"Email":  sess.Email,
		"Brands": sess.Brands,
		"Flash":  middleware.PopFlash(c),
	})
}
