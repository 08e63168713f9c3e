package routes

import (
	"net/http"

	"whybuy-dashboard/brand"
	"whybuy-dashboard/controllers"
	"whybuy-dashboard/middleware"
	"whybuy-dashboard/proxy"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Sessions is what the route middleware needs from the session provider.
type Sessions interface {
	middleware.SessionLoader
	middleware.BrandSessions
}

type Controllers struct {
	Home          *controllers.HomeController
	Auth          *controllers.AuthController
	Dashboard     *controllers.DashboardController
	ProductList   *controllers.ProductListController
	ProductDetail *controllers.ProductDetailController
	Prompts       *controllers.PromptController
}

type Options struct {
	Sessions      Sessions
	Brands        brand.Source
	Proxy         *proxy.Forwarder
	LoginThrottle *middleware.RateLimiter
	Log           *zap.Logger
}

func RegisterRoutes(r *gin.Engine, ctrl Controllers, opts Options) {
	r.GET("/health", ctrl.Home.Health)
	r.GET("/env.js", ctrl.Home.EnvJS)

	// Transparent API forwarding
	r.Any("/api/*path", opts.Proxy.Handle)

	// Public routes - no session required
	r.GET("/login", ctrl.Auth.LoginPage)
	r.POST("/login", middleware.LoginThrottle(opts.LoginThrottle, ctrl.Auth.Throttled), ctrl.Auth.Login)
	r.GET("/auth/google", ctrl.Auth.Google)
	r.GET("/auth/callback", ctrl.Auth.Callback)
	r.POST("/logout", ctrl.Auth.Logout)
	r.GET("/logout", ctrl.Auth.Logout)

	authed := r.Group("/")
	authed.Use(middleware.RequireSession(opts.Sessions))
	authed.GET("/", middleware.BrandList(opts.Sessions, opts.Brands, opts.Log), ctrl.Home.Home)

	// Brand-scoped pages and actions
	scoped := authed.Group("/:brandCode")
	scoped.Use(middleware.BrandContext(opts.Sessions, opts.Brands, opts.Log))
	{
		scoped.GET("", func(c *gin.Context) {
			c.Redirect(http.StatusFound, c.Request.URL.Path+"/dashboard")
		})
		scoped.GET("/dashboard", ctrl.Dashboard.Page)
		scoped.GET("/products", ctrl.ProductList.Page)
		scoped.GET("/products/:productId", ctrl.ProductDetail.Page)
		scoped.GET("/config", ctrl.Prompts.Page)

		actions := scoped.Group("/actions")
		actions.GET("/products", ctrl.ProductList.List)
		actions.POST("/import", ctrl.ProductList.Import)

		actions.POST("/pipeline/run", ctrl.ProductList.Run)
		actions.GET("/pipeline/jobs", ctrl.ProductList.Jobs)
		actions.GET("/pipeline/jobs/stream", ctrl.ProductList.JobsStream)

		actions.GET("/products/:productId/status/stream", ctrl.ProductDetail.StatusStream)
		actions.POST("/products/:productId/run", ctrl.ProductDetail.Run)
		// :productId is the row id for the mutations below
		actions.POST("/products/:productId/flag", ctrl.ProductDetail.Flag)
		actions.POST("/products/:productId/push", ctrl.ProductDetail.Push)
		actions.POST("/products/:productId/refresh", ctrl.ProductDetail.Refresh)
		actions.POST("/products/:productId/metafield/push", ctrl.ProductDetail.MetafieldPush)
		actions.POST("/products/:productId/metafield/pull", ctrl.ProductDetail.MetafieldPull)

		actions.POST("/prompts/:name", ctrl.Prompts.Save)
	}
}
