package main

import (
	"context"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whybuy-dashboard/activity"
	"whybuy-dashboard/clients"
	"whybuy-dashboard/config"
	"whybuy-dashboard/controllers"
	apperrors "whybuy-dashboard/errors"
	"whybuy-dashboard/logger"
	"whybuy-dashboard/middleware"
	awspkg "whybuy-dashboard/pkg/aws"
	"whybuy-dashboard/poller"
	"whybuy-dashboard/proxy"
	"whybuy-dashboard/routes"
	"whybuy-dashboard/sequence"
	"whybuy-dashboard/session"
	"whybuy-dashboard/web"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "dashboard"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelBoot()

	if cfg.UseSecrets {
		awsCfg, err := awspkg.LoadAWSConfig(bootCtx)
		if err != nil {
			panic("failed to load AWS config for secrets: " + err.Error())
		}
		cfg.ApplySecrets(bootCtx, awspkg.NewSecretsClient(awsCfg))
	}

	// Optional CloudWatch log sink
	var cwLogs *awspkg.CloudWatchLogsClient
	var cwWriter io.Writer
	if cfg.CloudWatchEnabled {
		cwLogs, err = awspkg.NewCloudWatchLogsClient(bootCtx, serviceName)
		if err != nil {
			panic("failed to initialize CloudWatch logs: " + err.Error())
		}
		cwWriter = cwLogs
	}

	log, err := logger.New(cfg.Env, cwWriter)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	var metrics awspkg.Recorder = awspkg.NopRecorder{}
	if cfg.CloudWatchEnabled {
		mc, err := awspkg.NewMetricsClient(bootCtx)
		if err != nil {
			log.Warn("CloudWatch metrics disabled", zap.Error(err))
		} else {
			metrics = mc
		}
	}

	var events activity.Recorder = activity.NewLogRecorder(log)
	if cfg.ActivityTopicARN != "" {
		awsCfg, err := awspkg.LoadAWSConfig(bootCtx)
		if err != nil {
			log.Warn("activity events logged only, AWS config unavailable", zap.Error(err))
		} else {
			events = activity.NewSNSRecorder(awspkg.NewSNSClient(awsCfg), cfg.ActivityTopicARN, log)
		}
	}

	// --- Redis-backed sessions ---
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal("invalid REDIS_URL", zap.Error(err))
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(bootCtx).Err(); err != nil {
		log.Fatal("failed to connect to Redis", zap.Error(err))
	}

	authClient := clients.NewAuthClient(cfg.AuthURL, cfg.AuthAnonKey, cfg.RequestTimeout)
	backend := clients.NewBackendClient(cfg.BackendURL, cfg.RequestTimeout)
	sessions := session.NewProvider(session.NewRedisStore(rdb, cfg.SessionTTL), authClient, cfg.AuthJWTSecret, log)

	polls := poller.New(log)
	seq := sequence.NewTracker()

	deps := controllers.Deps{
		Backend:      backend,
		Sessions:     sessions,
		Polls:        polls,
		Sequence:     seq,
		Activity:     events,
		Metrics:      metrics,
		PollInterval: cfg.PollInterval,
		Log:          log,
	}
	ctrl := routes.Controllers{
		Home: controllers.NewHomeController(controllers.PublicEnv{
			AuthURL:     cfg.AuthURL,
			AuthAnonKey: cfg.AuthAnonKey,
			AppEnv:      cfg.Env,
		}),
		Auth: controllers.NewAuthController(sessions, polls, seq, controllers.CookieSettings{
			Secure: cfg.CookieSecure,
			MaxAge: cfg.SessionTTL,
		}, cfg.PublicURL, log),
		Dashboard:     controllers.NewDashboardController(deps),
		ProductList:   controllers.NewProductListController(deps),
		ProductDetail: controllers.NewProductDetailController(deps),
		Prompts:       controllers.NewPromptController(deps),
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.MetricsMiddleware(metrics, serviceName))
	r.Use(middleware.SecurityHeaders(cfg.CookieSecure))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(apperrors.ErrorMiddleware())

	tmpl, err := web.Templates()
	if err != nil {
		log.Fatal("failed to parse templates", zap.Error(err))
	}
	r.SetHTMLTemplate(tmpl)
	static, err := fs.Sub(web.Static, "static")
	if err != nil {
		log.Fatal("failed to mount static assets", zap.Error(err))
	}
	r.StaticFS("/static", http.FS(static))

	routes.RegisterRoutes(r, ctrl, routes.Options{
		Sessions:      sessions,
		Brands:        authClient,
		Proxy:         proxy.NewForwarder(cfg.BackendURL, sessions, middleware.SessionCookie, log),
		LoginThrottle: middleware.NewRateLimiter(rate.Every(12*time.Second), 5, 15*time.Minute),
		Log:           log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Dashboard starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down dashboard...")

	// open event streams end with their poll tasks
	polls.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := rdb.Close(); err != nil {
		log.Error("Failed to close Redis", zap.Error(err))
	}
	if cwLogs != nil {
		cwLogs.Close()
	}
	log.Info("Dashboard stopped gracefully")
}
