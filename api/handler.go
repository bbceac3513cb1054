// Package api provides the configuration HTTP surface of the emulator:
// webhook registration, delivery and request logs, event injection, fixture
// seeding and store flushing.
//
// Config routes live under /_config. The requester's account is taken from
// the Stripe-Account header.
//
// Every other path is recorded in the request log. Out of the box those
// requests end in a 404, so the log mostly shows unsupported calls. Emulated
// API routes can be mounted on Handler.Router; they run behind the same
// middleware, and a 200/201 POST answering with an object's "id" and
// "object" is logged against that object.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/xraph/paysim"
	"github.com/xraph/paysim/apilog"
	"github.com/xraph/paysim/observability"
	"github.com/xraph/paysim/ratelimit"
)

// Options configures a Handler.
type Options struct {
	// CORSOrigins lists allowed origins. Empty allows any origin.
	CORSOrigins []string

	// RateLimitRPS limits requests per second per account (or client IP for
	// global requests). Zero disables limiting.
	RateLimitRPS   float64
	RateLimitBurst int

	// MaxBodyBytes caps request bodies. Default 1MB.
	MaxBodyBytes int64

	// APILog records non-config requests. Nil creates a default log.
	APILog *apilog.Log

	Metrics *observability.Metrics

	// MetricsHandler is mounted at GET /metrics when set.
	MetricsHandler http.Handler
}

// Handler is the root HTTP handler for the config API.
type Handler struct {
	engine    *paysim.Engine
	apiLog    *apilog.Log
	validator *Validator
	limiter   *ratelimit.Limiter
	opts      Options
	logger    *slog.Logger
	router    *gin.Engine
}

// NewHandler creates the config API handler for engine.
func NewHandler(engine *paysim.Engine, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	if opts.APILog == nil {
		opts.APILog = apilog.New(apilog.DefaultCapacity)
	}

	h := &Handler{
		engine:    engine,
		apiLog:    opts.APILog,
		validator: NewValidator(),
		limiter:   ratelimit.New(opts.RateLimitRPS, opts.RateLimitBurst),
		opts:      opts,
		logger:    logger,
	}
	h.router = h.buildRouter()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Router returns the underlying gin engine so callers can mount more routes
// behind the same middleware.
func (h *Handler) Router() *gin.Engine { return h.router }

// APILog returns the request log.
func (h *Handler) APILog() *apilog.Log { return h.apiLog }

// Limiter returns the request rate limiter.
func (h *Handler) Limiter() *ratelimit.Limiter { return h.limiter }

func (h *Handler) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(h.recovery())

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Accept", accountHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(h.opts.CORSOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = h.opts.CORSOrigins
	}
	r.Use(cors.New(corsConfig))

	r.Use(h.metrics(), h.accessLog(), h.bodyLimit(), h.account(), h.rateLimit(), h.recordAPILog())

	r.GET("/healthz", h.healthz)
	if h.opts.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(h.opts.MetricsHandler))
	}

	h.Register(r.Group("/_config"))

	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "Unrecognized request URL ("+c.Request.Method+": "+c.Request.URL.Path+")")
	})
	return r
}

// Register mounts the config routes on rg.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/webhooks/:id", h.registerWebhook)
	rg.GET("/webhooks", h.listWebhooks)
	rg.DELETE("/webhooks/:id", h.deleteWebhook)

	rg.GET("/webhook_logs", h.listWebhookLogs)
	rg.POST("/webhook_logs/:log_id/retry", h.retryWebhookLog)

	rg.GET("/api_logs", h.listAPILogs)
	rg.DELETE("/api_logs", h.clearAPILogs)

	rg.DELETE("/data", h.flushData)

	rg.POST("/events", h.createEvent)

	rg.PUT("/objects/:kind/:id", h.putObject)
	rg.GET("/objects/:kind/:id", h.getObject)
}

func (h *Handler) healthz(c *gin.Context) {
	if err := h.engine.Store().Ping(c.Request.Context()); err != nil {
		h.logger.WarnContext(c.Request.Context(), "health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// queryInt returns a query parameter as int or a default value.
func queryInt(c *gin.Context, key string, defaultVal int) (int, bool) {
	v := c.Query(key)
	if v == "" {
		return defaultVal, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
