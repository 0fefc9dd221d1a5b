// Package api provides the HTTP adapter for the scrapper engine.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/engine"
)

// API wires the HTTP handlers to an Engine.
type API struct {
	eng      *engine.Engine
	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger used for request and error logs.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// WithGatherer serves g at /metrics. Without it /metrics is not mounted.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *API) { a.gatherer = g }
}

// New creates an API from an Engine.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{eng: eng, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns a gin engine with every route registered.
func (a *API) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), a.requestLogger())
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all routes on r.
func (a *API) RegisterRoutes(r gin.IRouter) {
	r.GET("/healthz", a.health)
	if a.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1")

	jobs := v1.Group("/jobs")
	jobs.POST("", a.submitJob)
	jobs.GET("", a.listJobs)
	jobs.GET("/counts", a.jobCounts)
	jobs.GET("/:jobId", a.getJob)
	jobs.POST("/:jobId/cancel", a.cancelJob)
	jobs.POST("/:jobId/replay", a.replayJob)

	schedules := v1.Group("/schedules")
	schedules.POST("", a.createSchedule)
	schedules.GET("", a.listSchedules)
	schedules.GET("/:scheduleId", a.getSchedule)
	schedules.POST("/:scheduleId/pause", a.pauseSchedule)
	schedules.POST("/:scheduleId/resume", a.resumeSchedule)
	schedules.DELETE("/:scheduleId", a.deleteSchedule)

	v1.GET("/stats", a.stats)
}

func (a *API) health(c *gin.Context) {
	if err := a.eng.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *API) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		a.logger.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
		)
	}
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// fail maps engine errors onto HTTP statuses.
func (a *API) fail(c *gin.Context, err error) {
	var ve *scrapper.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ve.Reason, Field: ve.Field})
		return
	case errors.Is(err, scrapper.ErrJobNotFound), errors.Is(err, scrapper.ErrScheduleNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	case errors.Is(err, scrapper.ErrJobTerminal),
		errors.Is(err, scrapper.ErrInvalidTransition),
		errors.Is(err, scrapper.ErrStateConflict),
		errors.Is(err, scrapper.ErrDuplicateSchedule):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
		return
	case errors.Is(err, scrapper.ErrStoreUnavailable), errors.Is(err, scrapper.ErrBrokerUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}

	a.logger.Error("request failed",
		slog.String("path", c.FullPath()),
		slog.String("error", err.Error()),
	)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

func badRequest(c *gin.Context, field, reason string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: reason, Field: field})
}
