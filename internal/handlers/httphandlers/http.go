package httphandlers

import (
	"context"
	"errors"
	"net/http/pprof"

	"github.com/Lumerin-protocol/miner-dashboard/internal/config"
	"github.com/Lumerin-protocol/miner-dashboard/internal/dashboard"
	"github.com/Lumerin-protocol/miner-dashboard/internal/interfaces"
	"github.com/Lumerin-protocol/miner-dashboard/internal/mining"
	"github.com/Lumerin-protocol/miner-dashboard/internal/session"
	"github.com/Lumerin-protocol/miner-dashboard/internal/view"
	"github.com/gin-gonic/gin"
)

type Dashboard interface {
	Snapshot() view.Snapshot
	ToggleMining(ctx context.Context) error
	ResumeMining(ctx context.Context) error
	SetEngine(ctx context.Context, kind mining.EngineKind) error
	SetThreads(ctx context.Context, n int) error
	Reconnect(ctx context.Context) error
}

type Sanitizer interface {
	GetSanitized() interface{}
}

type HTTPHandler struct {
	dashboard Dashboard
	config    Sanitizer
	log       interfaces.ILogger
}

func NewHTTPHandler(dashboard Dashboard, config Sanitizer, log interfaces.ILogger) *gin.Engine {
	handl := &HTTPHandler{
		dashboard: dashboard,
		config:    config,
		log:       log,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthcheck", handl.HealthCheck)
	r.GET("/config", handl.GetConfig)
	r.GET("/dashboard", handl.GetDashboard)

	r.POST("/mining/toggle", handl.ToggleMining)
	r.POST("/mining/resume", handl.ResumeMining)
	r.POST("/mining/engine", handl.SetEngine)
	r.POST("/mining/threads", handl.SetThreads)
	r.POST("/network/reconnect", handl.Reconnect)

	r.Any("/debug/pprof/*action", gin.WrapF(pprof.Index))

	err := r.SetTrustedProxies(nil)
	if err != nil {
		panic(err)
	}

	return r
}

func (h *HTTPHandler) HealthCheck(ctx *gin.Context) {
	ctx.JSON(200, gin.H{
		"status":  "healthy",
		"version": config.BuildVersion,
	})
}

func (h *HTTPHandler) GetDashboard(ctx *gin.Context) {
	ctx.JSON(200, h.dashboard.Snapshot())
}

// respondError maps dashboard errors to status codes
func (h *HTTPHandler) respondError(ctx *gin.Context, err error) {
	code := 500
	switch {
	case errors.Is(err, session.ErrInvalidThreads),
		errors.Is(err, mining.ErrUnknownEngineKind):
		code = 400
	case errors.Is(err, dashboard.ErrNotRunning):
		code = 503
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		code = 504
	}
	if code == 500 {
		h.log.Errorf("request %s failed: %s", ctx.Request.URL.Path, err)
	}
	ctx.JSON(code, gin.H{"error": err.Error()})
}
